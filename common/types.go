package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownCommand возвращается для команды вне списка поддерживаемых
var ErrUnknownCommand = errors.New("unknown command")

// Direction направление движения: 0 - вперед, любое другое значение - назад
type Direction int

const (
	Forward  Direction = 0
	Backward Direction = 1
)

// IsForward возвращает true для движения вперед
func (d Direction) IsForward() bool {
	return d == Forward
}

// Command команда управления, отправляемая машинке
type Command string

const (
	ChangeDirection Command = "CHANGEDIRECTION"
	Slower          Command = "SLOWER"
	Faster          Command = "FASTER"
	Stop            Command = "STOP"
)

// Commands перечисляет все поддерживаемые команды
var Commands = []Command{ChangeDirection, Slower, Faster, Stop}

// Valid проверяет, что команда поддерживается
func (c Command) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCommand разбирает имя команды без учета регистра
func ParseCommand(name string) (Command, error) {
	cmd := Command(strings.ToUpper(strings.TrimSpace(name)))
	if !cmd.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return cmd, nil
}

// Field битовая маска полей статуса
type Field uint16

const (
	FieldSpeed Field = 1 << iota
	FieldDirection
	FieldBatVoltage
	FieldBatRate
	FieldSSID
	FieldName
	FieldVersion
	FieldMacAddress

	FieldMotion  = FieldSpeed | FieldDirection
	FieldBattery = FieldBatVoltage | FieldBatRate
	FieldInfo    = FieldSSID | FieldName | FieldVersion | FieldMacAddress
	FieldAll     = FieldMotion | FieldBattery | FieldInfo
)

// Has проверяет, что все биты other установлены
func (f Field) Has(other Field) bool {
	return f&other == other
}

// Status последнее известное состояние машинки.
// Значение неизменяемое: Apply возвращает новый экземпляр.
type Status struct {
	Speed      int       `json:"speed"`
	Direction  Direction `json:"direction"`
	BatVoltage string    `json:"batVoltage"`
	BatRate    string    `json:"batRate"`
	SSID       string    `json:"ssid"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	MacAddress string    `json:"macaddress,omitempty"`

	known Field
}

// NewStatus возвращает статус, в котором еще ничего не известно
func NewStatus() Status {
	return Status{}
}

// Known сообщает, получены ли значения для всех полей f
func (s Status) Known(f Field) bool {
	return s.known.Has(f)
}

// Stopped true, если скорость известна и равна нулю
func (s Status) Stopped() bool {
	return s.Known(FieldSpeed) && s.Speed == 0
}

// Apply применяет обновление: поля из Set перезаписываются, поля из Clear теряют значение
func (s Status) Apply(u Update) Status {
	next := s
	v := u.Values

	if u.Set.Has(FieldSpeed) {
		next.Speed = v.Speed
	}
	if u.Set.Has(FieldDirection) {
		next.Direction = v.Direction
	}
	if u.Set.Has(FieldBatVoltage) {
		next.BatVoltage = v.BatVoltage
	}
	if u.Set.Has(FieldBatRate) {
		next.BatRate = v.BatRate
	}
	if u.Set.Has(FieldSSID) {
		next.SSID = v.SSID
	}
	if u.Set.Has(FieldName) {
		next.Name = v.Name
	}
	if u.Set.Has(FieldVersion) {
		next.Version = v.Version
	}
	if u.Set.Has(FieldMacAddress) {
		next.MacAddress = v.MacAddress
	}

	cleared := u.Clear &^ u.Set
	next.known = (next.known | u.Set) &^ cleared
	next = next.zeroUnknown()
	return next
}

// zeroUnknown сбрасывает значения полей без данных, чтобы не держать устаревшие значения
func (s Status) zeroUnknown() Status {
	if !s.Known(FieldSpeed) {
		s.Speed = 0
	}
	if !s.Known(FieldDirection) {
		s.Direction = Forward
	}
	if !s.Known(FieldBatVoltage) {
		s.BatVoltage = ""
	}
	if !s.Known(FieldBatRate) {
		s.BatRate = ""
	}
	if !s.Known(FieldSSID) {
		s.SSID = ""
	}
	if !s.Known(FieldName) {
		s.Name = ""
	}
	if !s.Known(FieldVersion) {
		s.Version = ""
	}
	if !s.Known(FieldMacAddress) {
		s.MacAddress = ""
	}
	return s
}

// Update изменения, которые принесло одно входящее сообщение
type Update struct {
	Set    Field  // Поля, значения которых взяты из Values
	Clear  Field  // Поля, которые сообщение объявило отсутствующими
	Values Status // Новые значения
	Source string // Исходное сообщение, для журнала
}

// Empty true, если обновление ничего не меняет
func (u Update) Empty() bool {
	return u.Set == 0 && u.Clear == 0
}

// CommandMessage представляет входящую команду из MQTT
type CommandMessage struct {
	Command       string `json:"command"`        // Имя команды: CHANGEDIRECTION, SLOWER, FASTER, STOP
	CorrelationID string `json:"correlation_id"` // ID для сопоставления запроса и ответа
	Vehicle       string `json:"vehicle"`        // Имя машинки
}

// CommandResponse представляет ответ на команду
type CommandResponse struct {
	CorrelationID string    `json:"correlation_id"`
	Command       string    `json:"command"`
	Status        string    `json:"status"`          // "success", "error"
	Error         string    `json:"error,omitempty"` // Описание ошибки если статус "error"
	Timestamp     time.Time `json:"timestamp"`
}
