package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"microrail-remote/common"
)

// commandPrefix префикс текстовой команды в WebSocket
const commandPrefix = "#"

// EncodeCommand формирует кадр команды для WebSocket, например "#FASTER"
func EncodeCommand(cmd common.Command) string {
	return commandPrefix + string(cmd)
}

// DecodeCommand разбирает кадр команды "#NAME"
func DecodeCommand(frame string) (common.Command, error) {
	frame = strings.TrimSpace(frame)
	if !strings.HasPrefix(frame, commandPrefix) {
		return "", fmt.Errorf("%w: command frame %q lacks %q prefix", ErrMalformed, frame, commandPrefix)
	}
	return common.ParseCommand(strings.TrimPrefix(frame, commandPrefix))
}

// FormatMotionFrame формирует кадр "A:<direction>:<speed>"
func FormatMotionFrame(direction common.Direction, speed int) string {
	return fmt.Sprintf("A:%d:%d", direction, speed)
}

// FormatBatteryFrame формирует кадр "B:<voltage>:<capacity>"
func FormatBatteryFrame(voltage, capacity string) string {
	return fmt.Sprintf("B:%s:%s", voltage, capacity)
}

// statusMessage JSON-представление статуса для WebSocket
type statusMessage struct {
	SSID       string `json:"ssid"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	BatVoltage string `json:"batVoltage"`
	BatRate    string `json:"batRate"`
	Speed      int    `json:"speed"`
	Direction  int    `json:"direction"`
}

// MarshalStatus сериализует статус в JSON-объект для WebSocket
func MarshalStatus(s common.Status) ([]byte, error) {
	return json.Marshal(statusMessage{
		SSID:       s.SSID,
		Name:       s.Name,
		Version:    s.Version,
		BatVoltage: s.BatVoltage,
		BatRate:    s.BatRate,
		Speed:      s.Speed,
		Direction:  int(s.Direction),
	})
}

// startMessage полезная нагрузка события event.start
type startMessage struct {
	Name       string `json:"name"`
	SSID       string `json:"ssid"`
	MacAddress string `json:"macaddress"`
	Version    string `json:"version"`
}

// MarshalStart сериализует приветственное сообщение для event.start
func MarshalStart(s common.Status) ([]byte, error) {
	return json.Marshal(startMessage{
		Name:       s.Name,
		SSID:       s.SSID,
		MacAddress: s.MacAddress,
		Version:    s.Version,
	})
}
