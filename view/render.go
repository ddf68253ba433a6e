// Package view превращает статус машинки в то, что видит пользователь.
// Render не имеет побочных эффектов и не зависит от терминала.
package view

import (
	"strconv"

	"microrail-remote/common"
)

// Placeholder показывается вместо значения, которое еще не получено
const Placeholder = "--"

// View видимое состояние пульта
type View struct {
	Speed    string
	Voltage  string
	Capacity string
	SSID     string
	Name     string
	Version  string

	ForwardVisible   bool // Иконка "вперед"
	ReverseVisible   bool // Иконка "назад"
	DirectionEnabled bool // Кнопка смены направления доступна только на стоянке
}

// Render строит представление по статусу
func Render(s common.Status) View {
	v := View{
		Speed:    Placeholder,
		Voltage:  text(s, common.FieldBatVoltage, s.BatVoltage),
		Capacity: text(s, common.FieldBatRate, s.BatRate),
		SSID:     text(s, common.FieldSSID, s.SSID),
		Name:     text(s, common.FieldName, s.Name),
		Version:  text(s, common.FieldVersion, s.Version),
	}

	if s.Known(common.FieldSpeed) {
		v.Speed = strconv.Itoa(s.Speed)
	}
	v.DirectionEnabled = s.Stopped()

	if s.Known(common.FieldDirection) {
		v.ForwardVisible = s.Direction.IsForward()
		v.ReverseVisible = !v.ForwardVisible
	}

	return v
}

func text(s common.Status, f common.Field, value string) string {
	if !s.Known(f) {
		return Placeholder
	}
	return value
}
