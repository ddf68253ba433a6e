package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Допустимые диапазоны настроек мотора и значения по умолчанию
const (
	minInertia, maxInertia, defaultInertia       = 50, 500, 200
	minFrequency, maxFrequency, defaultFrequency = 50, 20000, 100
	minMaxSpeed, maxMaxSpeed, defaultMaxSpeed    = 20, 100, 100
	minSpeedStep, maxSpeedStep, defaultSpeedStep = 4, 30, 10
)

// Int число, которое машинка может прислать как строку ("100") или как число (100)
type Int int

// UnmarshalJSON принимает число, строку с числом, логическое значение или null
func (n *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`, "false":
		*n = 0
		return nil
	case "true":
		*n = 1
		return nil
	}

	text := strings.Trim(string(data), `"`)
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return fmt.Errorf("invalid number %s", data)
		}
		v = int(f)
	}
	*n = Int(v)
	return nil
}

// MarshalJSON для Int пишет обычное число
func (n Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(n))
}

// DeviceConfig конфигурация машинки, как ее отдает GET /config
type DeviceConfig struct {
	Name           string `json:"name" yaml:"name"`
	WlanSSID       string `json:"wlan_ssid" yaml:"wlan_ssid"`
	WlanPassword   string `json:"wlan_password" yaml:"-"`
	MotorFrequency Int    `json:"motor_frequency" yaml:"motor_frequency"`
	MotorMaxSpeed  Int    `json:"motor_maxspeed" yaml:"motor_maxspeed"`
	MotorSpeedStep Int    `json:"motor_speed_step" yaml:"motor_speed_step"`
	MotorInertia   Int    `json:"motor_inertia" yaml:"motor_inertia"`
	MotorReverse   Int    `json:"motor_reverse" yaml:"motor_reverse"`
	IPAddress      string `json:"ip_address" yaml:"ip_address"`
	MacAddress     string `json:"mac_address" yaml:"mac_address"`
}

// Normalize заменяет настройки мотора вне допустимых диапазонов значениями по умолчанию.
// Возвращает исправленную конфигурацию и имена исправленных полей.
func (c DeviceConfig) Normalize() (DeviceConfig, []string) {
	var fixed []string

	clamp := func(name string, v *Int, lo, hi, def int) {
		if int(*v) < lo || int(*v) > hi {
			*v = Int(def)
			fixed = append(fixed, name)
		}
	}

	clamp("motor_inertia", &c.MotorInertia, minInertia, maxInertia, defaultInertia)
	clamp("motor_frequency", &c.MotorFrequency, minFrequency, maxFrequency, defaultFrequency)
	clamp("motor_maxspeed", &c.MotorMaxSpeed, minMaxSpeed, maxMaxSpeed, defaultMaxSpeed)
	clamp("motor_speed_step", &c.MotorSpeedStep, minSpeedStep, maxSpeedStep, defaultSpeedStep)

	return c, fixed
}
