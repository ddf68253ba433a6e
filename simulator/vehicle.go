package simulator

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"microrail-remote/common"
	"microrail-remote/device"
)

// Пределы скорости мотора в процентах
const (
	minSpeed = 0
	maxSpeed = 100
)

// Границы напряжения аккумулятора (в сотых вольта) для пересчета в проценты
const (
	emptyCentivolts = 240
	fullCentivolts  = 420
)

// Vehicle модель машинки: целевая и текущая скорость, направление, аккумулятор
type Vehicle struct {
	mu          sync.Mutex
	config      device.DeviceConfig
	version     string
	direction   common.Direction
	actualSpeed int
	targetSpeed int
	voltage     float64
}

// NewVehicle создает машинку с полным аккумулятором. Настройки мотора нормализуются.
func NewVehicle(config device.DeviceConfig, version string) *Vehicle {
	config, _ = config.Normalize()
	return &Vehicle{
		config:    config,
		version:   version,
		direction: common.Forward,
		voltage:   float64(fullCentivolts) / 100,
	}
}

// Config возвращает действующую конфигурацию
func (v *Vehicle) Config() device.DeviceConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.config
}

// SetConfig сохраняет новую конфигурацию после нормализации.
// Возвращает имена полей, замененных значениями по умолчанию.
func (v *Vehicle) SetConfig(config device.DeviceConfig) []string {
	config, fixed := config.Normalize()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.config = config
	return fixed
}

// HandleCommand выполняет команду. Возвращает true, если изменилось направление.
func (v *Vehicle) HandleCommand(cmd common.Command) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	step := int(v.config.MotorSpeedStep)
	switch cmd {
	case common.Stop:
		v.targetSpeed = 0
	case common.Slower:
		v.targetSpeed = clamp(v.targetSpeed - step)
	case common.Faster:
		v.targetSpeed = clamp(v.targetSpeed + step)
	case common.ChangeDirection:
		// Смена направления только на стоянке
		if v.actualSpeed != 0 {
			return false
		}
		if v.direction == common.Forward {
			v.direction = common.Backward
		} else {
			v.direction = common.Forward
		}
		return true
	}
	return false
}

// Tick приближает текущую скорость к целевой на один шаг.
// Возвращает true, если скорость изменилась.
func (v *Vehicle) Tick() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.actualSpeed == v.targetSpeed {
		return false
	}

	step := int(v.config.MotorSpeedStep)
	if v.actualSpeed < v.targetSpeed {
		v.actualSpeed = min(v.actualSpeed+step, v.targetSpeed)
	} else {
		v.actualSpeed = max(v.actualSpeed-step, v.targetSpeed)
	}
	v.actualSpeed = clamp(v.actualSpeed)
	return true
}

// Duty скважность ШИМ мотора с учетом ограничения максимальной скорости
func (v *Vehicle) Duty() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return float64(v.actualSpeed) * float64(v.config.MotorMaxSpeed) / 100
}

// Drain разряжает аккумулятор пропорционально текущей скорости
func (v *Vehicle) Drain(volts float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.voltage -= volts * float64(v.actualSpeed) / maxSpeed
	if v.voltage < float64(emptyCentivolts)/100 {
		v.voltage = float64(emptyCentivolts) / 100
	}
}

// Status возвращает полный статус машинки
func (v *Vehicle) Status() common.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	return common.NewStatus().Apply(common.Update{
		Set: common.FieldAll,
		Values: common.Status{
			Speed:      v.actualSpeed,
			Direction:  v.direction,
			BatVoltage: fmt.Sprintf("%.2f", v.voltage),
			BatRate:    strconv.Itoa(batteryRate(v.voltage)),
			SSID:       v.config.WlanSSID,
			Name:       v.config.Name,
			Version:    v.version,
			MacAddress: v.config.MacAddress,
		},
	})
}

// batteryRate пересчитывает напряжение в оставшуюся емкость, 0..100
func batteryRate(voltage float64) int {
	centivolts := int(math.Round(voltage * 100))
	rate := (centivolts - emptyCentivolts) * 100 / (fullCentivolts - emptyCentivolts)
	return max(0, min(rate, 100))
}

func clamp(speed int) int {
	return max(minSpeed, min(speed, maxSpeed))
}
