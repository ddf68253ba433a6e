package simulator

import (
	"testing"

	"microrail-remote/common"
	"microrail-remote/device"

	"github.com/stretchr/testify/assert"
)

func testVehicle() *Vehicle {
	return NewVehicle(DefaultConfig().Device, "test")
}

func TestVehicleRampsTowardTarget(t *testing.T) {
	v := testVehicle()

	v.HandleCommand(common.Faster)
	v.HandleCommand(common.Faster)
	assert.Equal(t, 0, v.Status().Speed, "commands only change the target")

	assert.True(t, v.Tick())
	assert.Equal(t, 10, v.Status().Speed)
	assert.True(t, v.Tick())
	assert.Equal(t, 20, v.Status().Speed)
	assert.False(t, v.Tick())

	v.HandleCommand(common.Stop)
	v.Tick()
	v.Tick()
	assert.Equal(t, 0, v.Status().Speed)
	assert.True(t, v.Status().Stopped())
}

func TestVehicleSpeedLimits(t *testing.T) {
	v := testVehicle()

	v.HandleCommand(common.Slower)
	assert.False(t, v.Tick())
	assert.Equal(t, 0, v.Status().Speed)

	for i := 0; i < 20; i++ {
		v.HandleCommand(common.Faster)
	}
	for v.Tick() {
	}
	assert.Equal(t, 100, v.Status().Speed)
}

func TestVehicleDirectionChangesOnlyWhenStopped(t *testing.T) {
	v := testVehicle()

	assert.True(t, v.HandleCommand(common.ChangeDirection))
	assert.Equal(t, common.Backward, v.Status().Direction)

	v.HandleCommand(common.Faster)
	v.Tick()
	assert.False(t, v.HandleCommand(common.ChangeDirection))
	assert.Equal(t, common.Backward, v.Status().Direction)
}

func TestVehicleBattery(t *testing.T) {
	v := testVehicle()

	status := v.Status()
	assert.Equal(t, "4.20", status.BatVoltage)
	assert.Equal(t, "100", status.BatRate)

	v.Drain(1)
	assert.Equal(t, "4.20", v.Status().BatVoltage, "a stopped vehicle does not drain")

	for i := 0; i < 10; i++ {
		v.HandleCommand(common.Faster)
	}
	for v.Tick() {
	}
	v.Drain(0.9)
	status = v.Status()
	assert.Equal(t, "3.30", status.BatVoltage)
	assert.Equal(t, "50", status.BatRate)

	v.Drain(10)
	status = v.Status()
	assert.Equal(t, "2.40", status.BatVoltage)
	assert.Equal(t, "0", status.BatRate)
}

func TestBatteryRate(t *testing.T) {
	assert.Equal(t, 100, batteryRate(4.5))
	assert.Equal(t, 100, batteryRate(4.2))
	assert.Equal(t, 50, batteryRate(3.3))
	assert.Equal(t, 0, batteryRate(2.4))
	assert.Equal(t, 0, batteryRate(1.0))
}

func TestVehicleSetConfigNormalizes(t *testing.T) {
	v := testVehicle()

	config := v.Config()
	config.MotorSpeedStep = 2
	config.MotorMaxSpeed = 80
	fixed := v.SetConfig(config)

	assert.Equal(t, []string{"motor_speed_step"}, fixed)
	assert.Equal(t, device.Int(10), v.Config().MotorSpeedStep)
	assert.Equal(t, device.Int(80), v.Config().MotorMaxSpeed)

	v.HandleCommand(common.Faster)
	v.Tick()
	assert.InDelta(t, 8.0, v.Duty(), 0.001)
}

func TestVehicleStatusIsFullyKnown(t *testing.T) {
	status := testVehicle().Status()
	assert.True(t, status.Known(common.FieldAll))
	assert.Equal(t, "microrail-sim", status.Name)
	assert.Equal(t, "test", status.Version)
}
