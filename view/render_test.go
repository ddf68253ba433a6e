package view

import (
	"testing"

	"microrail-remote/common"
	"microrail-remote/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apply прогоняет кадры через парсер и возвращает итоговый статус
func apply(t *testing.T, frames ...string) common.Status {
	t.Helper()
	s := common.NewStatus()
	for _, frame := range frames {
		update, err := protocol.ParseFrame(frame)
		require.NoError(t, err)
		s = s.Apply(update)
	}
	return s
}

func TestRenderInitialStatus(t *testing.T) {
	v := Render(common.NewStatus())

	assert.Equal(t, Placeholder, v.Speed)
	assert.Equal(t, Placeholder, v.Voltage)
	assert.Equal(t, Placeholder, v.Capacity)
	assert.Equal(t, Placeholder, v.Name)
	assert.False(t, v.ForwardVisible)
	assert.False(t, v.ReverseVisible)
	assert.False(t, v.DirectionEnabled)
}

func TestRenderMovingInReverse(t *testing.T) {
	v := Render(apply(t, "A:1:50"))

	assert.Equal(t, "50", v.Speed)
	assert.True(t, v.ReverseVisible)
	assert.False(t, v.ForwardVisible)
	assert.False(t, v.DirectionEnabled)
}

func TestRenderStoppedForward(t *testing.T) {
	v := Render(apply(t, "A:1:50", "A:0:0"))

	assert.Equal(t, "0", v.Speed)
	assert.True(t, v.ForwardVisible)
	assert.False(t, v.ReverseVisible)
	assert.True(t, v.DirectionEnabled)
}

func TestRenderBattery(t *testing.T) {
	v := Render(apply(t, "B:7.4:88"))

	assert.Equal(t, "7.4", v.Voltage)
	assert.Equal(t, "88", v.Capacity)
	assert.Equal(t, Placeholder, v.Speed, "battery frame must not touch speed")
}

func TestRenderJSONStatus(t *testing.T) {
	tests := []struct {
		name            string
		payload         string
		expectedEnabled bool
		expectedForward bool
	}{
		{"Stopped forward", `{"speed":0,"direction":0}`, true, true},
		{"Moving forward", `{"speed":10,"direction":0}`, false, true},
		{"Stopped reverse", `{"speed":0,"direction":1}`, true, false},
		{"Moving reverse", `{"speed":90,"direction":1}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := protocol.ParseStatusJSON([]byte(tt.payload))
			require.NoError(t, err)

			v := Render(common.NewStatus().Apply(update))
			assert.Equal(t, tt.expectedEnabled, v.DirectionEnabled)
			assert.Equal(t, tt.expectedForward, v.ForwardVisible)
			assert.Equal(t, !tt.expectedForward, v.ReverseVisible)
		})
	}
}

func TestRenderJSONMissingFieldsFallBackToPlaceholder(t *testing.T) {
	s := apply(t, "B:7.4:88")

	update, err := protocol.ParseStatusJSON([]byte(`{"speed":0,"direction":0,"name":"Lok 1"}`))
	require.NoError(t, err)
	v := Render(s.Apply(update))

	assert.Equal(t, "Lok 1", v.Name)
	assert.Equal(t, Placeholder, v.Voltage)
	assert.Equal(t, Placeholder, v.SSID)
}

func TestRenderSpeedEvent(t *testing.T) {
	s := apply(t, "A:0:0")
	update, err := protocol.ParseEvent(protocol.EventSpeed, "30")
	require.NoError(t, err)

	v := Render(s.Apply(update))
	assert.Equal(t, "30", v.Speed)
	assert.False(t, v.DirectionEnabled)
}
