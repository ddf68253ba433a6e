package sse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerNamedEvents(t *testing.T) {
	input := "id: 100\nevent: event.speed\ndata: 30\n\n" +
		": keep-alive\n\n" +
		"event: event.direction\ndata:1\n\n"
	scanner := NewScanner(strings.NewReader(input))

	require.True(t, scanner.Next())
	assert.Equal(t, Event{Type: "event.speed", Data: "30", ID: "100"}, scanner.Event())

	require.True(t, scanner.Next())
	assert.Equal(t, Event{Type: "event.direction", Data: "1"}, scanner.Event())

	assert.False(t, scanner.Next())
	assert.NoError(t, scanner.Err())
}

func TestScannerMultiLineData(t *testing.T) {
	scanner := NewScanner(strings.NewReader("data: one\ndata: two\r\n\r\n"))

	require.True(t, scanner.Next())
	assert.Equal(t, "one\ntwo", scanner.Event().Data)
	assert.Equal(t, "", scanner.Event().Type)
}

func TestScannerEventWithoutDataIsSkipped(t *testing.T) {
	scanner := NewScanner(strings.NewReader("event: event.start\n\nevent: event.speed\ndata: 0\n\n"))

	require.True(t, scanner.Next())
	assert.Equal(t, "event.speed", scanner.Event().Type)
	assert.False(t, scanner.Next())
}

func TestScannerFinalEventWithoutBlankLine(t *testing.T) {
	scanner := NewScanner(strings.NewReader("event: event.batrate\ndata: 77"))

	require.True(t, scanner.Next())
	assert.Equal(t, Event{Type: "event.batrate", Data: "77"}, scanner.Event())
	assert.False(t, scanner.Next())
	assert.NoError(t, scanner.Err())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestScannerReadError(t *testing.T) {
	scanner := NewScanner(failingReader{})

	assert.False(t, scanner.Next())
	assert.EqualError(t, scanner.Err(), "connection reset")
}
