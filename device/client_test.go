package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"microrail-remote/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultConfig()
	config.BaseURL = server.URL + "/"
	return NewClient(config)
}

func TestSendCommand(t *testing.T) {
	var requests []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/cmd", r.URL.Path)
		requests = append(requests, r.URL.Query().Get("command"))
		w.Write([]byte("ok"))
	})

	require.NoError(t, client.SendCommand(context.Background(), common.Faster))
	assert.Equal(t, []string{"FASTER"}, requests)
}

func TestSendCommandIgnoresResponseStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.NoError(t, client.SendCommand(context.Background(), common.Stop))
}

func TestSendCommandRejectsUnknown(t *testing.T) {
	client := NewClient(DefaultConfig())

	err := client.SendCommand(context.Background(), common.Command("JUMP"))
	assert.True(t, errors.Is(err, common.ErrUnknownCommand))
}

func TestSendCommandTransportError(t *testing.T) {
	config := DefaultConfig()
	config.BaseURL = "http://127.0.0.1:1"
	client := NewClient(config)

	assert.Error(t, client.SendCommand(context.Background(), common.Stop))
}

func TestFetchConfig(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/config", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Lok 1","wlan_ssid":"microrail","wlan_password":"secret",` +
			`"motor_frequency":"100","motor_maxspeed":80,"motor_speed_step":"10",` +
			`"ip_address":"192.168.4.1","mac_address":"AA:BB:CC:DD:EE:FF"}`))
	})

	config, err := client.FetchConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Lok 1", config.Name)
	assert.Equal(t, "microrail", config.WlanSSID)
	assert.Equal(t, Int(100), config.MotorFrequency)
	assert.Equal(t, Int(80), config.MotorMaxSpeed)
	assert.Equal(t, Int(10), config.MotorSpeedStep)
	assert.Equal(t, "192.168.4.1", config.IPAddress)
}

func TestFetchConfigHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.FetchConfig(context.Background())
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/setup", r.URL.Path)
		assert.NoError(t, r.ParseForm())

		assert.Equal(t, "Lok 2", r.PostForm.Get("name"))
		assert.Equal(t, "rail", r.PostForm.Get("wlanssid"))
		assert.Equal(t, "pw", r.PostForm.Get("password"))
		assert.Equal(t, "500", r.PostForm.Get("motor-frequency"))
		assert.Equal(t, "90", r.PostForm.Get("motor-maxspeed"))
		assert.Equal(t, "12", r.PostForm.Get("motor-speedstep"))
	})

	err := client.Setup(context.Background(), SetupRequest{
		Name:           "Lok 2",
		WlanSSID:       "rail",
		Password:       "pw",
		MotorFrequency: 500,
		MotorMaxSpeed:  90,
		MotorSpeedStep: 12,
	})
	assert.NoError(t, err)
}

func TestSetupHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	assert.Error(t, client.Setup(context.Background(), SetupRequest{Name: "x"}))
}
