package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"microrail-remote/common"
	"microrail-remote/protocol"

	websocketLib "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVehicle тестовый сервер, который ведет себя как машинка
type fakeVehicle struct {
	server       *httptest.Server
	upgrader     websocketLib.Upgrader
	greeting     []string     // Кадры, отправляемые при подключении
	closeAfter   atomic.Bool  // Закрывать соединение сразу после приветствия
	down         atomic.Bool  // Отвечать 503 вместо рукопожатия
	connects     atomic.Int32 // Число подключений
	subprotocols chan string  // Запрошенные подпротоколы
	received     chan string  // Полученные команды

	mu       sync.Mutex
	attempts []time.Time // Время каждой попытки подключения
}

func newFakeVehicle(t *testing.T, greeting ...string) *fakeVehicle {
	t.Helper()
	v := &fakeVehicle{
		upgrader:     websocketLib.Upgrader{Subprotocols: []string{"arduino"}},
		greeting:     greeting,
		subprotocols: make(chan string, 10),
		received:     make(chan string, 10),
	}
	v.server = httptest.NewServer(http.HandlerFunc(v.handle))
	t.Cleanup(v.server.Close)
	return v
}

func (v *fakeVehicle) url() string {
	return "ws" + strings.TrimPrefix(v.server.URL, "http") + "/ws"
}

// gaps возвращает паузы между первыми n попытками подключения
func (v *fakeVehicle) gaps(n int) []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(v.attempts) && i < n; i++ {
		out = append(out, v.attempts[i].Sub(v.attempts[i-1]))
	}
	return out
}

func (v *fakeVehicle) attemptCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.attempts)
}

func (v *fakeVehicle) handle(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	v.attempts = append(v.attempts, time.Now())
	v.mu.Unlock()

	if v.down.Load() {
		http.Error(w, "vehicle unavailable", http.StatusServiceUnavailable)
		return
	}

	select {
	case v.subprotocols <- r.Header.Get("Sec-WebSocket-Protocol"):
	default:
	}
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	v.connects.Add(1)

	for _, frame := range v.greeting {
		if err := conn.WriteMessage(websocketLib.TextMessage, []byte(frame)); err != nil {
			return
		}
	}

	if v.closeAfter.Load() {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		v.received <- string(data)
	}
}

func testConfig(url string, format protocol.Format) Config {
	config := DefaultConfig()
	config.URL = url
	config.Format = format
	config.ReconnectInterval = 50 * time.Millisecond
	return config
}

func waitUpdate(t *testing.T, updates <-chan common.Update) common.Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for update")
	}
	return common.Update{}
}

func waitConnected(t *testing.T, client *Client) {
	t.Helper()
	require.Eventually(t, client.IsConnected, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "ws://192.168.4.1/ws", config.URL)
	assert.Equal(t, "arduino", config.Subprotocol)
	assert.Equal(t, protocol.FormatText, config.Format)
	assert.Equal(t, 2*time.Second, config.ReconnectInterval)
}

func TestClientReceivesTextFrames(t *testing.T) {
	vehicle := newFakeVehicle(t, "A:1:50", "garbage", "B:7.4:88")
	updates := make(chan common.Update, 10)

	client := NewClient(testConfig(vehicle.url(), protocol.FormatText), updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	assert.Equal(t, "arduino", <-vehicle.subprotocols)

	first := waitUpdate(t, updates)
	assert.Equal(t, common.FieldMotion, first.Set)
	assert.Equal(t, 50, first.Values.Speed)
	assert.Equal(t, common.Backward, first.Values.Direction)
	assert.Equal(t, "A:1:50", first.Source)

	// Некорректный кадр пропускается
	second := waitUpdate(t, updates)
	assert.Equal(t, common.FieldBattery, second.Set)
	assert.Equal(t, "7.4", second.Values.BatVoltage)
	assert.Equal(t, "88", second.Values.BatRate)
}

func TestClientReceivesJSON(t *testing.T) {
	vehicle := newFakeVehicle(t, `{"speed":0,"direction":0,"name":"Lok 1"}`)
	updates := make(chan common.Update, 10)

	client := NewClient(testConfig(vehicle.url(), protocol.FormatJSON), updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	u := waitUpdate(t, updates)
	assert.True(t, u.Set.Has(common.FieldMotion|common.FieldName))
	assert.Equal(t, "Lok 1", u.Values.Name)
}

func TestClientNormalizesFormatCase(t *testing.T) {
	vehicle := newFakeVehicle(t, `{"speed":20,"direction":1}`)
	updates := make(chan common.Update, 10)

	client := NewClient(testConfig(vehicle.url(), protocol.Format("JSON")), updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	u := waitUpdate(t, updates)
	assert.True(t, u.Set.Has(common.FieldMotion))
	assert.Equal(t, 20, u.Values.Speed)
	assert.Equal(t, common.Backward, u.Values.Direction)
}

func TestClientSendsCommand(t *testing.T) {
	vehicle := newFakeVehicle(t)
	updates := make(chan common.Update, 10)

	client := NewClient(testConfig(vehicle.url(), protocol.FormatText), updates)
	require.NoError(t, client.Start())
	defer client.Stop()
	waitConnected(t, client)

	require.NoError(t, client.Send(context.Background(), common.Faster))

	select {
	case frame := <-vehicle.received:
		assert.Equal(t, "#FASTER", frame)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for command")
	}

	select {
	case frame := <-vehicle.received:
		t.Fatalf("Unexpected second frame %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, updates, "sending must not produce status updates")
}

func TestClientSendRejectsUnknownCommand(t *testing.T) {
	client := NewClient(DefaultConfig(), make(chan common.Update))

	err := client.Send(context.Background(), common.Command("JUMP"))
	assert.True(t, errors.Is(err, common.ErrUnknownCommand))
}

func TestClientSendWithoutConnection(t *testing.T) {
	client := NewClient(DefaultConfig(), make(chan common.Update))

	err := client.Send(context.Background(), common.Stop)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestClientReconnectsAfterClose(t *testing.T) {
	vehicle := newFakeVehicle(t, "A:0:0")
	vehicle.closeAfter.Store(true)
	updates := make(chan common.Update, 100)

	client := NewClient(testConfig(vehicle.url(), protocol.FormatText), updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	require.Eventually(t, func() bool {
		return vehicle.connects.Load() >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

// assertFixedDelay проверяет, что паузы не короче интервала и не растут
func assertFixedDelay(t *testing.T, gaps []time.Duration, interval time.Duration) {
	t.Helper()
	for i, gap := range gaps {
		assert.GreaterOrEqual(t, gap, interval, "gap %d", i)
		assert.Less(t, gap, 3*interval, "gap %d grew, want fixed delay", i)
	}
}

func TestClientReconnectDelayIsFixed(t *testing.T) {
	const interval = 100 * time.Millisecond
	vehicle := newFakeVehicle(t, "A:0:0")
	vehicle.closeAfter.Store(true)

	config := testConfig(vehicle.url(), protocol.FormatText)
	config.ReconnectInterval = interval
	client := NewClient(config, make(chan common.Update, 100))
	require.NoError(t, client.Start())
	defer client.Stop()

	require.Eventually(t, func() bool {
		return vehicle.attemptCount() >= 6
	}, 5*time.Second, 10*time.Millisecond)

	gaps := vehicle.gaps(6)
	require.Len(t, gaps, 5)
	assertFixedDelay(t, gaps, interval)
}

func TestClientReconnectsAfterOutage(t *testing.T) {
	const interval = 100 * time.Millisecond
	vehicle := newFakeVehicle(t, "A:0:30")
	vehicle.down.Store(true)
	updates := make(chan common.Update, 10)

	config := testConfig(vehicle.url(), protocol.FormatText)
	config.ReconnectInterval = interval
	client := NewClient(config, updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	require.Eventually(t, func() bool {
		return vehicle.attemptCount() >= 5
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, client.IsConnected())
	assert.Empty(t, updates)
	assertFixedDelay(t, vehicle.gaps(5), interval)

	vehicle.down.Store(false)

	waitConnected(t, client)
	u := waitUpdate(t, updates)
	assert.Equal(t, 30, u.Values.Speed)
}

func TestClientRetriesWhileServerDown(t *testing.T) {
	vehicle := newFakeVehicle(t, "A:0:10")
	url := vehicle.url()

	// Сервер недоступен: клиент продолжает попытки без ошибки
	vehicle.server.Close()

	updates := make(chan common.Update, 10)
	client := NewClient(testConfig(url, protocol.FormatText), updates)
	require.NoError(t, client.Start())
	defer client.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.False(t, client.IsConnected())
	assert.Empty(t, updates)
}

func TestNewClientDefaultsReconnectInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		config := DefaultConfig()
		config.ReconnectInterval = interval

		client := NewClient(config, make(chan common.Update))
		assert.Equal(t, 2*time.Second, client.config.ReconnectInterval)
	}
}

func TestClientStartRequiresURL(t *testing.T) {
	config := DefaultConfig()
	config.URL = ""
	client := NewClient(config, make(chan common.Update))

	assert.Error(t, client.Start())
}

func TestClientStopBeforeConnect(t *testing.T) {
	config := testConfig("ws://127.0.0.1:1/ws", protocol.FormatText)
	client := NewClient(config, make(chan common.Update))
	require.NoError(t, client.Start())

	assert.NoError(t, client.Stop())
	assert.False(t, client.IsConnected())
}
