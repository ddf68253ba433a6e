package sse

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"

	"microrail-remote/common"
	"microrail-remote/device"
	"microrail-remote/protocol"
)

var logger = common.NewLogger("[SSE-Client] ")

// ErrStreamClosed поток событий закончился
var ErrStreamClosed = errors.New("event stream closed")

// Config представляет конфигурацию клиента потока событий
type Config struct {
	EventsPath string `mapstructure:"events_path"` // Путь потока, по умолчанию "/events"
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{EventsPath: "/events"}
}

// Client получает телеметрию из /events и отправляет команды через GET /cmd.
// Поток открывается один раз; после обрыва клиент не переподключается.
type Client struct {
	config      Config
	device      *device.Client
	httpClient  *http.Client
	updatesChan chan<- common.Update
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	err         error
	errMutex    sync.Mutex
	startOnce   sync.Once
}

// NewClient создает клиента потока событий
func NewClient(config Config, dev *device.Client, updatesChan chan<- common.Update) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:      config,
		device:      dev,
		httpClient:  &http.Client{},
		updatesChan: updatesChan,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start открывает поток событий в отдельной горутине
func (c *Client) Start() error {
	started := false
	c.startOnce.Do(func() {
		started = true
		logger.Printf("Opening event stream: %s%s", c.device.BaseURL(), c.config.EventsPath)
		go c.streamLoop()
	})
	if !started {
		return fmt.Errorf("event stream already started")
	}
	return nil
}

// Stop закрывает поток
func (c *Client) Stop() error {
	logger.Println("Stopping SSE client...")
	c.cancel()
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
	logger.Println("SSE client stopped")
	return nil
}

// Done закрывается, когда поток завершился
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err возвращает причину завершения потока (nil при остановке через Stop)
func (c *Client) Err() error {
	c.errMutex.Lock()
	defer c.errMutex.Unlock()
	return c.err
}

// Send отправляет команду через HTTP. Ответ машинки не используется.
func (c *Client) Send(ctx context.Context, cmd common.Command) error {
	return c.device.SendCommand(ctx, cmd)
}

func (c *Client) setErr(err error) {
	c.errMutex.Lock()
	c.err = err
	c.errMutex.Unlock()
}

// streamLoop читает поток до конца и раскладывает события в обновления статуса
func (c *Client) streamLoop() {
	defer close(c.done)

	err := c.stream()
	if c.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = ErrStreamClosed
	}
	logger.Printf("Event stream error: %v", err)
	c.setErr(err)
}

func (c *Client) stream() error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.device.BaseURL()+c.config.EventsPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to open event stream: HTTP %d", resp.StatusCode)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/event-stream" {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	logger.Println("Event stream connected")

	scanner := NewScanner(resp.Body)
	for scanner.Next() {
		event := scanner.Event()

		update, err := protocol.ParseEvent(event.Type, event.Data)
		if err != nil {
			logger.Printf("Failed to parse event %q: %v", event.Type, err)
			continue
		}

		if common.DebugEnabled() {
			logger.Printf("Received %q (id %s, fields %08b)", update.Source, event.ID, update.Set)
		}

		select {
		case c.updatesChan <- update:
		case <-c.ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}
