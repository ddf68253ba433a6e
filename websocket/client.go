package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"microrail-remote/common"
	"microrail-remote/protocol"

	websocketLib "github.com/gorilla/websocket"
)

var logger = common.NewLogger("[WS-Client] ")

// ErrNotConnected возвращается при отправке команды без активного соединения
var ErrNotConnected = errors.New("websocket not connected")

// Config представляет конфигурацию WebSocket клиента
type Config struct {
	URL               string          `mapstructure:"url"`                // Адрес, например "ws://192.168.4.1/ws"
	Subprotocol       string          `mapstructure:"subprotocol"`        // Подпротокол, машинка ожидает "arduino"
	Format            protocol.Format `mapstructure:"format"`             // Формат входящих сообщений: text или json
	ReconnectInterval time.Duration   `mapstructure:"reconnect_interval"` // Пауза перед повторным подключением
	HandshakeTimeout  time.Duration   `mapstructure:"handshake_timeout"`  // Таймаут рукопожатия
	WriteTimeout      time.Duration   `mapstructure:"write_timeout"`      // Таймаут на запись команды
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		URL:               URLForHost("192.168.4.1"),
		Subprotocol:       "arduino",
		Format:            protocol.FormatText,
		ReconnectInterval: 2 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      1 * time.Second,
	}
}

// URLForHost строит адрес WebSocket для хоста машинки
func URLForHost(host string) string {
	return "ws://" + host + "/ws"
}

// Client представляет WebSocket соединение с машинкой.
// Клиент сам владеет политикой переподключения: после потери соединения
// он ждет ReconnectInterval и подключается снова, без ограничения числа попыток.
type Client struct {
	config      Config
	dialer      *websocketLib.Dialer
	conn        *websocketLib.Conn
	connMutex   sync.RWMutex
	writeMutex  sync.Mutex
	updatesChan chan<- common.Update // Канал для разобранных входящих сообщений
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewClient создает нового WebSocket клиента
func NewClient(config Config, updatesChan chan<- common.Update) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultConfig().ReconnectInterval
	}

	subprotocols := []string{}
	if config.Subprotocol != "" {
		subprotocols = append(subprotocols, config.Subprotocol)
	}

	return &Client{
		config: config,
		dialer: &websocketLib.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			Subprotocols:     subprotocols,
		},
		updatesChan: updatesChan,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает цикл подключения
func (c *Client) Start() error {
	if c.config.URL == "" {
		return fmt.Errorf("websocket URL is empty")
	}
	format, err := protocol.ParseFormat(string(c.config.Format))
	if err != nil {
		return err
	}
	c.config.Format = format

	logger.Printf("Starting WebSocket client: %s (format %s)", c.config.URL, c.config.Format)

	c.wg.Add(1)
	go c.connectLoop()

	return nil
}

// Stop закрывает соединение и останавливает переподключение
func (c *Client) Stop() error {
	logger.Println("Stopping WebSocket client...")
	c.cancel()
	c.closeConnection()
	c.wg.Wait()
	logger.Println("WebSocket client stopped")
	return nil
}

// IsConnected возвращает true если соединение установлено
func (c *Client) IsConnected() bool {
	return c.getConnection() != nil
}

// Send отправляет команду кадром "#NAME"
func (c *Client) Send(ctx context.Context, cmd common.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownCommand, cmd)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn := c.getConnection()
	if conn == nil {
		return ErrNotConnected
	}

	frame := protocol.EncodeCommand(cmd)

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocketLib.TextMessage, []byte(frame)); err != nil {
		logger.Printf("Write error: %v", err)
		conn.Close()
		return fmt.Errorf("failed to send %s: %w", frame, err)
	}

	logger.Printf("Command sent: %s", frame)
	return nil
}

// getConnection получает соединение
func (c *Client) getConnection() *websocketLib.Conn {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.conn
}

// setConnection устанавливает соединение, если клиент еще не остановлен
func (c *Client) setConnection(conn *websocketLib.Conn) bool {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.ctx.Err() != nil {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

// closeConnection закрывает текущее соединение
func (c *Client) closeConnection() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// dial выполняет рукопожатие с машинкой
func (c *Client) dial() (*websocketLib.Conn, error) {
	conn, _, err := c.dialer.DialContext(c.ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	if c.config.Subprotocol != "" && conn.Subprotocol() != c.config.Subprotocol {
		logger.Printf("Warning: server selected subprotocol %q, requested %q", conn.Subprotocol(), c.config.Subprotocol)
	}
	return conn, nil
}

// connectLoop подключается, читает до ошибки и переподключается через фиксированную паузу
func (c *Client) connectLoop() {
	defer c.wg.Done()

	for {
		logger.Println("Trying to open a WebSocket connection...")

		conn, err := c.dial()
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Printf("Connection error: %v", err)
			}
		} else if c.setConnection(conn) {
			logger.Println("WebSocket connected")
			c.readLoop(conn)
			c.closeConnection()
			logger.Println("Connection closed")
		}

		select {
		case <-c.ctx.Done():
			logger.Println("Connect loop stopped")
			return
		case <-time.After(c.config.ReconnectInterval):
		}
	}
}

// readLoop читает сообщения до ошибки соединения
func (c *Client) readLoop(conn *websocketLib.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Printf("Read error: %v", err)
			}
			return
		}

		update, err := protocol.Decode(c.config.Format, data)
		if err != nil {
			logger.Printf("Failed to parse message %q: %v", data, err)
			continue
		}

		if common.DebugEnabled() {
			logger.Printf("Received %q (fields %08b)", update.Source, update.Set)
		}

		select {
		case c.updatesChan <- update:
		case <-c.ctx.Done():
			return
		}
	}
}
