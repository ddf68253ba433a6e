package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"microrail-remote/common"
)

var logger = common.NewLogger("[Device-HTTP] ")

// Config представляет конфигурацию HTTP клиента машинки
type Config struct {
	BaseURL string        `mapstructure:"base_url"` // Например "http://192.168.4.1"
	Timeout time.Duration `mapstructure:"timeout"`  // Таймаут одного запроса
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		BaseURL: BaseURLForHost("192.168.4.1"),
		Timeout: 5 * time.Second,
	}
}

// BaseURLForHost строит базовый HTTP адрес для хоста машинки
func BaseURLForHost(host string) string {
	return "http://" + host
}

// Client обращается к HTTP API машинки: /cmd, /config, /setup
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient создает HTTP клиента машинки
func NewClient(config Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// BaseURL возвращает базовый адрес машинки
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.config.BaseURL, "/")
}

// SendCommand отправляет GET /cmd?command=NAME. Тело ответа не используется.
func (c *Client) SendCommand(ctx context.Context, cmd common.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownCommand, cmd)
	}

	query := url.Values{"command": {string(cmd)}}
	endpoint := c.BaseURL() + "/cmd?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create command request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send command %s: %w", cmd, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	logger.Printf("Command sent: %s (HTTP %d)", cmd, resp.StatusCode)
	return nil
}

// FetchConfig читает текущую конфигурацию машинки через GET /config
func (c *Client) FetchConfig(ctx context.Context) (DeviceConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/config", nil)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("failed to create config request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("failed to fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeviceConfig{}, fmt.Errorf("failed to fetch config: HTTP %d", resp.StatusCode)
	}

	var config DeviceConfig
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return DeviceConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// SetupRequest новые настройки машинки для POST /setup
type SetupRequest struct {
	Name           string
	WlanSSID       string
	Password       string
	MotorFrequency int
	MotorMaxSpeed  int
	MotorSpeedStep int
}

// form кодирует запрос в поля формы, которые ожидает машинка
func (r SetupRequest) form() url.Values {
	return url.Values{
		"name":            {r.Name},
		"wlanssid":        {r.WlanSSID},
		"password":        {r.Password},
		"motor-frequency": {strconv.Itoa(r.MotorFrequency)},
		"motor-maxspeed":  {strconv.Itoa(r.MotorMaxSpeed)},
		"motor-speedstep": {strconv.Itoa(r.MotorSpeedStep)},
	}
}

// Setup сохраняет настройки через POST /setup. Машинка применяет их после перезапуска.
func (c *Client) Setup(ctx context.Context, r SetupRequest) error {
	body := strings.NewReader(r.form().Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/setup", body)
	if err != nil {
		return fmt.Errorf("failed to create setup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post setup: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to post setup: HTTP %d", resp.StatusCode)
	}

	logger.Printf("Setup saved for %q", r.Name)
	return nil
}
