package mqtt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"microrail-remote/common"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
)

// Config представляет конфигурацию MQTT клиента
type Config struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`                 // Включить ретрансляцию в MQTT
	Broker         string        `mapstructure:"broker" yaml:"broker"`                   // Адрес брокера, например "tcp://localhost:1883"
	Username       string        `mapstructure:"username" yaml:"username"`               // Имя пользователя (опционально)
	Password       string        `mapstructure:"password" yaml:"-"`                      // Пароль (опционально)
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`             // ID клиента (опционально, генерируется если пустой)
	Vehicle        string        `mapstructure:"vehicle" yaml:"vehicle"`                 // Имя машинки в топиках, по умолчанию берется из статуса
	DataTopic      string        `mapstructure:"data_topic" yaml:"data_topic"`           // Базовый топик для статуса
	CommandTopic   string        `mapstructure:"command_topic" yaml:"command_topic"`     // Базовый топик для команд
	QoS            byte          `mapstructure:"qos" yaml:"qos"`                         // Quality of Service (0, 1, 2)
	KeepAlive      int           `mapstructure:"keep_alive" yaml:"keep_alive"`           // Интервал keep alive в секундах
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"` // Таймаут подключения
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"` // Таймаут выполнения команды
	AutoReconnect  bool          `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`   // Автоматическое переподключение
}

// generateClientID генерирует случайный ID клиента
func generateClientID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return "microrail-remote-" + hex.EncodeToString(bytes)
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       generateClientID(),
		DataTopic:      "microrail/telemetry",
		CommandTopic:   "microrail/command",
		QoS:            1,
		KeepAlive:      60,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 5 * time.Second,
		AutoReconnect:  true,
	}
}

// TelemetryMessage представляет статус машинки для MQTT.
// Неизвестные поля не попадают в сообщение.
type TelemetryMessage struct {
	Vehicle    string    `json:"vehicle"`
	Speed      *int      `json:"speed,omitempty"`
	Direction  *int      `json:"direction,omitempty"`
	BatVoltage string    `json:"bat_voltage,omitempty"`
	BatRate    string    `json:"bat_rate,omitempty"`
	Name       string    `json:"name,omitempty"`
	SSID       string    `json:"ssid,omitempty"`
	Version    string    `json:"version,omitempty"`
	Stopped    bool      `json:"stopped"`
	Timestamp  time.Time `json:"timestamp"`
}

// CommandMessage представляет входящую команду (используем общий тип)
type CommandMessage = common.CommandMessage

// CommandResponse представляет ответ на команду (используем общий тип)
type CommandResponse = common.CommandResponse

// CommandHandler выполняет команду, пришедшую через MQTT
type CommandHandler func(ctx context.Context, cmd common.Command) error

// Client ретранслирует статус машинки в MQTT и принимает команды из MQTT
type Client struct {
	config           Config
	mqttClient       mqttLib.Client
	statusChan       <-chan common.Status        // Канал статусов от сессии
	handler          CommandHandler              // Отправка команды в машинку
	commandResponses chan common.CommandResponse // Канал для ответов на команды
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	logger           *log.Logger
	vehicle          string // Имя машинки в топиках (может определиться из статуса)
	vehicleMutex     sync.RWMutex
}

// NewClient создает нового MQTT клиента
func NewClient(config Config, statusChan <-chan common.Status, handler CommandHandler) *Client {
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 5 * time.Second
	}
	return &Client{
		config:           config,
		statusChan:       statusChan,
		handler:          handler,
		commandResponses: make(chan common.CommandResponse, 16),
		stopChan:         make(chan struct{}),
		logger:           common.NewLogger("[MQTT-Client] "),
		vehicle:          config.Vehicle,
	}
}

// Start запускает MQTT клиента
func (c *Client) Start() error {
	c.logger.Printf("Starting MQTT client, broker: %s", c.config.Broker)
	c.warnIfVehicleUnknown()

	// Создаем опции подключения
	opts := mqttLib.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetAutoReconnect(c.config.AutoReconnect)

	// Устанавливаем аутентификацию если задана
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
		c.logger.Println("MQTT authentication: ENABLED")
	} else {
		c.logger.Println("MQTT authentication: DISABLED (anonymous mode)")
	}

	// Обработчики событий
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.onConnectionLostHandler)
	opts.SetReconnectingHandler(c.onReconnectingHandler)

	c.mqttClient = mqttLib.NewClient(opts)

	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	// Циклы публикации живут дольше одного подключения
	c.wg.Add(2)
	go c.publishStatusLoop()
	go c.publishResponsesLoop()

	c.logger.Println("MQTT client started successfully")
	return nil
}

// Stop останавливает MQTT клиента
func (c *Client) Stop() error {
	c.logger.Println("Stopping MQTT client...")

	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()

	if c.mqttClient != nil && c.mqttClient.IsConnected() {
		c.mqttClient.Disconnect(1000)
		c.logger.Println("MQTT client disconnected")
	}

	return nil
}

// onConnectHandler вызывается при каждом подключении к брокеру
func (c *Client) onConnectHandler(client mqttLib.Client) {
	c.logger.Println("Connected to MQTT broker")

	commandTopic := fmt.Sprintf("%s/+/request", c.config.CommandTopic)
	if token := client.Subscribe(commandTopic, c.config.QoS, c.onCommandReceived); token.Wait() && token.Error() != nil {
		c.logger.Printf("Failed to subscribe to command topic %s: %v", commandTopic, token.Error())
		return
	}
	c.logger.Printf("Subscribed to command topic: %s", commandTopic)
}

// onConnectionLostHandler вызывается при потере соединения
func (c *Client) onConnectionLostHandler(client mqttLib.Client, err error) {
	c.logger.Printf("Connection lost: %v", err)
}

// onReconnectingHandler вызывается при попытке переподключения
func (c *Client) onReconnectingHandler(client mqttLib.Client, opts *mqttLib.ClientOptions) {
	c.logger.Println("Attempting to reconnect to MQTT broker...")
}

// warnIfVehicleUnknown предупреждает, что без имени машинки ретрансляция молчит
func (c *Client) warnIfVehicleUnknown() {
	if c.Vehicle() == "" {
		c.logger.Println("Warning: mqtt.vehicle is empty; nothing is published and commands are ignored " +
			"until the vehicle reports its name (websocket-text never does)")
	}
}

// topicVehicle извлекает имя машинки из топика "<command_topic>/<vehicle>/request"
func (c *Client) topicVehicle(topic string) string {
	rest := strings.TrimPrefix(topic, c.config.CommandTopic+"/")
	return strings.TrimSuffix(rest, "/request")
}

// onCommandReceived обрабатывает входящие команды
func (c *Client) onCommandReceived(client mqttLib.Client, msg mqttLib.Message) {
	c.logger.Printf("Received command on topic: %s", msg.Topic())

	target := c.topicVehicle(msg.Topic())
	if vehicle := c.Vehicle(); vehicle == "" || target != vehicle {
		c.logger.Printf("Ignoring command for vehicle %q", target)
		return
	}

	var message CommandMessage
	if err := json.Unmarshal(msg.Payload(), &message); err != nil {
		c.logger.Printf("Failed to unmarshal command: %v", err)
		return
	}
	if message.Vehicle != "" && message.Vehicle != target {
		c.logger.Printf("Ignoring command: body names vehicle %q, topic names %q", message.Vehicle, target)
		return
	}

	c.logger.Printf("Processing command: %s (correlation_id: %s)", message.Command, message.CorrelationID)

	cmd, err := common.ParseCommand(message.Command)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.CommandTimeout)
		err = c.handler(ctx, cmd)
		cancel()
	}
	c.PublishCommandResponse(message.CorrelationID, message.Command, err)
}

// publishStatusLoop публикует статус машинки
func (c *Client) publishStatusLoop() {
	defer c.wg.Done()
	c.logger.Println("Starting status publish loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Println("Status publish loop stopped")
			return
		case status, ok := <-c.statusChan:
			if !ok {
				c.logger.Println("Status channel closed")
				return
			}

			if c.Vehicle() == "" && status.Known(common.FieldName) && status.Name != "" {
				c.SetVehicle(status.Name)
			}

			msg, err := c.convertToTelemetryMessage(status)
			if err != nil {
				c.logger.Printf("Failed to convert status: %v", err)
				continue
			}

			if err := c.publishTelemetry(msg); err != nil {
				c.logger.Printf("Failed to publish status: %v", err)
			}
		}
	}
}

// publishResponsesLoop публикует ответы на команды
func (c *Client) publishResponsesLoop() {
	defer c.wg.Done()
	c.logger.Println("Starting responses publish loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Println("Responses publish loop stopped")
			return
		case response, ok := <-c.commandResponses:
			if !ok {
				c.logger.Println("Command responses channel closed")
				return
			}

			if err := c.publishCommandResponse(response); err != nil {
				c.logger.Printf("Failed to publish command response: %v", err)
			}
		}
	}
}

// convertToTelemetryMessage конвертирует статус в MQTT сообщение
func (c *Client) convertToTelemetryMessage(status common.Status) (*TelemetryMessage, error) {
	vehicle := c.Vehicle()
	if vehicle == "" {
		return nil, fmt.Errorf("vehicle name is not known yet")
	}

	msg := &TelemetryMessage{
		Vehicle:   vehicle,
		Stopped:   status.Stopped(),
		Timestamp: time.Now(),
	}
	if status.Known(common.FieldSpeed) {
		speed := status.Speed
		msg.Speed = &speed
	}
	if status.Known(common.FieldDirection) {
		direction := int(status.Direction)
		msg.Direction = &direction
	}
	if status.Known(common.FieldBatVoltage) {
		msg.BatVoltage = status.BatVoltage
	}
	if status.Known(common.FieldBatRate) {
		msg.BatRate = status.BatRate
	}
	if status.Known(common.FieldName) {
		msg.Name = status.Name
	}
	if status.Known(common.FieldSSID) {
		msg.SSID = status.SSID
	}
	if status.Known(common.FieldVersion) {
		msg.Version = status.Version
	}
	return msg, nil
}

// publishTelemetry публикует статус в MQTT
func (c *Client) publishTelemetry(msg *TelemetryMessage) error {
	if c.mqttClient == nil || !c.mqttClient.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry message: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/status", c.config.DataTopic, msg.Vehicle)

	token := c.mqttClient.Publish(topic, c.config.QoS, false, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	if common.DebugEnabled() {
		c.logger.Printf("Published status to %s: %s", topic, payload)
	}
	return nil
}

// publishCommandResponse публикует ответ на команду в MQTT
func (c *Client) publishCommandResponse(response CommandResponse) error {
	if c.mqttClient == nil || !c.mqttClient.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal command response: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/response", c.config.CommandTopic, c.Vehicle())

	token := c.mqttClient.Publish(topic, c.config.QoS, false, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish response to topic %s: %w", topic, token.Error())
	}

	c.logger.Printf("Published command response to %s: %s", topic, response.Status)
	return nil
}

// SetVehicle устанавливает имя машинки для топиков
func (c *Client) SetVehicle(vehicle string) {
	c.vehicleMutex.Lock()
	c.vehicle = vehicle
	c.vehicleMutex.Unlock()
	c.logger.Printf("Vehicle set to: %s", vehicle)
}

// Vehicle возвращает имя машинки для топиков
func (c *Client) Vehicle() string {
	c.vehicleMutex.RLock()
	defer c.vehicleMutex.RUnlock()
	return c.vehicle
}

// IsConnected возвращает true если клиент подключен к брокеру
func (c *Client) IsConnected() bool {
	return c.mqttClient != nil && c.mqttClient.IsConnected()
}

// PublishCommandResponse ставит ответ на команду в очередь публикации
func (c *Client) PublishCommandResponse(correlationID, command string, err error) {
	response := CommandResponse{
		CorrelationID: correlationID,
		Command:       command,
		Status:        "success",
		Timestamp:     time.Now(),
	}

	if err != nil {
		response.Status = "error"
		response.Error = err.Error()
	}

	select {
	case c.commandResponses <- response:
	case <-time.After(1 * time.Second):
		c.logger.Printf("Timeout publishing command response for correlation_id: %s", correlationID)
	}
}
