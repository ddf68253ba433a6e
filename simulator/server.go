package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"microrail-remote/common"
	"microrail-remote/device"
	"microrail-remote/protocol"
	"microrail-remote/sse"

	"github.com/google/uuid"
	websocketLib "github.com/gorilla/websocket"
)

var logger = common.NewLogger("[Simulator] ")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Config содержит настройки симулятора машинки
type Config struct {
	Addr           string              `mapstructure:"addr"`
	Format         protocol.Format     `mapstructure:"format"`
	Version        string              `mapstructure:"version"`
	MotionInterval time.Duration       `mapstructure:"motion_interval"`
	PowerInterval  time.Duration       `mapstructure:"power_interval"`
	DrainPerCheck  float64             `mapstructure:"drain_per_check"`
	Device         device.DeviceConfig `mapstructure:"device"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Format:         protocol.FormatText,
		Version:        "sim-1.0",
		MotionInterval: 100 * time.Millisecond,
		PowerInterval:  30 * time.Second,
		DrainPerCheck:  0.05,
		Device: device.DeviceConfig{
			Name:           "microrail-sim",
			WlanSSID:       "microrail",
			MotorFrequency: 100,
			MotorMaxSpeed:  100,
			MotorSpeedStep: 10,
			MotorInertia:   200,
			IPAddress:      "192.168.4.1",
			MacAddress:     "02:00:00:00:00:01",
		},
	}
}

// Server эмулирует машинку: WebSocket /ws, поток событий /events и HTTP API
type Server struct {
	config  Config
	vehicle *Vehicle
	hub     *Hub

	upgrader websocketLib.Upgrader
	server   *http.Server
	eventID  atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer создает новый симулятор
func NewServer(config Config) (*Server, error) {
	if config.Format == "" {
		config.Format = protocol.FormatText
	}
	format, err := protocol.ParseFormat(string(config.Format))
	if err != nil {
		return nil, err
	}
	config.Format = format
	if config.MotionInterval <= 0 || config.PowerInterval <= 0 {
		return nil, fmt.Errorf("motion and power intervals must be positive, got %v and %v",
			config.MotionInterval, config.PowerInterval)
	}

	s := &Server{
		config:  config,
		vehicle: NewVehicle(config.Device, config.Version),
		hub:     NewHub(),
		upgrader: websocketLib.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"arduino"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.Handler(),
	}
	return s, nil
}

// Vehicle возвращает модель машинки
func (s *Server) Vehicle() *Vehicle {
	return s.vehicle
}

// Hub возвращает рассыльщик обновлений
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler возвращает маршрутизатор HTTP-запросов
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/cmd", s.handleCommand)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/setup", s.handleSetup)
	return mux
}

// Start запускает HTTP-сервер и моделирование
func (s *Server) Start(ctx context.Context) error {
	logger.Printf("Simulator listening on %s (format %s)", s.config.Addr, s.config.Format)

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
	return nil
}

// Stop останавливает HTTP-сервер
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	logger.Println("Simulator stopped")
	return err
}

// Run моделирует разгон и разряд аккумулятора, пока не отменен ctx
func (s *Server) Run(ctx context.Context) {
	motion := time.NewTicker(s.config.MotionInterval)
	defer motion.Stop()
	power := time.NewTicker(s.config.PowerInterval)
	defer power.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-motion.C:
			s.Step()
		case <-power.C:
			s.CheckPower()
		}
	}
}

// Step выполняет один шаг разгона и рассылает новую скорость
func (s *Server) Step() {
	if s.vehicle.Tick() {
		if common.DebugEnabled() {
			logger.Printf("Motor duty %.1f%%", s.vehicle.Duty())
		}
		s.publish(common.FieldSpeed)
	}
}

// CheckPower разряжает аккумулятор и рассылает его состояние
func (s *Server) CheckPower() {
	s.vehicle.Drain(s.config.DrainPerCheck)
	s.publish(common.FieldBattery)
}

// HandleCommand выполняет команду от любого пульта
func (s *Server) HandleCommand(cmd common.Command) {
	logger.Printf("Command: %s", cmd)
	if s.vehicle.HandleCommand(cmd) {
		s.publish(common.FieldDirection)
	}
}

func (s *Server) publish(fields common.Field) {
	s.hub.Broadcast(Notification{Fields: fields, Status: s.vehicle.Status()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	sub := &Subscriber{
		ID:   uuid.New().String(),
		Kind: "websocket",
		Send: make(chan Notification, sendBuffer),
	}
	sub.Send <- Notification{Fields: common.FieldAll, Status: s.vehicle.Status()}
	s.hub.Register(sub)
	logger.Printf("WebSocket client connected: %s from %s", sub.ID, r.RemoteAddr)

	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

// readPump принимает команды "#NAME" от пульта
func (s *Server) readPump(conn *websocketLib.Conn, sub *Subscriber) {
	defer func() {
		s.hub.Unregister(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocketLib.IsUnexpectedCloseError(err, websocketLib.CloseGoingAway, websocketLib.CloseAbnormalClosure) {
				logger.Printf("WebSocket error for client %s: %v", sub.ID, err)
			}
			return
		}

		cmd, err := protocol.DecodeCommand(string(message))
		if err != nil {
			logger.Printf("Ignoring frame from client %s: %v", sub.ID, err)
			continue
		}
		s.HandleCommand(cmd)
	}
}

// writePump отправляет обновления статуса пульту
func (s *Server) writePump(conn *websocketLib.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case n, ok := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocketLib.CloseMessage, []byte{})
				return
			}

			messages, err := s.encode(n)
			if err != nil {
				logger.Printf("Failed to encode status: %v", err)
				continue
			}
			for _, message := range messages {
				if err := conn.WriteMessage(websocketLib.TextMessage, message); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocketLib.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// encode формирует сообщения WebSocket для уведомления в выбранном формате
func (s *Server) encode(n Notification) ([][]byte, error) {
	if s.config.Format == protocol.FormatJSON {
		payload, err := protocol.MarshalStatus(n.Status)
		if err != nil {
			return nil, err
		}
		return [][]byte{payload}, nil
	}

	var messages [][]byte
	if n.Fields&common.FieldMotion != 0 {
		messages = append(messages, []byte(protocol.FormatMotionFrame(n.Status.Direction, n.Status.Speed)))
	}
	if n.Fields&common.FieldBattery != 0 {
		messages = append(messages, []byte(protocol.FormatBatteryFrame(n.Status.BatVoltage, n.Status.BatRate)))
	}
	return messages, nil
}

// events формирует события потока /events для уведомления
func events(n Notification) ([]sse.Event, error) {
	var out []sse.Event
	if n.Fields.Has(common.FieldInfo) {
		payload, err := protocol.MarshalStart(n.Status)
		if err != nil {
			return nil, err
		}
		out = append(out, sse.Event{Type: protocol.EventStart, Data: string(payload)})
	}
	if n.Fields.Has(common.FieldSpeed) {
		out = append(out, sse.Event{Type: protocol.EventSpeed, Data: strconv.Itoa(n.Status.Speed)})
	}
	if n.Fields.Has(common.FieldDirection) {
		out = append(out, sse.Event{Type: protocol.EventDirection, Data: strconv.Itoa(int(n.Status.Direction))})
	}
	if n.Fields.Has(common.FieldBatVoltage) {
		out = append(out, sse.Event{Type: protocol.EventBatVoltage, Data: n.Status.BatVoltage})
	}
	if n.Fields.Has(common.FieldBatRate) {
		out = append(out, sse.Event{Type: protocol.EventBatRate, Data: n.Status.BatRate})
	}
	return out, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := &Subscriber{
		ID:   uuid.New().String(),
		Kind: "events",
		Send: make(chan Notification, sendBuffer),
	}
	sub.Send <- Notification{Fields: common.FieldAll, Status: s.vehicle.Status()}
	s.hub.Register(sub)
	defer s.hub.Unregister(sub)
	logger.Printf("Event stream client connected: %s from %s", sub.ID, r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-sub.Send:
			if !ok {
				return
			}
			list, err := events(n)
			if err != nil {
				logger.Printf("Failed to encode events: %v", err)
				continue
			}
			for _, event := range list {
				if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", s.eventID.Add(1), event.Type, event.Data); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

// handleCommand отвечает "ok" и затем выполняет команду
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("command")
	if name == "" {
		http.Error(w, "command parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))

	cmd, err := common.ParseCommand(name)
	if err != nil {
		logger.Printf("Ignoring command: %v", err)
		return
	}
	s.HandleCommand(cmd)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.vehicle.Config()); err != nil {
		logger.Printf("Failed to write config: %v", err)
	}
}

// handleSetup принимает форму настройки и сохраняет конфигурацию
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	config := s.vehicle.Config()
	if v := r.PostForm.Get("name"); v != "" {
		config.Name = v
	}
	if v := r.PostForm.Get("wlanssid"); v != "" {
		config.WlanSSID = v
	}
	if v := r.PostForm.Get("password"); v != "" {
		config.WlanPassword = v
	}
	config.MotorFrequency = formInt(r, "motor-frequency", config.MotorFrequency)
	config.MotorMaxSpeed = formInt(r, "motor-maxspeed", config.MotorMaxSpeed)
	config.MotorSpeedStep = formInt(r, "motor-speedstep", config.MotorSpeedStep)

	fixed := s.vehicle.SetConfig(config)
	if len(fixed) > 0 {
		logger.Printf("Setup values out of range, using defaults for: %v", fixed)
	}
	s.publish(common.FieldInfo)

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// formInt читает число из формы. Пустое поле оставляет текущее значение,
// нечисловое дает 0, который потом заменит нормализация.
func formInt(r *http.Request, key string, current device.Int) device.Int {
	v := r.PostForm.Get(key)
	if v == "" {
		return current
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return device.Int(n)
}
