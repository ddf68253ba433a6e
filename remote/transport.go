package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"microrail-remote/common"
	"microrail-remote/device"
	"microrail-remote/protocol"
	"microrail-remote/sse"
	"microrail-remote/websocket"
)

// Transport соединение с машинкой: входящая телеметрия и исходящие команды
type Transport interface {
	Start() error
	Stop() error
	Send(ctx context.Context, cmd common.Command) error
}

// finite реализуют транспорты, которые не восстанавливают соединение
type finite interface {
	Done() <-chan struct{}
	Err() error
}

// Kind вариант транспорта
type Kind string

const (
	KindWebSocketText Kind = "websocket-text" // WebSocket, кадры "A:..." и "B:..."
	KindWebSocketJSON Kind = "websocket-json" // WebSocket, JSON-объект статуса
	KindSSE           Kind = "sse"            // Server-Sent Events + GET /cmd
)

// Kinds перечисляет поддерживаемые варианты
var Kinds = []Kind{KindWebSocketText, KindWebSocketJSON, KindSSE}

// ParseKind разбирает имя варианта
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported transport %q (want one of %v)", name, Kinds)
}

// Options параметры построения транспорта
type Options struct {
	Kind              Kind
	Host              string        // Хост машинки, например "192.168.4.1"
	ReconnectInterval time.Duration // Только для WebSocket
	RequestTimeout    time.Duration // Таймаут HTTP запросов /cmd
}

// TransportFactory строит транспорт, пишущий обновления в updates
type TransportFactory func(updates chan<- common.Update) (Transport, error)

// Factory возвращает фабрику транспорта для заданных параметров
func Factory(opts Options) TransportFactory {
	return func(updates chan<- common.Update) (Transport, error) {
		return NewTransport(opts, updates)
	}
}

// NewTransport строит транспорт выбранного варианта
func NewTransport(opts Options, updates chan<- common.Update) (Transport, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("vehicle host is empty")
	}

	switch opts.Kind {
	case KindWebSocketText, KindWebSocketJSON:
		config := websocket.DefaultConfig()
		config.URL = websocket.URLForHost(opts.Host)
		config.Format = protocol.FormatText
		if opts.Kind == KindWebSocketJSON {
			config.Format = protocol.FormatJSON
		}
		if opts.ReconnectInterval > 0 {
			config.ReconnectInterval = opts.ReconnectInterval
		}
		return websocket.NewClient(config, updates), nil

	case KindSSE:
		return sse.NewClient(sse.DefaultConfig(), NewDeviceClient(opts), updates), nil
	}

	return nil, fmt.Errorf("unsupported transport %q", opts.Kind)
}

// NewDeviceClient строит HTTP клиента машинки
func NewDeviceClient(opts Options) *device.Client {
	config := device.DefaultConfig()
	config.BaseURL = device.BaseURLForHost(opts.Host)
	if opts.RequestTimeout > 0 {
		config.Timeout = opts.RequestTimeout
	}
	return device.NewClient(config)
}
