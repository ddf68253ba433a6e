package remote

import (
	"context"
	"fmt"
	"sync"

	"microrail-remote/common"
)

var logger = common.NewLogger("[Session] ")

// Listener получает каждый новый статус
type Listener func(common.Status)

// Session держит одно соединение с машинкой и последний известный статус
type Session struct {
	transport Transport
	updates   chan common.Update

	mu        sync.RWMutex
	status    common.Status
	listeners []Listener
}

// NewSession создает сессию с транспортом из фабрики
func NewSession(factory TransportFactory) (*Session, error) {
	updates := make(chan common.Update, 32)
	transport, err := factory(updates)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Session{
		transport: transport,
		updates:   updates,
		status:    common.NewStatus(),
	}, nil
}

// OnStatus добавляет подписчика на изменения статуса
func (s *Session) OnStatus(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Status возвращает последний известный статус
func (s *Session) Status() common.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Send отправляет одну команду. Статус меняется только по ответной телеметрии.
func (s *Session) Send(ctx context.Context, cmd common.Command) error {
	if err := s.transport.Send(ctx, cmd); err != nil {
		logger.Printf("Failed to send %s: %v", cmd, err)
		return err
	}
	return nil
}

// Run запускает транспорт и применяет обновления, пока не отменен ctx
// или пока транспорт без переподключения не закончит работу.
func (s *Session) Run(ctx context.Context) error {
	if err := s.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	defer s.transport.Stop()

	var transportDone <-chan struct{}
	if f, ok := s.transport.(finite); ok {
		transportDone = f.Done()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-transportDone:
			s.drain()
			if err := s.transport.(finite).Err(); err != nil {
				return fmt.Errorf("transport finished: %w", err)
			}
			return nil
		case update := <-s.updates:
			s.apply(update)
		}
	}
}

// drain применяет обновления, которые успели прийти до завершения транспорта
func (s *Session) drain() {
	for {
		select {
		case update := <-s.updates:
			s.apply(update)
		default:
			return
		}
	}
}

func (s *Session) apply(update common.Update) {
	if update.Empty() {
		return
	}

	s.mu.Lock()
	s.status = s.status.Apply(update)
	status := s.status
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(status)
	}
}
