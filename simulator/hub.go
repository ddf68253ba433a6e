package simulator

import (
	"sync"

	"microrail-remote/common"
)

// Notification изменение статуса, которое рассылается подписчикам
type Notification struct {
	Fields common.Field  // Какие поля изменились
	Status common.Status // Полный статус после изменения
}

// Subscriber подключенный пульт (WebSocket или поток событий)
type Subscriber struct {
	ID   string
	Kind string
	Send chan Notification
}

// Hub рассылает изменения статуса всем подключенным пультам
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]bool)}
}

// Register добавляет подписчика
func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	h.subscribers[s] = true
	total := len(h.subscribers)
	h.mu.Unlock()
	logger.Printf("%s client registered: %s, total clients: %d", s.Kind, s.ID, total)
}

// Unregister удаляет подписчика и закрывает его канал
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.Send)
	}
	total := len(h.subscribers)
	h.mu.Unlock()
	logger.Printf("%s client unregistered: %s, total clients: %d", s.Kind, s.ID, total)
}

// Count возвращает число подписчиков
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast отправляет уведомление всем подписчикам (неблокирующе)
func (h *Hub) Broadcast(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		select {
		case s.Send <- n:
		default:
			logger.Printf("Warning: client %s is too slow, dropping update", s.ID)
		}
	}
}

// CloseAll отключает всех подписчиков
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		delete(h.subscribers, s)
		close(s.Send)
	}
}
