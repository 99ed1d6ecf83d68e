package server

import (
	"sync"

	"github.com/firewatch/detection-server/internal/logger"
)

// subscriberBuffer is the per-client channel depth. A viewer that falls this
// far behind is treated as dead rather than allowed to stall the publisher.
const subscriberBuffer = 16

// Hub fans serialized detection events out to live subscribers. It is the
// only owner of the subscriber set; handlers hold nothing but the integer
// handle and the receive channel.
type Hub struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[int]chan []byte)}
}

// Subscribe registers a new client and returns its handle and receive
// channel. The channel is closed when the client is removed.
func (h *Hub) Subscribe() (int, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan []byte, subscriberBuffer)
	h.clients[id] = ch

	logger.Debug("Hub", "Client #%d subscribed (total clients: %d)", id, len(h.clients))
	return id, ch
}

// Unsubscribe removes a client. Calling it for an already-removed handle is a
// no-op.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id int) {
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		logger.Debug("Hub", "Client #%d unsubscribed (remaining clients: %d)", id, len(h.clients))
	}
}

// Publish delivers message to every current subscriber, in publish order per
// subscriber. A subscriber whose buffer is full is removed; the failure never
// reaches the caller or the other subscribers. Returns the number of
// subscribers dropped.
func (h *Hub) Publish(message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	for id, ch := range h.clients {
		select {
		case ch <- message:
		default:
			// Buffer full: the client stopped draining. Drop it.
			logger.Warn("Hub", "Client #%d too slow, dropping", id)
			h.removeLocked(id)
			dropped++
		}
	}
	return dropped
}

// ClientCount returns the current number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
