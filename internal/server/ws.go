package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firewatch/detection-server/internal/logger"
)

// wsKeepaliveInterval paces server pings on an otherwise idle feed so dead
// connections are noticed.
const wsKeepaliveInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from another origin; the API is open anyway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleDetectionsWS serves the live feed: one JSON detection event per
// broadcast. Client frames are read and discarded; they only matter as a
// disconnect signal.
func (s *Server) handleDetectionsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS", "Upgrade failed: %v", err)
		return
	}

	id, eventCh := s.hub.Subscribe()
	s.metrics.ActiveSubscribers.Store(uint64(s.hub.ClientCount()))
	logger.Info("WS", "Client #%d connected", id)

	defer func() {
		s.hub.Unsubscribe(id)
		_ = conn.Close()
		s.metrics.ActiveSubscribers.Store(uint64(s.hub.ClientCount()))
		logger.Info("WS", "Client #%d disconnected", id)
	}()

	// Reader goroutine: discard inbound frames, surface the disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case message, ok := <-eventCh:
			if !ok {
				// Dropped by the hub (slow consumer).
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WS", "Client #%d write failed: %v", id, err)
				return
			}
		case <-done:
			return
		case <-time.After(wsKeepaliveInterval):
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				logger.Debug("WS", "Client #%d keepalive failed: %v", id, err)
				return
			}
		}
	}
}
