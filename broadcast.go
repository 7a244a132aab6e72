package threatlens

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// EventNewAlert is the dashboard feed event carrying a freshly
// persisted alert.
const EventNewAlert = "newAlert"

// Broadcaster is the push channel to connected dashboard sessions.
// Emit is one-way: no return value, no acknowledgment, no retry.
// Implementations must never block the caller.
type Broadcaster interface {
	Emit(event string, payload any)
}

// NopBroadcaster drops every event. Used when no push channel is
// wired, e.g. in one-shot tools and most tests.
type NopBroadcaster struct{}

func (NopBroadcaster) Emit(string, any) {}

type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type wsSession struct {
	send chan []byte
}

// Hub fans events out to all connected WebSocket sessions. Delivery is
// best-effort at-most-once: a session whose buffer is full loses the
// frame, a hub with no sessions drops silently, and nothing is
// reported back to the emitter.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[*wsSession]struct{})}
}

// sessionBuffer bounds per-session queued frames before drops begin.
const sessionBuffer = 64

// Emit marshals the event envelope once and offers it to every
// session without blocking.
func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(wsEnvelope{Event: event, Data: payload})
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("broadcast encode failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		select {
		case s.send <- data:
		default:
			observeBroadcastDrop()
		}
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) register(s *wsSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	setBroadcastSessions(n)
}

// unregister removes the session and closes its send channel. Emit
// holds the read lock while sending, so after removal no writes can
// race the close.
func (h *Hub) unregister(s *wsSession) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.send)
	}
	n := len(h.sessions)
	h.mu.Unlock()
	setBroadcastSessions(n)
}

// Serve pumps events to one WebSocket connection until the peer goes
// away. It is the body for a fiber websocket handler and blocks for
// the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn) {
	s := &wsSession{send: make(chan []byte, sessionBuffer)}
	h.register(s)
	defer h.unregister(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for data := range s.send {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()

	// The dashboard never sends application messages; reading only
	// detects disconnects and control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(s)
	<-done
}
