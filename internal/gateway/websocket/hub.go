package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sinhome/pkg/logger"
)

// DefaultBufferSize is the broadcast queue length used when none is given.
const DefaultBufferSize = 256

// Hub fans finished log frames out to the connected clients. A frame for
// a session reaches unsubscribed clients and the session's subscribers;
// a frame without session reaches everyone.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
}

// NewHub creates a hub whose queue holds bufferSize frames. Frames are
// dropped while the queue is full.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, bufferSize),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then stops
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			logger.Info().Str("client_id", c.id).Int("clients", n).Msg("Log stream client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(c)
			h.mu.Unlock()
			logger.Info().Str("client_id", c.id).
				Dur("connected", time.Since(c.connectedAt)).
				Msg("Log stream client disconnected")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(msg.session) && !c.queue(msg.data) {
			logger.Debug().Str("client_id", c.id).Msg("Slow log stream client, frame dropped")
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.stop()
	}
}

// Register adds c. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and stops it.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe narrows c to the sessions it subscribed to.
func (h *Hub) Subscribe(c *Client, session string) {
	h.mu.Lock()
	c.sessions[session] = true
	h.mu.Unlock()
	logger.Debug().Str("client_id", c.id).Str("session", session).Msg("Log stream subscribed")
}

// Unsubscribe removes session from c. With no subscription left the
// client receives every frame again.
func (h *Hub) Unsubscribe(c *Client, session string) {
	h.mu.Lock()
	delete(c.sessions, session)
	h.mu.Unlock()
}

// Broadcast queues data for session without blocking. It reports false
// when the queue is full and the frame was dropped.
func (h *Hub) Broadcast(session string, data []byte) bool {
	select {
	case h.broadcast <- outbound{session: session, data: data}:
		return true
	default:
		logger.Debug().Str("session", session).Msg("Log stream queue full, frame dropped")
		return false
	}
}

// BroadcastAll queues data for every client.
func (h *Hub) BroadcastAll(data []byte) bool {
	return h.Broadcast("", data)
}

// BroadcastLog publishes a finished conversation log block.
func (h *Hub) BroadcastLog(sessionID, block string) {
	data, err := json.Marshal(Frame{
		Type:    TypeLog,
		Session: sessionID,
		Message: block,
		Time:    time.Now().UnixMilli(),
	})
	if err == nil {
		h.Broadcast(sessionID, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
