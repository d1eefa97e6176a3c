package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sinhome/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait / 2
	maxControlSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one log stream connection. With no subscription it receives
// every frame.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once

	// guarded by hub.mu
	sessions map[string]bool

	connectedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		id:          uuid.NewString(),
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		sessions:    make(map[string]bool),
		connectedAt: time.Now(),
	}
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

// wants reports whether a frame for session should reach c.
func (c *Client) wants(session string) bool {
	return session == "" || len(c.sessions) == 0 || c.sessions[session]
}

// queue hands data to the write loop. It drops the frame when the
// client is slow or gone.
func (c *Client) queue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// stop ends the write loop. Safe to call more than once.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Client) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.queue(data)
}

func (c *Client) handleFrame(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.reply(Frame{Type: TypeError, Code: CodeInvalidMessage, Message: "failed to parse message"})
		return
	}

	switch f.Type {
	case TypeSubscribe:
		if f.Session == "" {
			c.reply(Frame{Type: TypeError, Code: CodeInvalidRequest, Message: "subscribe requires session"})
			return
		}
		c.hub.Subscribe(c, f.Session)
	case TypeUnsubscribe:
		if f.Session != "" {
			c.hub.Unsubscribe(c, f.Session)
		}
	case TypePing:
		c.reply(Frame{Type: TypePong, Time: time.Now().UnixMilli()})
	default:
		c.reply(Frame{Type: TypeError, Code: CodeUnknownType, Message: "unknown frame type " + f.Type})
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Str("client_id", c.id).Msg("Log stream read failed")
			}
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				logger.Debug().Err(err).Str("client_id", c.id).Msg("Log stream write failed")
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
			return
		}
	}
}

// ServeStream upgrades the request and attaches the connection to hub.
// A session_id query parameter subscribes it to that session.
func ServeStream(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Log stream upgrade failed")
		return
	}

	c := newClient(hub, conn)
	if session := r.URL.Query().Get("session_id"); session != "" {
		c.sessions[session] = true
	}
	if !hub.Register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}
