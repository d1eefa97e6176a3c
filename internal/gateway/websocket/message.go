// Package websocket streams finished conversation log entries to
// connected clients.
package websocket

// Frame is the JSON object exchanged in both directions.
type Frame struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Path    string `json:"path,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"ts,omitempty"` // unix milliseconds
}

// Frame types. Clients send subscribe, unsubscribe and ping.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeLog         = "log"
	TypeReload      = "reload"
	TypeError       = "error"
)

// Error codes carried by error frames.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnknownType    = "UNKNOWN_TYPE"
)

// outbound is a queued frame and the session it belongs to. An empty
// session reaches every client.
type outbound struct {
	session string
	data    []byte
}
