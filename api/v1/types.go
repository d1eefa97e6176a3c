// Package v1 provides API v1 data types and handlers.
package v1

import (
	"encoding/json"
	"time"

	"sinhome/internal/chat"
	"sinhome/internal/provider"
	"sinhome/internal/storage"
)

// Logs listing bounds.
const (
	DefaultLogsLimit = storage.DefaultListLimit
	MaxLogsLimit     = 500
)

// =============================================================================
// Chat API Models
// =============================================================================

// ChatRequest is the body of the chat and script endpoints. message and
// history contents are either strings or lists of typed parts.
type ChatRequest struct {
	SessionID     string                 `json:"session_id,omitempty"`
	Message       provider.Content       `json:"message"`
	SystemPrompt  string                 `json:"system_prompt,omitempty"`
	History       []provider.Turn        `json:"history,omitempty"`
	Temperature   *float64               `json:"temperature,omitempty"`
	TopP          *float64               `json:"top_p,omitempty"`
	MaxTokens     *int                   `json:"max_tokens,omitempty"`
	Stop          provider.StopSequences `json:"stop,omitempty"`
	ScriptCouples *int                   `json:"script_couples,omitempty"`
}

// ToChat converts the body to a service request.
func (c ChatRequest) ToChat(requestID string) chat.Request {
	return chat.Request{
		SessionID:     c.SessionID,
		RequestID:     requestID,
		Message:       c.Message,
		SystemPrompt:  c.SystemPrompt,
		History:       c.History,
		Temperature:   c.Temperature,
		TopP:          c.TopP,
		MaxTokens:     c.MaxTokens,
		Stop:          c.Stop,
		ScriptCouples: c.ScriptCouples,
		Payload:       c.payload(),
	}
}

// payload returns the body without its history, as logged.
func (c ChatRequest) payload() map[string]any {
	c.History = nil
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ChatMeta describes how a chat response was obtained.
type ChatMeta struct {
	DupReprompts   int    `json:"dup_reprompts"`
	UsedSummary    bool   `json:"used_summary"`
	HistorySummary string `json:"history_summary,omitempty"`
	Backend        string `json:"backend"`
	RequestID      string `json:"request_id"`
	RefusalRetry   bool   `json:"refusal_retry,omitempty"`
	Shortened      bool   `json:"shortened,omitempty"`
}

// ChatResponse is the answer of the chat and script endpoints.
type ChatResponse struct {
	Response string   `json:"response"`
	Meta     ChatMeta `json:"meta"`
}

// NewChatResponse builds the response body of a service answer.
func NewChatResponse(resp *chat.Response) ChatResponse {
	return ChatResponse{
		Response: resp.Text,
		Meta: ChatMeta{
			DupReprompts:   resp.Meta.DupReprompts,
			UsedSummary:    resp.Meta.UsedSummary,
			HistorySummary: resp.Meta.Summary,
			Backend:        resp.Backend,
			RequestID:      resp.RequestID,
			RefusalRetry:   resp.Refused,
			Shortened:      resp.Shortened,
		},
	}
}

// =============================================================================
// Logs API Models
// =============================================================================

// LogEntry is one stored conversation log row.
type LogEntry struct {
	ID          int64           `json:"id"`
	RequestID   string          `json:"request_id,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Endpoint    string          `json:"endpoint"`
	UserMessage string          `json:"user_message,omitempty"`
	Response    string          `json:"response,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LogsResponse lists stored log rows, newest first.
type LogsResponse struct {
	Logs  []LogEntry `json:"logs"`
	Count int        `json:"count"`
}

func toLogEntry(rec *storage.LogRecord) LogEntry {
	return LogEntry{
		ID:          rec.ID,
		RequestID:   rec.RequestID,
		SessionID:   rec.SessionID,
		Endpoint:    rec.Endpoint,
		UserMessage: rec.UserMessage,
		Response:    rec.Response,
		Meta:        rec.Meta,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
	}
}
