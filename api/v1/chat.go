package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"sinhome/internal/chat"
	"sinhome/internal/gateway/handlers"
	"sinhome/internal/gateway/middleware"
	"sinhome/internal/runner"
)

type chatFunc func(ctx context.Context, req chat.Request) (*chat.Response, error)

// HandleChat answers with the budget-aware window and the retry ladder.
func (r *Router) HandleChat(w http.ResponseWriter, req *http.Request) {
	if r.chat == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "Chat service not available")
		return
	}
	r.serveChat(w, req, r.chat.Chat)
}

// HandleScript answers with the couple-trim window and a single call.
func (r *Router) HandleScript(w http.ResponseWriter, req *http.Request) {
	if r.chat == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "Chat service not available")
		return
	}
	r.serveChat(w, req, r.chat.Script)
}

func (r *Router) serveChat(w http.ResponseWriter, req *http.Request, run chatFunc) {
	var chatReq ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&chatReq); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if chatReq.Message.IsEmpty() {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "Message is required")
		return
	}

	resp, err := run(req.Context(), chatReq.ToChat(middleware.RequestID(req.Context())))
	if err != nil {
		if errors.Is(err, runner.ErrEmptyMessage) {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "Message is required")
			return
		}
		handlers.SendBackendError(w, err)
		return
	}

	handlers.SendJSON(w, http.StatusOK, NewChatResponse(resp))
}
