package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"sinhome/internal/gateway/handlers"
	"sinhome/internal/gateway/websocket"
	"sinhome/internal/storage"
	"sinhome/pkg/logger"
)

// HandleListLogs lists recent stored conversation logs. Query parameters:
// session_id filters by session, limit bounds the result.
func (r *Router) HandleListLogs(w http.ResponseWriter, req *http.Request) {
	if r.logs == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "Log storage not available")
		return
	}

	limit := DefaultLogsLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxLogsLimit)
	}

	records, err := r.logs.ListLogs(req.URL.Query().Get("session_id"), limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list logs")
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to list logs")
		return
	}

	entries := make([]LogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toLogEntry(rec))
	}
	handlers.SendJSON(w, http.StatusOK, LogsResponse{Logs: entries, Count: len(entries)})
}

// HandleGetLog returns one stored log row.
func (r *Router) HandleGetLog(w http.ResponseWriter, req *http.Request) {
	if r.logs == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "Log storage not available")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid log id")
		return
	}

	rec, err := r.logs.GetLog(id)
	if errors.Is(err, storage.ErrNotFound) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "log not found")
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("Failed to get log")
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to get log")
		return
	}
	handlers.SendJSON(w, http.StatusOK, toLogEntry(rec))
}

// HandleLogStream upgrades to a WebSocket that receives every finished
// conversation log block. session_id restricts the stream to one session.
func (r *Router) HandleLogStream(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "Log stream not available")
		return
	}
	websocket.ServeStream(r.hub, w, req)
}
