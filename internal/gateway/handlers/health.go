package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// PingTimeout bounds the backend probe of one health request.
const PingTimeout = 3 * time.Second

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

var startedAt atomic.Int64

// InitStartTime records the server start. Later calls are ignored.
func InitStartTime() {
	startedAt.CompareAndSwap(0, time.Now().UnixNano())
}

func uptime() int64 {
	start := startedAt.Load()
	if start == 0 {
		return 0
	}
	return int64(time.Since(time.Unix(0, start)).Seconds())
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        int64  `json:"uptime"` // seconds
	Backend       string `json:"backend,omitempty"`
	BackendError  string `json:"backend_error,omitempty"`
	StreamClients int    `json:"stream_clients"`
}

// HealthDeps are the optional probes of the health handler.
type HealthDeps struct {
	Version string
	Backend string
	// Ping checks the completion backend. Nil skips the check.
	Ping func(ctx context.Context) error
	// StreamClients counts live log stream connections.
	StreamClients func() int
}

// HealthHandler always answers 200: a failing backend ping only turns
// the status to "degraded".
func HealthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  StatusOK,
			Version: deps.Version,
			Uptime:  uptime(),
			Backend: deps.Backend,
		}
		if deps.StreamClients != nil {
			resp.StreamClients = deps.StreamClients()
		}
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), PingTimeout)
			err := deps.Ping(ctx)
			cancel()
			if err != nil {
				resp.Status = StatusDegraded
				resp.BackendError = err.Error()
			}
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
