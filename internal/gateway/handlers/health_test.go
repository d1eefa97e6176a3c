package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func getHealth(t *testing.T, deps HealthDeps) HealthResponse {
	t.Helper()
	InitStartTime()

	w := httptest.NewRecorder()
	HealthHandler(deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		deps       HealthDeps
		wantStatus string
		wantErr    string
		wantStream int
	}{
		{
			name: "healthy",
			deps: HealthDeps{
				Version:       "v1.0.0",
				Backend:       "vllm",
				Ping:          func(context.Context) error { return nil },
				StreamClients: func() int { return 3 },
			},
			wantStatus: StatusOK,
			wantStream: 3,
		},
		{
			name: "backend down",
			deps: HealthDeps{
				Version: "dev",
				Ping:    func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: StatusDegraded,
			wantErr:    "connection refused",
		},
		{
			name:       "no probes",
			deps:       HealthDeps{Version: "dev"},
			wantStatus: StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := getHealth(t, tt.deps)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if resp.Version != tt.deps.Version || resp.Backend != tt.deps.Backend {
				t.Errorf("version = %s, backend = %s", resp.Version, resp.Backend)
			}
			if resp.BackendError != tt.wantErr {
				t.Errorf("backend_error = %q, want %q", resp.BackendError, tt.wantErr)
			}
			if resp.StreamClients != tt.wantStream {
				t.Errorf("stream_clients = %d, want %d", resp.StreamClients, tt.wantStream)
			}
			if resp.Uptime < 0 {
				t.Errorf("uptime = %d", resp.Uptime)
			}
		})
	}
}

func TestHealthHandler_PingDeadline(t *testing.T) {
	var deadline time.Time
	getHealth(t, HealthDeps{Ping: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}})

	if left := time.Until(deadline); left <= 0 || left > PingTimeout {
		t.Errorf("ping deadline %v away, want within %v", left, PingTimeout)
	}
}

func TestInitStartTime_Once(t *testing.T) {
	InitStartTime()
	first := startedAt.Load()
	InitStartTime()
	if startedAt.Load() != first {
		t.Error("InitStartTime reset the start time")
	}
}
