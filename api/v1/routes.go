package v1

import (
	"net/http"

	"github.com/gorilla/mux"

	"sinhome/internal/chat"
	"sinhome/internal/gateway/handlers"
	"sinhome/internal/gateway/websocket"
	"sinhome/internal/provider"
	"sinhome/internal/storage"
)

// LogStore reads stored conversation logs.
type LogStore interface {
	ListLogs(sessionID string, limit int) ([]*storage.LogRecord, error)
	GetLog(id int64) (*storage.LogRecord, error)
}

// RouterDeps holds dependencies for the v1 API router.
type RouterDeps struct {
	Chat    *chat.Service
	Logs    LogStore
	Hub     *websocket.Hub
	Version string
}

// Router wraps v1 API dependencies.
type Router struct {
	chat    *chat.Service
	logs    LogStore
	hub     *websocket.Hub
	version string
}

// NewRouter creates a new v1 API router.
func NewRouter(deps *RouterDeps) *Router {
	if deps == nil {
		deps = &RouterDeps{}
	}
	return &Router{
		chat:    deps.Chat,
		logs:    deps.Logs,
		hub:     deps.Hub,
		version: deps.Version,
	}
}

// RegisterRoutes registers all v1 API routes.
func (r *Router) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", r.HandleHealth).Methods(http.MethodGet)

	// Chat
	v1.HandleFunc("/chat", r.HandleChat).Methods(http.MethodPost)
	v1.HandleFunc("/chat/script", r.HandleScript).Methods(http.MethodPost)

	// Conversation logs
	v1.HandleFunc("/logs", r.HandleListLogs).Methods(http.MethodGet)
	v1.HandleFunc("/logs/stream", r.HandleLogStream).Methods(http.MethodGet)
	v1.HandleFunc("/logs/{id:[0-9]+}", r.HandleGetLog).Methods(http.MethodGet)
}

// HandleHealth returns the health status of the API.
func (r *Router) HandleHealth(w http.ResponseWriter, req *http.Request) {
	deps := handlers.HealthDeps{Version: r.version}
	if r.hub != nil {
		deps.StreamClients = r.hub.ClientCount
	}
	if r.chat != nil {
		deps.Backend = r.chat.Backend()
		if p, ok := r.chat.Completer().(provider.Pinger); ok {
			deps.Ping = p.Ping
		}
	}
	handlers.HealthHandler(deps).ServeHTTP(w, req)
}
