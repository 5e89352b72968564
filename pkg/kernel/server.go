package kernel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/services"
	"github.com/manthysbr/aule-weather/pkg/mcp"
)

// Deps are the services the API fronts. Videos, Metrics and MediaDir are
// optional; their routes answer 503 or 404 when unset.
type Deps struct {
	Agent    *services.ReActAgentService
	Convs    *services.ConversationStore
	Videos   *services.NarratedVideoService
	Tools    *domain.ToolRegistry
	Bus      *services.EventBus
	MCP      *mcp.Server
	Metrics  http.Handler
	MediaDir string
}

type Server struct {
	logger *slog.Logger
	deps   Deps
	spec   *openapi3.T
	// heartbeat is the SSE keep-alive period.
	heartbeat time.Duration
}

func NewServer(logger *slog.Logger, spec *openapi3.T, deps Deps) *Server {
	return &Server{logger: logger, deps: deps, spec: spec, heartbeat: 15 * time.Second}
}

// Handler returns the http.Handler for the server.
// JSON routes are validated against the OpenAPI document; streaming and
// operational routes are mounted beside them.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(validateRequests(s.spec))
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleDeleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/events", s.handleConversationSSE).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleBroadcastSSE).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", s.handleGetAsset).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}/cancel", s.handleCancelAsset).Methods(http.MethodPost)
	api.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	api.HandleFunc("/tools/{name}/run", s.handleRunTool).Methods(http.MethodPost)
	api.HandleFunc("/mcp", s.handleMCP).Methods(http.MethodPost)

	if s.deps.MediaDir != "" {
		files := http.StripPrefix("/v1/media/", http.FileServer(http.Dir(s.deps.MediaDir)))
		r.Handle("/v1/media/{file:[A-Za-z0-9._-]+\\.mp4}", files).Methods(http.MethodGet, http.MethodHead)
	}
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
