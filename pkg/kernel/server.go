package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/manthysbr/auleagent/internal/config"
	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/services"
)

// Agent is the part of services.AgentService the HTTP shell drives.
type Agent interface {
	Connected() bool
	Catalog() *domain.CapabilityRegistry
	Suggest(text string)
	RunReport(ctx context.Context, req services.RunRequest) (domain.RunReport, error)
}

// RunStore reads persisted runs and their execution log.
type RunStore interface {
	GetRun(ctx context.Context, id domain.RunID) (domain.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	ListExecutionLog(ctx context.Context, runID domain.RunID) ([]domain.ExecutionLogRecord, error)
}

// TraceStore reads traces evicted from the in-memory collector.
type TraceStore interface {
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)
	GetTraceByRun(ctx context.Context, runID domain.RunID) (*domain.Trace, error)
}

type Server struct {
	logger   *slog.Logger
	agent    Agent
	eventBus *services.EventBus
	tracer   *services.TraceCollector
	runs     RunStore   // optional
	traces   TraceStore // optional
	cfg      *domain.AppConfig
	upgrader websocket.Upgrader
}

// NewServer wires the shell. runs and traces may be nil.
func NewServer(
	logger *slog.Logger,
	agent Agent,
	eventBus *services.EventBus,
	tracer *services.TraceCollector,
	runs RunStore,
	traces TraceStore,
	cfg *domain.AppConfig,
) *Server {
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}
	s := &Server{
		logger:   logger,
		agent:    agent,
		eventBus: eventBus,
		tracer:   tracer,
		runs:     runs,
		traces:   traces,
		cfg:      cfg,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler mounts every route and wraps them with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/config", s.handleGetConfig)
	mux.HandleFunc("GET /v1/capabilities", s.handleListCapabilities)

	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/runs/{id}/log", s.handleRunLog)
	mux.HandleFunc("POST /v1/suggestions", s.handleSuggest)

	// Tracing API
	mux.HandleFunc("GET /v1/traces", s.handleListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleGetTrace)

	// Live events, one topic per socket
	mux.HandleFunc("GET /v1/ws", s.handleEventsWS)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := fmt.Sscanf(l, "%d", &limit); n != 1 || err != nil || limit <= 0 {
			return def
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"connected": s.agent.Connected(),
	})
}

// GET /v1/config, secrets masked
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.Masked(s.cfg))
}

// handleListCapabilities returns the merged catalog.
// GET /v1/capabilities
func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	type capInfo struct {
		Name        string                 `json:"name"`
		Origin      string                 `json:"origin"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	}

	caps := []capInfo{}
	stats := map[string]int{"total": 0, "remote": 0, "local": 0}
	if catalog := s.agent.Catalog(); catalog != nil {
		for _, c := range catalog.List() {
			caps = append(caps, capInfo{
				Name:        c.Name,
				Origin:      string(c.Origin),
				Description: c.Description,
				Parameters:  c.Parameters,
			})
			stats["total"]++
			stats[string(c.Origin)]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": caps,
		"stats":        stats,
	})
}

// --- Tracing API ---

// handleListTraces returns recent traces.
// GET /v1/traces?limit=50
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	traces := s.tracer.ListTraces(queryLimit(r, 50, 500))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"traces": traces,
		"count":  len(traces),
	})
}

// handleGetTrace returns a single trace with all spans. Traces that left the
// in-memory ring are read from the store.
// GET /v1/traces/{id}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := domain.TraceID(r.PathValue("id"))
	if id == "" || strings.Contains(string(id), "/") {
		writeError(w, http.StatusBadRequest, "invalid trace id")
		return
	}

	trace, err := s.tracer.GetTrace(id)
	if err != nil && s.traces != nil {
		trace, err = s.traces.GetTrace(r.Context(), id)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) runStoreOr404(w http.ResponseWriter) bool {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run storage is disabled")
		return false
	}
	return true
}

var errEmptyGoal = errors.New("goal is required")
