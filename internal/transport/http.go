// Package transport provides HTTP API handlers.
package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/transactioneer/internal/queue"
	"github.com/gateway-fm/transactioneer/internal/storage"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// Input validation constants
const (
	maxBatchSize = 100_000 // Maximum items per enqueue batch request
	maxValueLen  = 80      // Maximum length of a transfer value string
)

// validateWorkItem checks a work item's payload fields before it enters
// the queue. Builder-level validation still runs at submission time; this
// catches the obviously malformed requests at the API edge.
func validateWorkItem(item *ptypes.WorkItem) error {
	switch item.Kind {
	case "", ptypes.PayloadKindCall:
		// Args are validated against the ABI by the builder.
	case ptypes.PayloadKindTransfer:
		if item.To == "" {
			return fmt.Errorf("transfer requires a 'to' address")
		}
		if len(item.Value) > maxValueLen {
			return fmt.Errorf("transfer value too long")
		}
	default:
		return fmt.Errorf("invalid kind: %s (valid: contract_call, transfer)", item.Kind)
	}
	return nil
}

// EngineAPI is the engine surface the HTTP handlers need.
type EngineAPI interface {
	Enqueue(item ptypes.WorkItem) error
	EnqueueBatch(items []ptypes.WorkItem) (int, error)
	QueueDepth() int
	Stats() ptypes.Stats
	Stop()
}

// HistoryAPI exposes persisted run history to the handlers. Nil when the
// server runs without a database.
type HistoryAPI interface {
	ListRuns(limit, offset int) (*storage.PaginatedRuns, error)
	GetRun(id int64) (*ptypes.RunSummary, error)
	GetSubmissions(runID int64, limit, offset int) (*storage.PaginatedSubmissions, error)
	GetSubmissionByHash(txHash string) (*ptypes.SubmissionRecord, error)
	DeleteRun(id int64) error
}

// HealthChecker reports whether the endpoint pool is reachable.
type HealthChecker interface {
	CheckEndpoints() []EndpointCheck
}

// EndpointCheck is one endpoint's readiness result.
type EndpointCheck struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Server handles HTTP requests for the submission engine.
type Server struct {
	api       EngineAPI
	history   HistoryAPI
	health    HealthChecker
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	corsAllowedOrigins []string
	corsAllowAll       bool
}

// NewServer creates a new HTTP server.
func NewServer(api EngineAPI, history HistoryAPI, health HealthChecker, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	wsServer := NewWebSocketServer(api, logger)
	wsServer.Start()

	s := &Server{
		api:       api,
		history:   history,
		health:    health,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/enqueue", s.corsMiddleware(s.handleEnqueue))
	mux.HandleFunc("/v1/enqueue/batch", s.corsMiddleware(s.handleEnqueueBatch))
	mux.HandleFunc("/v1/stop", s.corsMiddleware(s.handleStop))
	mux.HandleFunc("/v1/runs", s.corsMiddleware(s.handleRuns))
	mux.HandleFunc("/v1/runs/", s.corsMiddleware(s.handleRunDetail))
	mux.HandleFunc("/v1/tx/", s.corsMiddleware(s.handleTxLookup))
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	// Health endpoints (standard Kubernetes probes)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics (standard path)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// handleStatus returns current engine stats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.api.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleEnqueue adds one work item to the queue.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var item ptypes.WorkItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateWorkItem(&item); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.api.Enqueue(item); err != nil {
		s.writeEnqueueError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "queued",
		"queueDepth": s.api.QueueDepth(),
	})
}

// enqueueBatchRequest is the body of POST /v1/enqueue/batch.
type enqueueBatchRequest struct {
	Items []ptypes.WorkItem `json:"items"`
}

// handleEnqueueBatch adds a batch of work items, reporting how many fit.
func (s *Server) handleEnqueueBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		s.writeJSONError(w, "Batch is empty", http.StatusBadRequest)
		return
	}
	if len(req.Items) > maxBatchSize {
		s.writeJSONError(w, fmt.Sprintf("Batch exceeds maximum of %d items", maxBatchSize), http.StatusBadRequest)
		return
	}
	for i := range req.Items {
		if err := validateWorkItem(&req.Items[i]); err != nil {
			s.writeJSONError(w, fmt.Sprintf("Validation error at item %d: %v", i, err), http.StatusBadRequest)
			return
		}
	}

	accepted, err := s.api.EnqueueBatch(req.Items)
	if err != nil && accepted == 0 {
		s.writeEnqueueError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status":     "queued",
		"accepted":   accepted,
		"requested":  len(req.Items),
		"queueDepth": s.api.QueueDepth(),
	}
	if err != nil {
		resp["status"] = "partial"
		resp["error"] = err.Error()
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case err == queue.ErrQueueFull:
		s.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case err == queue.ErrQueueClosed:
		s.writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		s.writeJSONError(w, "Enqueue failed: "+err.Error(), http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleStop requests a cooperative engine shutdown.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.api.Stop()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}

// handleRuns returns persisted run history with pagination.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.writeJSONError(w, "Run history is not enabled", http.StatusNotImplemented)
		return
	}

	limit, offset := parsePagination(r, 50, 100)

	result, err := s.history.ListRuns(limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleRunDetail handles /v1/runs/{id} and /v1/runs/{id}/submissions.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSONError(w, "Run history is not enabled", http.StatusNotImplemented)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeJSONError(w, "Missing run ID", http.StatusBadRequest)
		return
	}

	runID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeJSONError(w, "Invalid run ID: "+parts[0], http.StatusBadRequest)
		return
	}

	if len(parts) > 1 && parts[1] == "submissions" {
		s.handleRunSubmissions(w, r, runID)
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.history.DeleteRun(runID); err != nil {
			s.writeJSONError(w, "Failed to delete run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
		return
	}

	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	run, err := s.history.GetRun(runID)
	if err != nil {
		s.writeJSONError(w, "Failed to get run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		s.writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleRunSubmissions handles GET /v1/runs/{id}/submissions.
func (s *Server) handleRunSubmissions(w http.ResponseWriter, r *http.Request, runID int64) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := parsePagination(r, 100, 1000)

	result, err := s.history.GetSubmissions(runID, limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get submissions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleTxLookup handles GET /v1/tx/{hash}.
func (s *Server) handleTxLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.writeJSONError(w, "Run history is not enabled", http.StatusNotImplemented)
		return
	}

	txHash := strings.TrimPrefix(r.URL.Path, "/v1/tx/")
	if txHash == "" {
		s.writeJSONError(w, "Missing transaction hash", http.StatusBadRequest)
		return
	}

	rec, err := s.history.GetSubmissionByHash(txHash)
	if err != nil {
		s.writeJSONError(w, "Failed to get submission: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		s.writeJSONError(w, "Submission not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func parsePagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxLimit {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// handleReady handles readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var checks []EndpointCheck
	allHealthy := true

	if s.health != nil {
		checks = s.health.CheckEndpoints()
		for _, c := range checks {
			if c.Status != "ok" {
				allHealthy = false
			}
		}
	}

	response := map[string]any{
		"ready":  allHealthy,
		"checks": checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
