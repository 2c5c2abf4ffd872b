package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"newsfromai/internal/usecase/ingest"
)

// PipelineStatus is the read-only view of the orchestrator exposed on
// /health/pipeline. *ingest.Orchestrator implements it.
type PipelineStatus interface {
	Phase() ingest.Phase
	BreakerOpen() bool
	LastStats() *ingest.RunStats
}

// HealthServer serves the worker probes:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true), else 503
//   - GET /health/pipeline: current phase, breaker state and last run
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	isReady  atomic.Bool
	pipeline PipelineStatus
	server   *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

type lastRun struct {
	RunID       string   `json:"run_id"`
	Status      string   `json:"status"`
	Inserted    int      `json:"inserted"`
	Generated   int      `json:"generated"`
	Duplicated  int      `json:"duplicated"`
	FailedSteps []string `json:"failed_steps,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

type pipelineResponse struct {
	Phase       string   `json:"phase"`
	BreakerOpen bool     `json:"breaker_open"`
	LastRun     *lastRun `json:"last_run,omitempty"`
}

// NewHealthServer creates a server listening on addr. pipeline may be nil.
func NewHealthServer(addr string, logger *slog.Logger, pipeline PipelineStatus) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{addr: addr, logger: logger, pipeline: pipeline}
}

// Handler returns the probe routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/pipeline", h.handlePipeline)
	return mux
}

// Start serves until ctx is canceled, then shuts down within five seconds.
// It returns http.ErrServerClosed after a graceful stop.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errChan <- h.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the readiness probe.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handlePipeline answers 503 while the content-shape breaker is open so
// probes can alert on a provider returning unusable output.
func (h *HealthServer) handlePipeline(w http.ResponseWriter, _ *http.Request) {
	if h.pipeline == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "pipeline not initialized"})
		return
	}
	resp := pipelineResponse{
		Phase:       string(h.pipeline.Phase()),
		BreakerOpen: h.pipeline.BreakerOpen(),
	}
	if s := h.pipeline.LastStats(); s != nil {
		resp.LastRun = &lastRun{
			RunID:       s.RunID,
			Status:      s.Status(),
			Inserted:    s.Inserted,
			Generated:   s.Generated,
			Duplicated:  s.Duplicated,
			FailedSteps: s.FailedSteps,
			DurationMS:  s.Duration.Milliseconds(),
		}
	}
	code := http.StatusOK
	if resp.BreakerOpen {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
