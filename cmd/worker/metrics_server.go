package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsfromai/internal/usecase/notify"
)

// HealthResponse is the body of the metrics server's liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ChannelHealthResponse is the body of GET /health/channels.
type ChannelHealthResponse struct {
	Healthy  bool                   `json:"healthy"`
	Channels []notify.ChannelHealth `json:"channels"`
}

// channelReporter is implemented by *notify.Service.
type channelReporter interface {
	ChannelHealth() []notify.ChannelHealth
}

// newMetricsMux exposes GET /metrics for gatherer, GET /health and
// GET /health/channels. channels may be nil when notifications are off.
func newMetricsMux(gatherer prometheus.Gatherer, channels channelReporter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /health/channels", channelHealthHandler(channels))
	return mux
}

// startMetricsServer serves Prometheus metrics on port until ctx is
// canceled, then shuts down within five seconds.
func startMetricsServer(ctx context.Context, logger *slog.Logger, port int, channels channelReporter) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newMetricsMux(prometheus.DefaultGatherer, channels),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
			return err
		}
		logger.Info("metrics server stopped")
		return http.ErrServerClosed
	case err := <-errChan:
		return err
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
}

// channelHealthHandler answers 503 when any channel's breaker is open or
// notifications are off.
func channelHealthHandler(channels channelReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if channels == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "notifications disabled"})
			return
		}

		resp := ChannelHealthResponse{Healthy: true, Channels: channels.ChannelHealth()}
		for _, ch := range resp.Channels {
			if ch.CircuitBreakerOpen {
				resp.Healthy = false
			}
		}
		if resp.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
