// Package api wires the collector and OTLP receiver onto HTTP muxes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/hookline/internal/app"
	"github.com/okian/hookline/internal/domain/ingest"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
	"github.com/okian/hookline/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxBodyBytes int64 = 4 << 20

// Collector is the part of the service the HTTP layer depends on.
type Collector interface {
	HandleRaw(ctx context.Context, req ingest.RawRequest) ingest.Response
	IngestBatch(ctx context.Context, events []model.EventEnvelope) service.BatchResult
	Stats() service.Stats
}

// Server wires HTTP routes for the collector.
type Server struct {
	collectorHandler *CollectorHandler
	statsHandler     *StatsHandler
	otlpHandler      *OTLPHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Collector, opts ...Option) *Server {
	cfg := &config{
		maxBodyBytes: defaultMaxBodyBytes,
		privacyTier:  model.PrivacyTierStandard,
		clock:        time.Now,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		collectorHandler: NewCollectorHandler(svc, cfg.maxBodyBytes),
		statsHandler:     NewStatsHandler(svc),
		otlpHandler:      newOTLPHandler(svc, cfg),
	}
}

// Register attaches the collector routes to mux. Paths the collector does not
// know fall through to it as well so every miss gets the same JSON 404.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc(ingest.PathHealth, MetricsMiddleware(s.collectorHandler.Handle, "health"))
	mux.HandleFunc(ingest.PathHooks, MetricsMiddleware(s.collectorHandler.Handle, "hooks"))
	mux.HandleFunc(ingest.PathHookStats, MetricsMiddleware(s.collectorHandler.Handle, "hook_stats"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/", MetricsMiddleware(s.collectorHandler.Handle, "other"))
}

// RegisterOTLP attaches the OTLP/HTTP logs receiver to mux.
func (s *Server) RegisterOTLP(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc(PathOTLPLogs, MetricsMiddleware(s.otlpHandler.HandleLogs, "otlp_logs"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ingest.ErrorPayload{Status: ingest.StatusError, Message: msg})
}
