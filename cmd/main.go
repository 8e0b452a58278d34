package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/hookline/internal/adapters/http/api"
	"github.com/okian/hookline/internal/adapters/http/swagger"
	service "github.com/okian/hookline/internal/app"
	"github.com/okian/hookline/internal/config"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/internal/version"
	"github.com/okian/hookline/pkg/logger"
	"github.com/okian/hookline/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithOptions(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	registerRuntimeCollectors(ctx)

	if err := run(ctx, cfg, logger.Get()); err != nil {
		logger.Get().Error(ctx, "collector exited", logger.Error(err))
		os.Exit(1)
	}
}

// run serves both listeners until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc := service.New(
		service.WithLogger(log),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	collectorMux, otlpMux := newMuxes(ctx, cfg, svc, log)

	collectorLn, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	otlpLn, err := net.Listen("tcp", cfg.OTLPAddr)
	if err != nil {
		_ = collectorLn.Close()
		return fmt.Errorf("listen %s: %w", cfg.OTLPAddr, err)
	}

	servers := []*http.Server{newHTTPServer(collectorMux), newHTTPServer(otlpMux)}
	listeners := []net.Listener{collectorLn, otlpLn}
	names := []string{"collector", "otlp"}

	errCh := make(chan error, len(servers))
	for i := range servers {
		srv, ln, name := servers[i], listeners[i], names[i]
		log.Info(ctx, "starting HTTP server",
			logger.String("listener", name),
			logger.String("addr", ln.Addr().String()),
			logger.String("version", version.Collector()),
		)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	log.Info(ctx, "shutting down servers...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.String("listener", names[i]), logger.Error(err))
		}
	}

	log.Info(ctx, "servers stopped")
	return serveErr
}

// newMuxes builds the collector mux and the OTLP receiver mux.
func newMuxes(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) (*http.ServeMux, *http.ServeMux) {
	apiServer := api.NewServer(svc,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithPrivacyTier(model.PrivacyTier(cfg.OTLPPrivacyTier)),
		api.WithLogger(log),
	)

	collectorMux := http.NewServeMux()
	swagger.Register(ctx, collectorMux)
	apiServer.Register(ctx, collectorMux)

	otlpMux := http.NewServeMux()
	apiServer.RegisterOTLP(ctx, otlpMux)

	return collectorMux, otlpMux
}

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// custom registry served on /metrics.
func registerRuntimeCollectors(ctx context.Context) {
	if err := metrics.RegisterCollector(collectors.NewGoCollector()); err != nil {
		logger.Get().Warn(ctx, "go collector not registered", logger.Error(err))
	}
	if err := metrics.RegisterCollector(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		logger.Get().Warn(ctx, "process collector not registered", logger.Error(err))
	}
}

// startServiceMetricsUpdater periodically mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.Stats()
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerCount(stats.WorkerCount)
}
