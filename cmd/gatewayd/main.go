// Command gatewayd runs the DICOM protocol gateway: it loads the TOML
// configuration, wires the egress backends and pipeline middleware it
// names, binds one HTTP router per configured network, starts any DIMSE
// Storage SCP listeners the pipelines require, and serves until an
// interrupt or termination signal triggers graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dicomgateway/gatewayd/internal/backends"
	"github.com/dicomgateway/gatewayd/internal/config"
	"github.com/dicomgateway/gatewayd/internal/dimse/client"
	"github.com/dicomgateway/gatewayd/internal/dimse/scp"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	gatewaymw "github.com/dicomgateway/gatewayd/internal/middleware"
	"github.com/dicomgateway/gatewayd/internal/resilience"
	"github.com/dicomgateway/gatewayd/internal/router"
	"github.com/dicomgateway/gatewayd/internal/shared/metrics"
	"github.com/dicomgateway/gatewayd/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gatewayd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	storageBackend := storage.NewFilesystem(cfg.Storage.Path)
	scu := buildSCU(cfg)
	backendRegistry := buildBackendRegistry(cfg, scu, storageBackend, logger)
	middlewareSet, err := buildMiddleware(cfg, logger)
	if err != nil {
		return fmt.Errorf("build middleware: %w", err)
	}
	scpRegistry := scp.New(logger)

	drainCfg := resilience.DefaultResilienceConfig().Shutdown
	if cfg.Proxy.AssociationIdleTimeout > 0 {
		drainCfg.DrainPeriod = cfg.Proxy.AssociationIdleTimeout
	}
	shutdownCoordinator := resilience.NewShutdownCoordinator(drainCfg, resilience.WithShutdownLogger(logger))

	promRegistry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(promRegistry)

	deps := router.Deps{
		Backends:     backendRegistry,
		Middleware:   middlewareSet,
		Storage:      storageBackend,
		SCPRegistry:  scpRegistry,
		Logger:       logger,
		Metrics:      httpMetrics,
		PromRegistry: promRegistry,
		Shutdown:     shutdownCoordinator,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers, err := startNetworks(ctx, cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("start networks: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	return shutdown(servers, scpRegistry, shutdownCoordinator, cfg, logger)
}

// buildSCU constructs the one shared DIMSE SCU client every dimse/echo
// backend dispatches through, with a destination entry per configured
// backend that names a called AET.
func buildSCU(cfg *config.Config) *client.SCU {
	callingAET := "GATEWAY"
	var destinations []client.Destination
	for _, b := range cfg.Backends {
		if b.Kind != config.BackendDimse && b.Kind != config.BackendEcho {
			continue
		}
		if b.CallingAET != "" {
			callingAET = b.CallingAET
		}
		if b.CalledAET == "" {
			continue
		}
		destinations = append(destinations, client.Destination{
			AET:        b.CalledAET,
			Address:    b.Host + ":" + strconv.Itoa(b.Port),
			Resilience: resilienceFor(b.Resilience),
		})
	}
	return client.NewSCU(callingAET, destinations, cfg.Proxy.ConnectTimeout)
}

// resilienceFor converts one backend's loaded config.ResilienceConfig into
// the resilience.ResilienceConfig the SCU's dial guard needs. A zero value
// (no resilience block configured) is left zero; client.NewSCU falls back
// to resilience.DefaultResilienceConfig for it.
func resilienceFor(cfg config.ResilienceConfig) resilience.ResilienceConfig {
	if (cfg == config.ResilienceConfig{}) {
		return resilience.ResilienceConfig{}
	}
	return resilience.NewResilienceConfig(
		resilience.CircuitBreakerSettings{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		},
		resilience.RetrySettings{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
	)
}

func buildBackendRegistry(cfg *config.Config, scu *client.SCU, storageBackend storage.Backend, logger *slog.Logger) *backends.Registry {
	reg := backends.NewRegistry(logger)
	for name, b := range cfg.Backends {
		switch b.Kind {
		case config.BackendDimse:
			reg.Register(name, backends.NewDIMSE(name, scu, storageBackend))
		case config.BackendFHIR:
			reg.Register(name, backends.NewFHIR(name, b.BaseURL, b.ConnectTimeout))
		case config.BackendJMIX:
			reg.Register(name, backends.NewJMIX(name, storageBackend))
		case config.BackendEcho:
			reg.Register(name, backends.NewEcho(name, b.CalledAET, scu))
		}
	}
	return reg
}

func buildMiddleware(cfg *config.Config, logger *slog.Logger) (map[string]envelope.Middleware, error) {
	deps := gatewaymw.Dependencies{
		Logger: func(outcome envelope.Outcome, method, uri string) {
			logger.Debug("middleware", "outcome", int(outcome), "method", method, "uri", uri)
		},
	}

	built := make(map[string]envelope.Middleware, len(cfg.Middleware))
	for name, instance := range cfg.Middleware {
		typeCfg, ok := cfg.MiddlewareTypes[instance.Type]
		if !ok {
			return nil, fmt.Errorf("middleware %q references unknown middleware_type %q", name, instance.Type)
		}
		mw, err := gatewaymw.Build(name, instance, typeCfg, deps)
		if err != nil {
			return nil, err
		}
		built[name] = mw
	}
	return built, nil
}

func startNetworks(ctx context.Context, cfg *config.Config, deps router.Deps, logger *slog.Logger) ([]*http.Server, error) {
	servers := make([]*http.Server, 0, len(cfg.Network))
	for name, ncfg := range cfg.Network {
		mux, err := router.BuildNetwork(ctx, cfg, name, deps)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", name, err)
		}

		srv := &http.Server{Addr: ncfg.BindAddr, Handler: mux}
		servers = append(servers, srv)

		go func(network string, s *http.Server) {
			logger.Info("http listener started", "network", network, "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http listener failed", "network", network, "error", err)
			}
		}(name, srv)
	}
	return servers, nil
}

// shutdown stops accepting new HTTP requests, waits for in-flight ones to
// drain (bounded by the shutdown coordinator's DrainPeriod), then closes the
// HTTP listeners and DIMSE Storage SCP listeners. shutdownCoordinator is the
// same instance every network's httpHandler checks per request, so once
// InitiateShutdown runs, new requests are rejected with 503 immediately
// rather than racing http.Server.Shutdown's own in-flight tracking.
func shutdown(servers []*http.Server, scpRegistry *scp.Registry, shutdownCoordinator resilience.ShutdownCoordinator, cfg *config.Config, logger *slog.Logger) error {
	drain := cfg.Proxy.AssociationIdleTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	shutdownCoordinator.InitiateShutdown()
	if err := shutdownCoordinator.WaitForDrain(ctx); err != nil {
		logger.Warn("http request drain did not complete", "error", err)
	}

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				logger.Warn("http server shutdown error", "error", err)
			}
		}(srv)
	}
	wg.Wait()

	scpRegistry.StopAll()
	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
