// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest assembles the passkey ceremony service into an HTTP
// server: router, middleware chain, health and metrics endpoints.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

// resourceCollectInterval is how often runtime resource gauges are
// refreshed while the server runs.
const resourceCollectInterval = 30 * time.Second

// Server represents the REST API server.
type Server struct {
	server        *http.Server
	service       *passkey.Service
	cfg           *config.Config
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
	checker       *health.Checker
	collector     *metrics.ResourceCollector
	stopSweep     context.CancelFunc
	closeBackends func() error
}

// NewServer creates a new REST API server from the loaded
// configuration. The ceremony service and its stores are built by
// BuildService in stores.go.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	bundle, err := BuildService(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
	})

	var collector *metrics.ResourceCollector
	if cfg.Metrics.Enabled {
		metrics.Enable()
		collector = metrics.StartResourceCollector(context.Background(), resourceCollectInterval)
	} else {
		metrics.Disable()
	}

	checker := health.NewChecker()
	if bundle.StorageCheck != nil {
		checker.RegisterCheck("storage", bundle.StorageCheck)
	}
	checker.MarkStarted()

	server := &Server{
		service:       bundle.Service,
		cfg:           cfg,
		limiter:       limiter,
		logger:        logger,
		checker:       checker,
		collector:     collector,
		stopSweep:     bundle.StopSweep,
		closeBackends: bundle.Close,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware()) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	if s.cfg.Health.Enabled {
		r.Get(s.cfg.Health.Path, s.HealthHandler)
		r.Head(s.cfg.Health.Path, s.HealthHandler)
	}

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	// Ceremony routes, rate limited per client IP
	handler := passkeyhttp.NewHandler(s.service).WithLogger(s.logger)
	r.Route("/api/v1/webauthn", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter))
		passkeyhttp.MountChi(r, handler)
	})

	return r
}

// HealthHandler runs the registered readiness checks and reports the
// aggregate status. Unhealthy aggregates map to 503 so load balancers
// drain the instance.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	status := health.AggregateStatus(results)

	code := http.StatusOK
	if status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}

	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"uptime": s.checker.Uptime().Round(time.Second).String(),
		"checks": results,
	}); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		s.logger.Info("Starting HTTPS server",
			"addr", s.server.Addr,
			"rp_id", s.cfg.RelyingParty.ID)

		if err := s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server",
			"addr", s.server.Addr,
			"rp_id", s.cfg.RelyingParty.ID)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	s.checker.MarkNotStarted()

	if s.collector != nil {
		s.collector.Stop()
	}
	if s.stopSweep != nil {
		s.stopSweep()
	}
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if s.closeBackends != nil {
		if err := s.closeBackends(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Service returns the ceremony service, used by tests and the CLI.
func (s *Server) Service() *passkey.Service {
	return s.service
}

// Handler returns the configured router, used by httptest servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
