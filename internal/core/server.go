// Package core provides the HTTP chassis for the coworkgate API. It builds
// a chi router, applies the cross-cutting middleware chain (recovery,
// request IDs, logging, CORS, metrics, admin auth and kiosk throttling) and
// exposes the JSON response helpers used by every handler.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coworkgate/internal/config"
	"coworkgate/internal/telemetry"
)

// RouteRegistrar mounts a set of handler routes onto a router group.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API. Handlers live in a
// separate package and register themselves through the *Routes slices, which
// keeps core free of domain imports.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   telemetry.Collector

	HealthProbes []HealthProbe
	// Exposed at GET /metrics when non-nil.
	MetricsHandler http.Handler

	// Unauthenticated routes: payment webhook and checkout endpoints.
	PublicRoutes []RouteRegistrar
	// Reception kiosk routes, rate limited per client IP.
	KioskRoutes []RouteRegistrar
	// Operator routes under /admin, guarded by X-Admin-Key.
	AdminRoutes []RouteRegistrar

	// Closed in Shutdown, in order.
	closers []func() error

	kiosk  *ipRateLimiter
	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// The caller registers routes and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger, metrics telemetry.Collector) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.Noop{}
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Metrics:   metrics,
		router:    chi.NewRouter(),
	}
	return s, nil
}

// OnShutdown registers a resource to release when the server stops.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases registered resources. The first failure is returned
// after every closer has run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing server resource", "error", err)
			if first == nil {
				first = fmt.Errorf("releasing server resource: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
