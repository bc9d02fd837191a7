package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"coworkgate/internal/types"
)

// defaultRequestTimeout applies when the config leaves REQUEST_TIMEOUT unset.
const defaultRequestTimeout = 25 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Admin-Key",
	"X-Signature",
}

// MountRoutes registers the global middleware chain and every route group.
// It must be called once, after the *Routes slices are populated.
//
//	GET  /health             public
//	GET  /metrics            public, when MetricsHandler is set
//	*    PublicRoutes        public
//	*    KioskRoutes         rate limited per client IP
//	*    /admin/AdminRoutes  X-Admin-Key
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}

	s.router.Group(func(r chi.Router) {
		for _, register := range s.PublicRoutes {
			register(r)
		}
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.KioskRateLimit)
		for _, register := range s.KioskRoutes {
			register(r)
		}
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.AdminAuth)
		for _, register := range s.AdminRoutes {
			register(r)
		}
	})
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer       catches panics; outermost.
//  2. ContextTimeout  soft deadline for downstream calls.
//  3. RequestID       correlation ID, also injected into the logger.
//  4. SecurityHeaders
//  5. RequestLogger   structured access log with redacted headers.
//  6. CORS
//  7. Metrics         labelled by chi route pattern.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// observe cancellation through the context passed to the store and gateway.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware propagates the caller's X-Request-Id or generates a
// new one. The ID is stored in the context and echoed in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
