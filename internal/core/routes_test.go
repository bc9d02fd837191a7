package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"coworkgate/internal/types"
)

func newTestServerForRoutes(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv.Config.Security.AdminKeyHash = types.SecretString(hash)

	srv.PublicRoutes = append(srv.PublicRoutes, func(r chi.Router) {
		r.Post("/webhook/mercadopago", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		})
	})
	srv.KioskRoutes = append(srv.KioskRoutes, func(r chi.Router) {
		r.Post("/access/toggle", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"action": "check_in"})
		})
	})
	srv.AdminRoutes = append(srv.AdminRoutes, func(r chi.Router) {
		r.Get("/students/{id}/membership", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
		})
	})
	srv.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv.MountRoutes()
	return srv
}

func TestMountRoutes_Groups(t *testing.T) {
	srv := newTestServerForRoutes(t)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"webhook is public", http.MethodPost, "/webhook/mercadopago", "", http.StatusOK},
		{"kiosk toggle", http.MethodPost, "/access/toggle", "", http.StatusOK},
		{"admin without key", http.MethodGet, "/admin/students/s1/membership", "", http.StatusUnauthorized},
		{"admin with key", http.MethodGet, "/admin/students/s1/membership", testAdminKey, http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMountRoutes_NoMetricsHandler(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMountRoutes_GlobalHeaders(t *testing.T) {
	srv := newTestServerForRoutes(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a generated X-Request-Id")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestMountRoutes_KioskGroupIsRateLimited(t *testing.T) {
	srv := newTestServerForRoutes(t) // burst 2

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/access/toggle", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want third request throttled", codes)
	}

	// The webhook shares the client IP but is not throttled.
	req := httptest.NewRequest(http.MethodPost, "/webhook/mercadopago", nil)
	req.RemoteAddr = "198.51.100.4:1000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("webhook status = %d", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "mp-req-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "mp-req-7" || rec.Header().Get("X-Request-Id") != "mp-req-7" {
		t.Errorf("propagated id = %q / %q", seen, rec.Header().Get("X-Request-Id"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Errorf("generated id = %q, want a UUID", seen)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
		<-r.Context().Done()
		if r.Context().Err() != context.DeadlineExceeded {
			t.Errorf("ctx.Err() = %v", r.Context().Err())
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok || time.Until(deadline) > 0 {
		t.Errorf("deadline = %v (set=%v)", deadline, ok)
	}
}

func TestRequestTimeout_FallsBackToDefault(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Server.RequestTimeout = 0
	if got := srv.requestTimeout(); got != defaultRequestTimeout {
		t.Errorf("requestTimeout() = %v", got)
	}
}
