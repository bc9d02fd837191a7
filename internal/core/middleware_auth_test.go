package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"coworkgate/internal/types"
)

const testAdminKey = "front-desk-key"

func newTestServerForAdminAuth(t *testing.T) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := testConfig()
	cfg.Security.AdminKeyHash = types.SecretString(hash)

	srv, err := NewServer(cfg, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestAdminAuth_ValidKey_InjectsAdminActor(t *testing.T) {
	srv := newTestServerForAdminAuth(t)

	var actor types.Actor
	var found bool
	handler := srv.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found = types.GetActor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/students/s1/membership/cancel", nil)
	req.Header.Set(AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !found || actor.Type != types.ActorTypeAdmin {
		t.Errorf("expected admin actor, got %+v (found=%v)", actor, found)
	}
}

func TestAdminAuth_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantCode types.ErrorCode
	}{
		{"missing header", "", types.ErrCodeAuthAdminKeyMissing},
		{"blank header", "   ", types.ErrCodeAuthAdminKeyMissing},
		{"wrong key", "guess", types.ErrCodeAuthAdminKeyInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServerForAdminAuth(t)
			called := false
			handler := srv.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/students/s1/membership", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Error("next handler must not run")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != string(tt.wantCode) {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestAdminAuth_NoHashConfigured_RejectsEverything(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
