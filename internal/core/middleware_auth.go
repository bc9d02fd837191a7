package core

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"coworkgate/internal/types"
)

// AdminKeyHeader carries the operator key on /admin routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth guards operator routes. The X-Admin-Key header is compared
// against the bcrypt hash in Security.AdminKeyHash; on success an admin
// Actor is injected into the context.
//
//   - auth_admin_key_missing: header absent or blank.
//   - auth_admin_key_invalid: key does not match, or no hash is configured.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthAdminKeyMissing, "X-Admin-Key header is required")
			return
		}

		if !s.adminKeyMatches(key) {
			types.LoggerFromContext(r.Context(), s.Logger).Warn("admin authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client_ip", extractClientIP(r)),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthAdminKeyInvalid, "invalid admin key")
			return
		}

		ctx := types.WithActor(r.Context(), types.Actor{ID: "admin", Type: types.ActorTypeAdmin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminKeyMatches(key string) bool {
	if s.Config == nil {
		return false
	}
	hash := s.Config.Security.AdminKeyHash.Unmask()
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// writeAuthError writes a 401 with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
