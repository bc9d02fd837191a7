package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworkgate/internal/access"
	"coworkgate/internal/core"
	"coworkgate/internal/types"
)

type fakeToggler struct {
	codes []string
	res   *access.Result
	err   error
}

func (f *fakeToggler) Toggle(_ context.Context, code string) (*access.Result, error) {
	f.codes = append(f.codes, code)
	return f.res, f.err
}

func newAccessRouter(g AccessToggler) chi.Router {
	r := chi.NewRouter()
	NewAccessHandler(g, core.NewValidator(testLogger()), testLogger()).RegisterRoutes(r)
	return r
}

func TestAccessToggle_CheckIn(t *testing.T) {
	in := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	g := &fakeToggler{res: &access.Result{
		Action:  access.ActionCheckIn,
		Student: &types.Student{ID: "stu-1", FullName: "Ana Gómez"},
		Session: &types.Session{ID: "sess-1", StudentID: "stu-1", CheckInAt: in},
	}}

	rec := serve(newAccessRouter(g), http.MethodPost, "/access/toggle", `{"accessCode":" 4821 "}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"4821"}, g.codes)
	assert.JSONEq(t, `{
		"action":"check_in",
		"studentId":"stu-1",
		"fullName":"Ana Gómez",
		"session":{"id":"sess-1","studentId":"stu-1","checkInTimestamp":"2026-03-02T13:00:00Z","checkOutTimestamp":null,"durationMinutes":null}
	}`, rec.Body.String())
}

func TestAccessToggle_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"missing code", `{}`, types.ErrCodeValidationMissingField},
		{"blank code", `{"accessCode":"  "}`, types.ErrCodeValidationMissingField},
		{"bad characters", `{"accessCode":"12;34"}`, types.ErrCodeValidationInvalidField},
		{"unknown field", `{"accessCode":"1","pin":"2"}`, types.ErrCodeValidationInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeToggler{}
			rec := serve(newAccessRouter(g), http.MethodPost, "/access/toggle", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rec))
			assert.Empty(t, g.codes)
		})
	}
}

func TestAccessToggle_GateErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown code", types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil), http.StatusNotFound},
		{"expired", types.NewAppErrorWithDetails(types.ErrCodeAccessMembershipInactive, "no active membership: membership expired", nil, map[string]any{"reason": "expired"}), http.StatusForbidden},
		{"outside window", types.NewAppError(types.ErrCodeAccessOutsideWindow, "access outside allowed hours (08:00–21:30)", nil), http.StatusForbidden},
		{"race", types.NewAppError(types.ErrCodeConflictCheckIn, "check-in state changed concurrently, scan again", nil), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newAccessRouter(&fakeToggler{err: tt.err}), http.MethodPost, "/access/toggle", `{"accessCode":"4821"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
