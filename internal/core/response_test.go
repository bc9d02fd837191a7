package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coworkgate/internal/types"
)

func TestJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, map[string]string{"status": "ok"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestError_MapsAppErrorCodes(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrCodeValidationMissingField, http.StatusBadRequest},
		{types.ErrCodeAuthAdminKeyInvalid, http.StatusUnauthorized},
		{types.ErrCodeAccessMembershipInactive, http.StatusForbidden},
		{types.ErrCodeNotFoundStudent, http.StatusNotFound},
		{types.ErrCodeConflictCheckIn, http.StatusConflict},
		{types.ErrCodeRateLimit, http.StatusTooManyRequests},
		{types.ErrCodeGatewayUnavailable, http.StatusInternalServerError},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()

			Error(rec, req, types.NewAppError(tt.code, "boom", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.code) || detail.RequestID != "req-1" {
				t.Errorf("unexpected detail: %+v", detail)
			}
		})
	}
}

func TestError_WrappedAppErrorKeepsDetails(t *testing.T) {
	appErr := types.NewAppErrorWithDetails(
		types.ErrCodeAccessMembershipInactive, "membership expired", nil,
		map[string]any{"reason": "expired"},
	)
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodPost, "/", nil), fmt.Errorf("toggle: %w", appErr))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec).Details["reason"]; got != "expired" {
		t.Errorf("details.reason = %v", got)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

type decodeTarget struct {
	AccessCode string `json:"accessCode"`
	Count      int    `json:"count"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"accessCode":"1234"}`, ""},
		{"unknown field", `{"accessCode":"1","extra":true}`, "unknown field"},
		{"syntax error", `{"accessCode" "1"}`, "malformed"},
		{"truncated", `{"accessCode":`, "invalid JSON"},
		{"empty body", ``, "must not be empty"},
		{"type mismatch", `{"count":"three"}`, "invalid value"},
		{"two values", `{"accessCode":"1"}{"accessCode":"2"}`, "single JSON object"},
		{"too large", `{"accessCode":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, "1MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst decodeTarget
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.AccessCode != "1234" {
					t.Errorf("AccessCode = %q", dst.AccessCode)
				}
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("code = %q", appErr.Code)
			}
			if !strings.Contains(appErr.Message, tt.wantErr) {
				t.Errorf("message = %q, want substring %q", appErr.Message, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSONLenient_AllowsUnknownFields(t *testing.T) {
	body := `{"action":"payment.updated","api_version":"v1","data":{"id":"123"},"live_mode":true}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/mercadopago", strings.NewReader(body))

	var dst struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := DecodeJSONLenient(httptest.NewRecorder(), req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Data.ID != "123" {
		t.Errorf("data.id = %q", dst.Data.ID)
	}
}

func TestAPIErrorResponse_Shape(t *testing.T) {
	b, err := json.Marshal(APIErrorResponse{Error: ErrorDetail{Code: "c", Message: "m", RequestID: "r"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"error":{"code":"c","message":"m","request_id":"r"}}` {
		t.Errorf("shape = %s", b)
	}
}
