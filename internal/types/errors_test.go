package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundPayment,
		Message: "payment 123456 not found",
	}

	expected := "not_found_payment: payment 123456 not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "failed to lock payment", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is did not find the wrapped error")
	}

	wrapped := fmt.Errorf("reconcile: %w", appErr)
	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("AsAppError did not find AppError in chain")
	}
	if got.Code != ErrCodeInternalDB {
		t.Errorf("Code = %q, want %q", got.Code, ErrCodeInternalDB)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidPaymentID, http.StatusBadRequest},
		{ErrCodeAuthAdminKeyInvalid, http.StatusUnauthorized},
		{ErrCodeAuthSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeAccessMembershipInactive, http.StatusForbidden},
		{ErrCodeAccessOutsideWindow, http.StatusForbidden},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeNotFoundStudent, http.StatusNotFound},
		{ErrCodeNotFoundPayment, http.StatusNotFound},
		{ErrCodeConflictCheckIn, http.StatusConflict},
		{ErrCodeGatewayUnavailable, http.StatusInternalServerError},
		{ErrCodeGatewayRateLimited, http.StatusInternalServerError},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeValidationMissingField, "missing fields", nil,
		map[string]any{"fields": []string{"plan"}})

	merged := orig.WithDetails(map[string]any{"request": "create-preference"})

	if _, ok := orig.Details["request"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if merged.Details["request"] != "create-preference" {
		t.Errorf("merged details missing new key: %v", merged.Details)
	}
	if merged.Details["fields"] == nil {
		t.Errorf("merged details lost existing key: %v", merged.Details)
	}
}

func TestCategoryHelpers(t *testing.T) {
	notFound := fmt.Errorf("wrap: %w", NewAppError(ErrCodeNotFoundStudent, "x", nil))
	conflict := NewAppError(ErrCodeConflictPayment, "x", nil)
	gateway := NewAppError(ErrCodeGatewayUnavailable, "x", nil)
	validation := NewAppError(ErrCodeValidationInvalidAmount, "x", nil)
	plain := errors.New("plain")

	if !IsNotFound(notFound) || IsNotFound(plain) {
		t.Error("IsNotFound misclassified")
	}
	if !IsConflict(conflict) || IsConflict(notFound) {
		t.Error("IsConflict misclassified")
	}
	if !IsGateway(gateway) || IsGateway(conflict) {
		t.Error("IsGateway misclassified")
	}
	if !IsValidation(validation) || IsValidation(gateway) {
		t.Error("IsValidation misclassified")
	}
}
