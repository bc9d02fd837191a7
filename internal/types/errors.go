package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services use these instead of literals.
const (
	// Validation (400)
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidAmount    ErrorCode = "validation_invalid_amount"
	ErrCodeValidationInvalidPaymentID ErrorCode = "validation_invalid_payment_id"
	ErrCodeValidationInvalidReference ErrorCode = "validation_invalid_external_reference"
	ErrCodeValidationInvalidJSON      ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidField     ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidWebhook   ErrorCode = "validation_invalid_webhook"

	// Auth (401)
	ErrCodeAuthAdminKeyMissing  ErrorCode = "auth_admin_key_missing"
	ErrCodeAuthAdminKeyInvalid  ErrorCode = "auth_admin_key_invalid"
	ErrCodeAuthSignatureMissing ErrorCode = "auth_signature_missing"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Access gate (403)
	ErrCodeAccessMembershipInactive ErrorCode = "access_membership_inactive"
	ErrCodeAccessOutsideWindow      ErrorCode = "access_outside_window"

	// Rate limiting (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundStudent ErrorCode = "not_found_student"
	ErrCodeNotFoundPayment ErrorCode = "not_found_payment"
	ErrCodeNotFoundSession ErrorCode = "not_found_session"
	ErrCodeNotFoundPlan    ErrorCode = "not_found_plan"

	// Conflict (409)
	ErrCodeConflictCheckIn     ErrorCode = "conflict_concurrent_check_in"
	ErrCodeConflictPayment     ErrorCode = "conflict_payment_exists"
	ErrCodeConflictOpenSession ErrorCode = "conflict_open_session_exists"
	ErrCodeConflictMembership  ErrorCode = "conflict_membership_state"

	// Gateway (500, retried by the caller)
	ErrCodeGatewayUnavailable ErrorCode = "gateway_unavailable"
	ErrCodeGatewayRateLimited ErrorCode = "gateway_rate_limited"
	ErrCodeGatewayRejected    ErrorCode = "gateway_request_rejected"
	ErrCodeGatewayBadResponse ErrorCode = "gateway_bad_response"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its HTTP status code.
// Unrecognized codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "access_"):
		return http.StatusForbidden
	case c == ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "gateway_"):
		// The payment provider retries on any 5xx, which is what we want
		// for transient gateway failures.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError so the HTTP layer can map them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsNotFound reports whether err is an AppError in the not_found_ family.
func IsNotFound(err error) bool {
	return hasPrefix(err, "not_found_")
}

// IsConflict reports whether err is an AppError in the conflict_ family.
func IsConflict(err error) bool {
	return hasPrefix(err, "conflict_")
}

// IsGateway reports whether err is an AppError raised by the payment gateway client.
func IsGateway(err error) bool {
	return hasPrefix(err, "gateway_")
}

// IsValidation reports whether err is an AppError in the validation_ family.
func IsValidation(err error) bool {
	return hasPrefix(err, "validation_")
}

func hasPrefix(err error, prefix string) bool {
	appErr, ok := AsAppError(err)
	return ok && strings.HasPrefix(string(appErr.Code), prefix)
}

// AsAppError unwraps err into an *AppError if one is present in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
