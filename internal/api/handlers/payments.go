package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coworkgate/internal/core"
	"coworkgate/internal/external"
	"coworkgate/internal/payments"
	"coworkgate/internal/types"
)

// PreferenceIssuer creates checkout preferences.
type PreferenceIssuer interface {
	Issue(ctx context.Context, in payments.PreferenceInput) (*external.Preference, error)
}

// PaymentConfirmer handles the portal's post-checkout confirmation.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, req payments.ConfirmRequest) (*payments.ConfirmResult, error)
}

type createPreferenceRequest struct {
	PaymentData *payments.PreferenceInput `json:"paymentData"`
}

// PaymentHandler serves the member portal's checkout endpoints.
type PaymentHandler struct {
	issuer    PreferenceIssuer
	confirmer PaymentConfirmer
	logger    *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(issuer PreferenceIssuer, confirmer PaymentConfirmer, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{issuer: issuer, confirmer: confirmer, logger: logger}
}

// RegisterRoutes mounts the payment routes on a public route group.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/create-preference", h.CreatePreference)
		r.Post("/confirm", h.Confirm)
	})
}

// CreatePreference handles POST /payments/create-preference.
// Body: {"paymentData": {fullName, amount, plan, studentId, studentEmail?}}.
// Field validation happens in the issuer so that every caller gets the same
// missing-field details.
func (h *PaymentHandler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	var req createPreferenceRequest
	if err := core.DecodeJSONLenient(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.PaymentData == nil {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"paymentData is required",
			nil,
			map[string]any{"fields": []string{"paymentData"}},
		))
		return
	}

	pref, err := h.issuer.Issue(r.Context(), *req.PaymentData)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, pref)
}

// Confirm handles POST /payments/confirm.
// Body: {paymentId?, collectionId?, status?, externalReference?}.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req payments.ConfirmRequest
	if err := core.DecodeJSONLenient(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.confirmer.Confirm(r.Context(), req)
	if err != nil {
		types.LoggerFromContext(r.Context(), h.logger).WarnContext(r.Context(), "payment confirmation failed",
			"payment_id", string(req.PaymentID),
			"collection_id", string(req.CollectionID),
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, res)
}
