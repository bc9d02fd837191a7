// Package handlers contains the HTTP handlers of the coworkgate API.
//
// Handlers decode and validate requests, delegate to the domain services
// (payments, access, membership) and write responses through core.JSON and
// core.Error. They register themselves on the route groups core.Server
// exposes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"coworkgate/internal/core"
	"coworkgate/internal/external"
	"coworkgate/internal/membership"
	"coworkgate/internal/payments"
	"coworkgate/internal/queue"
	"coworkgate/internal/types"
)

// maxWebhookBodySize bounds a gateway notification body.
const maxWebhookBodySize = 64 * 1024

// webhookTopicPayment is the only notification type that is processed.
const webhookTopicPayment = "payment"

// PaymentSyncer reconciles a payment against its gateway state.
type PaymentSyncer interface {
	Sync(ctx context.Context, id types.ProviderID, source types.ReconcileSource) (*membership.Result, error)
}

// ReplayEnqueuer schedules an asynchronous retry of a reconciliation.
type ReplayEnqueuer interface {
	EnqueueReplay(ctx context.Context, msg queue.ReplayMessage) error
}

// SignatureVerifier checks the gateway's x-signature header.
type SignatureVerifier interface {
	Verify(header, requestID, dataID string) error
}

// webhookNotification is the accepted shape of a gateway notification.
// Everything else in the payload is ignored.
type webhookNotification struct {
	Type string `json:"type" validate:"required"`
	Data struct {
		ID types.ProviderID `json:"id" validate:"required"`
	} `json:"data"`
}

// WebhookHandler ingests Mercado Pago payment notifications.
type WebhookHandler struct {
	syncer    PaymentSyncer
	archive   types.WebhookEventRepository
	replay    ReplayEnqueuer
	verifier  SignatureVerifier
	validator *core.Validator
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. archive, replay and verifier
// are optional; a nil verifier accepts unsigned notifications.
func NewWebhookHandler(
	syncer PaymentSyncer,
	archive types.WebhookEventRepository,
	replay ReplayEnqueuer,
	verifier SignatureVerifier,
	v *core.Validator,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		syncer:    syncer,
		archive:   archive,
		replay:    replay,
		verifier:  verifier,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook on a public route group.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post(payments.WebhookPath, h.Handle)
}

// Handle processes one notification.
//
//  1. Decode {type, data:{id}}; the query string (?type=&data.id=) fills
//     fields the body lacks. Missing type or id is a 400.
//  2. Non-payment types are acknowledged with {"status":"ignored"}; their
//     ids are never inspected. Payment ids must be numeric (400).
//  3. Verify x-signature when a verifier is configured (401 on failure).
//  4. Archive the raw payload (best-effort).
//  5. Sync the payment. Unknown payments are a 404; gateway and store
//     failures are a 500 so the gateway retries, and are also queued for
//     replay when a queue is configured.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := types.LoggerFromContext(ctx, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidWebhook, "failed to read request body", err))
		return
	}

	note, err := h.decode(payload, r)
	if err != nil {
		logger.WarnContext(ctx, "rejected webhook payload", "error", err)
		core.Error(w, r, err)
		return
	}

	if note.Type != webhookTopicPayment {
		logger.InfoContext(ctx, "ignoring webhook notification", "type", note.Type)
		core.JSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	id := note.Data.ID
	if _, ok := id.Int64(); !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPaymentID,
			"data.id must be a numeric payment id", nil, map[string]any{"id": id.String()}))
		return
	}
	if h.verifier != nil {
		if err := h.verifier.Verify(r.Header.Get("x-signature"), r.Header.Get("x-request-id"), id.String()); err != nil {
			code := types.ErrCodeAuthSignatureInvalid
			if errors.Is(err, external.ErrSignatureMissing) {
				code = types.ErrCodeAuthSignatureMissing
			}
			logger.WarnContext(ctx, "webhook signature rejected", "provider_payment_id", id, "error", err)
			core.Error(w, r, types.NewAppError(code, "webhook signature verification failed", err))
			return
		}
	}

	h.record(ctx, note, payload)

	res, err := h.syncer.Sync(ctx, id, types.SourceWebhook)
	if err != nil {
		if !types.IsNotFound(err) && !types.IsValidation(err) {
			h.enqueueReplay(ctx, id, err)
		}
		logger.WarnContext(ctx, "webhook reconciliation failed", "provider_payment_id", id, "error", err)
		core.Error(w, r, err)
		return
	}

	logger.InfoContext(ctx, "webhook processed",
		"provider_payment_id", id,
		"outcome", res.Outcome,
		"applied", res.Applied,
	)
	core.JSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"outcome": res.Outcome,
	})
}

func (h *WebhookHandler) decode(payload []byte, r *http.Request) (webhookNotification, error) {
	var note webhookNotification
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &note); err != nil {
			return note, types.NewAppError(types.ErrCodeValidationInvalidWebhook, "malformed webhook payload", err)
		}
	}

	q := r.URL.Query()
	if note.Type == "" {
		note.Type = q.Get("type")
		if note.Type == "" {
			note.Type = q.Get("topic")
		}
	}
	if note.Data.ID.IsZero() {
		if raw := q.Get("data.id"); raw != "" {
			if id, err := types.ParseProviderID(raw); err == nil {
				note.Data.ID = id
			}
		}
	}

	if err := h.validator.ValidateStruct(note); err != nil {
		return note, err
	}
	return note, nil
}

func (h *WebhookHandler) record(ctx context.Context, note webhookNotification, payload []byte) {
	if h.archive == nil {
		return
	}
	evt := &types.WebhookEvent{
		ID:                uuid.NewString(),
		Provider:          "mercadopago",
		Topic:             note.Type,
		ProviderPaymentID: note.Data.ID,
		Payload:           payload,
		ReceivedAt:        time.Now().UTC(),
	}
	if err := h.archive.Record(ctx, evt); err != nil {
		types.LoggerFromContext(ctx, h.logger).WarnContext(ctx, "failed to archive webhook payload",
			"provider_payment_id", note.Data.ID,
			"error", err,
		)
	}
}

func (h *WebhookHandler) enqueueReplay(ctx context.Context, id types.ProviderID, cause error) {
	if h.replay == nil {
		return
	}
	msg := queue.ReplayMessage{
		ProviderPaymentID: id,
		Source:            types.SourceReplay,
		Reason:            cause.Error(),
		TraceID:           types.GetRequestID(ctx),
	}
	// The request context may already be past its deadline.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.replay.EnqueueReplay(sendCtx, msg); err != nil {
		types.LoggerFromContext(ctx, h.logger).ErrorContext(ctx, "failed to enqueue reconcile replay",
			"provider_payment_id", id,
			"error", err,
		)
	}
}
