package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"coworkgate/internal/external"
	"coworkgate/internal/membership"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// Reconciler is the single entry point that applies gateway statuses.
type Reconciler interface {
	Reconcile(ctx context.Context, in membership.Input) (*membership.Result, error)
}

// Service fetches canonical payment state from the gateway and hands it
// to the reconciler.
type Service struct {
	gateway    external.PaymentGateway
	reconciler Reconciler
	metrics    telemetry.Collector
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(gateway external.PaymentGateway, reconciler Reconciler, metrics telemetry.Collector, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gateway, reconciler: reconciler, metrics: metrics, logger: logger}
}

// Sync reconciles an already-recorded payment against its gateway state.
// It is the webhook and replay path: a payment unknown locally is a
// not_found error.
func (s *Service) Sync(ctx context.Context, id types.ProviderID, source types.ReconcileSource) (*membership.Result, error) {
	gp, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, membership.Input{
		ProviderID: id,
		Status:     gp.Status,
		Amount:     gp.TransactionAmount,
		Source:     source,
	})
}

func (s *Service) fetch(ctx context.Context, id types.ProviderID) (*external.GatewayPayment, error) {
	gp, err := s.gateway.GetPayment(ctx, id)
	if err != nil {
		if !types.IsNotFound(err) {
			s.metrics.RecordGatewayFailure(ctx, "get_payment")
		}
		return nil, asGatewayError(err, "failed to fetch payment from gateway")
	}
	return gp, nil
}

// LooseString accepts a JSON string, number or null. Browser redirects
// pass gateway ids through query strings, so either form arrives.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (l *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*l = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LooseString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*l = LooseString(n.String())
	}
	return nil
}

// present reports whether the value carries an id. The literal "null"
// sent by some redirect templates counts as absent.
func (l LooseString) present() bool {
	v := strings.TrimSpace(string(l))
	return v != "" && !strings.EqualFold(v, "null") && !strings.EqualFold(v, "undefined")
}

// ConfirmRequest is the body posted by the portal after checkout.
type ConfirmRequest struct {
	PaymentID         LooseString `json:"paymentId"`
	CollectionID      LooseString `json:"collectionId"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"externalReference"`
}

// ConfirmResult is the confirmation outcome.
type ConfirmResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	PaymentID types.ProviderID `json:"paymentId,omitempty"`
}

// Confirm resolves the gateway payment named by req and, when approved,
// reconciles it, creating the local payment if it does not exist yet.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	raw := req.PaymentID
	if !raw.present() {
		raw = req.CollectionID
	}
	if !raw.present() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"paymentId or collectionId is required", nil,
			map[string]any{"fields": []string{"paymentId", "collectionId"}})
	}

	id, err := types.ParseProviderID(string(raw))
	if err != nil {
		return nil, invalidPaymentID(raw, err)
	}
	if _, ok := id.Int64(); !ok {
		return nil, invalidPaymentID(raw, nil)
	}

	gp, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if gp.Status != types.GatewayApproved {
		types.LoggerFromContext(ctx, s.logger).InfoContext(ctx, "confirmation for unapproved payment",
			"provider_payment_id", id.String(),
			"gateway_status", string(gp.Status),
			"client_status", req.Status,
		)
		return &ConfirmResult{Success: false, Message: "payment not approved yet", PaymentID: id}, nil
	}

	ref := gp.ExternalReference
	if strings.TrimSpace(ref) == "" {
		ref = req.ExternalReference
	}

	res, err := s.reconciler.Reconcile(ctx, membership.Input{
		ProviderID:        id,
		Status:            gp.Status,
		Amount:            gp.TransactionAmount,
		ExternalReference: ref,
		Source:            types.SourceConfirmation,
		CreateIfMissing:   true,
	})
	if err != nil {
		return nil, err
	}

	msg := "payment already confirmed"
	if res.Applied {
		msg = "payment confirmed, membership activated"
	}
	return &ConfirmResult{Success: true, Message: msg, PaymentID: id}, nil
}

func invalidPaymentID(raw LooseString, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPaymentID,
		"payment id must be an integer", err,
		map[string]any{"paymentId": string(raw)})
}
