// Package payments drives the Mercado Pago checkout flow: issuing hosted
// checkout preferences and turning gateway payment states into
// reconciliations.
package payments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"coworkgate/internal/core"
	"coworkgate/internal/external"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// WebhookPath is the route the gateway posts notifications to.
const WebhookPath = "/webhook/mercadopago"

// Checkout result pages on the member portal.
const (
	successPath = "/pagos/exitoso"
	failurePath = "/pagos/fallido"
	pendingPath = "/pagos/pendiente"
)

const currencyARS = "ARS"

// PreferenceInput is a checkout request for one plan purchase.
type PreferenceInput struct {
	FullName     string  `json:"fullName" validate:"required"`
	Amount       float64 `json:"amount" validate:"gt=0"`
	Plan         string  `json:"plan" validate:"required"`
	StudentID    string  `json:"studentId" validate:"required"`
	StudentEmail string  `json:"studentEmail,omitempty" validate:"omitempty,email"`
}

// Issuer creates hosted checkout preferences.
type Issuer struct {
	gateway   external.PaymentGateway
	validator *core.Validator
	apiURL    string
	portalURL string
	metrics   telemetry.Collector
	logger    *slog.Logger
}

// NewIssuer creates an Issuer. apiExternalURL is the public base URL of
// this service; portalURL is the member portal base URL.
func NewIssuer(gateway external.PaymentGateway, apiExternalURL, portalURL string, metrics telemetry.Collector, logger *slog.Logger) *Issuer {
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		gateway:   gateway,
		validator: core.NewValidator(logger),
		apiURL:    strings.TrimSuffix(apiExternalURL, "/"),
		portalURL: strings.TrimSuffix(portalURL, "/"),
		metrics:   metrics,
		logger:    logger,
	}
}

// Issue validates in and creates a preference whose external_reference is
// "studentId|plan".
func (i *Issuer) Issue(ctx context.Context, in PreferenceInput) (*external.Preference, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Plan = strings.TrimSpace(in.Plan)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.StudentEmail = strings.TrimSpace(in.StudentEmail)
	if err := i.validate(in); err != nil {
		return nil, err
	}

	req := external.PreferenceRequest{
		Items: []external.PreferenceItem{{
			ID:         uuid.New().String(),
			Title:      in.Plan,
			Quantity:   1,
			UnitPrice:  in.Amount,
			CurrencyID: currencyARS,
		}},
		Payer: &external.PreferencePayer{
			Name:  in.FullName,
			Email: in.StudentEmail,
		},
		ExternalReference: types.ExternalReference{StudentID: in.StudentID, Plan: in.Plan}.String(),
		BackURLs: external.BackURLs{
			Success: i.portalURL + successPath,
			Failure: i.portalURL + failurePath,
			Pending: i.portalURL + pendingPath,
		},
		AutoReturn:      "approved",
		NotificationURL: i.apiURL + WebhookPath,
	}

	pref, err := i.gateway.CreatePreference(ctx, req)
	if err != nil {
		i.metrics.RecordGatewayFailure(ctx, "create_preference")
		types.LoggerFromContext(ctx, i.logger).ErrorContext(ctx, "failed to create checkout preference",
			"error", err,
			"student_id", in.StudentID,
			"plan", in.Plan,
		)
		return nil, asGatewayError(err, "failed to create checkout preference")
	}

	types.LoggerFromContext(ctx, i.logger).InfoContext(ctx, "checkout preference created",
		"preference_id", pref.ID,
		"student_id", in.StudentID,
		"plan", in.Plan,
	)
	return pref, nil
}

// validate runs the struct rules of PreferenceInput. Missing fields are
// reported together; otherwise the first failing field decides the code.
// Details always carry the offending fields under "fields".
func (i *Issuer) validate(in PreferenceInput) error {
	result := i.validator.Check(in)
	if result.IsValid() {
		return nil
	}

	var missing []string
	for _, e := range result.Errors {
		if e.Code == "required" {
			missing = append(missing, e.Field)
		}
	}
	if len(missing) > 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"missing required fields", nil, map[string]any{"fields": missing})
	}

	first := result.Errors[0]
	code := types.ErrCodeValidationInvalidField
	if first.Field == "amount" {
		code = types.ErrCodeValidationInvalidAmount
	}
	return types.NewAppErrorWithDetails(code, first.Message, nil,
		map[string]any{"fields": []string{first.Field}})
}

// asGatewayError keeps classified AppErrors and wraps anything else as a
// gateway failure.
func asGatewayError(err error, msg string) error {
	if types.IsGateway(err) || types.IsNotFound(err) || types.IsValidation(err) {
		return err
	}
	return types.NewAppError(types.ErrCodeGatewayBadResponse, msg, err)
}
