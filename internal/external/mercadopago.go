package external

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coworkgate/internal/types"
)

// mercadoPagoAPIBase is the production API root. Tests override it through
// MercadoPagoConfig.BaseURL.
const mercadoPagoAPIBase = "https://api.mercadopago.com"

// PaymentGateway is the subset of the Mercado Pago API used by coworkgate.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, id types.ProviderID) (*GatewayPayment, error)
}

// PreferenceItem is one checkout line item.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

// PreferencePayer identifies the buyer when known.
type PreferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// BackURLs are the browser redirect targets after checkout.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of POST /checkout/preferences.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             *PreferencePayer `json:"payer,omitempty"`
	ExternalReference string           `json:"external_reference"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

// Preference is a created hosted checkout session.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// GatewayPayment is the canonical payment object returned by
// GET /v1/payments/{id}.
type GatewayPayment struct {
	ID                types.ProviderID    `json:"id"`
	Status            types.GatewayStatus `json:"status"`
	StatusDetail      string              `json:"status_detail"`
	TransactionAmount *float64            `json:"transaction_amount"`
	ExternalReference string              `json:"external_reference"`
	DateApproved      string              `json:"date_approved,omitempty"`
}

// MercadoPagoConfig configures a MercadoPagoClient.
type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// MercadoPagoClient implements PaymentGateway over the REST API. Values are
// constructed once at startup and injected; there is no package-level
// client.
type MercadoPagoClient struct {
	rest   *restClient
	logger *slog.Logger
}

// NewMercadoPagoClient builds a client that tries each call up to three
// times, backing off from 300ms to at most 3s.
func NewMercadoPagoClient(cfg MercadoPagoConfig) *MercadoPagoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mercadoPagoAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MercadoPagoClient{
		rest: &restClient{
			http:      &http.Client{Timeout: timeout},
			breaker:   newBreaker("mercadopago"),
			retry:     retryPolicy{attempts: 3, base: 300 * time.Millisecond, ceiling: 3 * time.Second},
			baseURL:   strings.TrimSuffix(baseURL, "/"),
			token:     cfg.AccessToken,
			userAgent: cfg.UserAgent,
			logger:    logger,
			newKey:    newIdempotencyKey,
			wait:      sleepContext,
		},
		logger: logger,
	}
}

// CreatePreference creates a hosted checkout session.
func (c *MercadoPagoClient) CreatePreference(ctx context.Context, pref PreferenceRequest) (*Preference, error) {
	var out Preference
	if err := c.rest.call(ctx, "CreatePreference", http.MethodPost, "/checkout/preferences", pref, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, types.NewAppError(types.ErrCodeGatewayBadResponse, "CreatePreference: response has no id", nil)
	}

	c.logger.InfoContext(ctx, "checkout preference created",
		"preference_id", out.ID,
		"external_reference", pref.ExternalReference,
	)
	return &out, nil
}

// GetPayment fetches the canonical state of a payment. An unknown id maps to
// not_found_payment; every other failure is a gateway error.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, id types.ProviderID) (*GatewayPayment, error) {
	if id.IsZero() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPaymentID, "payment id is empty", nil)
	}

	var out GatewayPayment
	path := "/v1/payments/" + url.PathEscape(id.Canonical().String())
	if err := c.rest.call(ctx, "GetPayment", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.ID.IsZero() {
		out.ID = id.Canonical()
	}
	return &out, nil
}

var _ PaymentGateway = (*MercadoPagoClient)(nil)
