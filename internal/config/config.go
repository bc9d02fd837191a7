// Package config defines the process configuration for the coworkgate
// services. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"coworkgate/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"coworkgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	MercadoPago   MercadoPagoConfig
	Business      BusinessConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	// Public base URL of this API, used for the gateway notification_url.
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	// Base URL of the member portal, used for checkout back URLs.
	PortalURL string `envconfig:"PORTAL_URL" validate:"required,url"`
}

// DatabaseConfig selects and tunes the persistent store.
type DatabaseConfig struct {
	Driver string       `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	URL    SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	MigrateOnStart    bool          `envconfig:"DB_MIGRATE_ON_START" default:"false"`
}

// AWSConfig holds AWS resource identifiers. Empty queue URLs disable the
// corresponding publisher.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`
	ReplayQueue       string `envconfig:"SQS_RECONCILE_REPLAY" validate:"omitempty,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MercadoPagoConfig holds payment gateway credentials and endpoints.
type MercadoPagoConfig struct {
	AccessToken SecretString `envconfig:"MP_ACCESS_TOKEN" validate:"required"`
	// Optional. When set, webhook x-signature headers are verified.
	WebhookSecret SecretString  `envconfig:"MP_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"MP_BASE_URL" default:"https://api.mercadopago.com" validate:"url"`
	Timeout       time.Duration `envconfig:"MP_TIMEOUT" default:"10s"`
	UserAgent     string        `envconfig:"MP_USER_AGENT" default:"coworkgate/1.0"`
}

// BusinessConfig holds venue-level settings.
type BusinessConfig struct {
	// Time zone used for calendar-day boundaries and access hours.
	TimeZone      string        `envconfig:"BUSINESS_TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	PlanCacheSize int           `envconfig:"PLAN_CACHE_SIZE" default:"128" validate:"min=1"`
	PlanCacheTTL  time.Duration `envconfig:"PLAN_CACHE_TTL" default:"5m"`

	// Resolved from TimeZone by the loader.
	Location *time.Location `ignored:"true" validate:"-"`
}

// SecurityConfig holds admin access and HTTP edge settings.
type SecurityConfig struct {
	// bcrypt hash of the admin API key accepted in X-Admin-Key.
	AdminKeyHash       SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	KioskRatePerMinute int          `envconfig:"KIOSK_RATE_PER_MINUTE" default:"30"`
	KioskBurst         int          `envconfig:"KIOSK_BURST" default:"5"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CoworkGate"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
	ErrTimeZone      ConfigErrorType = "TIMEZONE_INVALID"
)
