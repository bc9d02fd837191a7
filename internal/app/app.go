// Package app assembles the coworkgate services from a loaded Config. Every
// entry point (the HTTP API, the reconcile worker and gatectl) builds the
// same graph here so that reconciliation always runs through one
// Reconciler configured the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"coworkgate/internal/access"
	"coworkgate/internal/config"
	"coworkgate/internal/db"
	"coworkgate/internal/db/memstore"
	"coworkgate/internal/external"
	"coworkgate/internal/membership"
	"coworkgate/internal/notify"
	"coworkgate/internal/payments"
	"coworkgate/internal/plans"
	"coworkgate/internal/queue"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// Store is the persistence surface every service shares.
type Store interface {
	types.RepositoryRegistry
	types.TransactionManager
	Ping(ctx context.Context) error
}

// App holds the wired services. Fields are read-only after New returns.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store          Store
	Metrics        telemetry.Collector
	MetricsHandler http.Handler
	Gateway        external.PaymentGateway

	Catalog    *plans.Catalog
	Notifier   *notify.Notifier
	Reconciler *membership.Reconciler
	Gate       *access.Gate
	Issuer     *payments.Issuer
	Payments   *payments.Service

	// Nil when SQS_RECONCILE_REPLAY is not configured.
	Replay *queue.Publisher

	closers []func() error
}

type options struct {
	store   Store
	gateway external.PaymentGateway
	metrics telemetry.Collector
	sqs     queue.SQSSender
	cw      telemetry.CloudWatchClient
	clock   types.Clock
}

// Option overrides a dependency that New would otherwise build from Config.
type Option func(*options)

// WithStore uses s instead of opening the configured driver.
func WithStore(s Store) Option { return func(o *options) { o.store = s } }

// WithGateway uses g instead of the Mercado Pago REST client.
func WithGateway(g external.PaymentGateway) Option { return func(o *options) { o.gateway = g } }

// WithMetrics uses m instead of the configured backend.
func WithMetrics(m telemetry.Collector) Option { return func(o *options) { o.metrics = m } }

// WithSQS uses c for every queue publisher instead of an SDK client.
func WithSQS(c queue.SQSSender) Option { return func(o *options) { o.sqs = c } }

// WithClock overrides the time source of the reconciler, gate and
// notifier.
func WithClock(c types.Clock) Option { return func(o *options) { o.clock = c } }

// New builds the service graph. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if err := a.openStore(ctx, o); err != nil {
		return nil, err
	}
	if err := a.connectAWS(ctx, o); err != nil {
		return nil, err
	}
	a.buildMetrics(o)

	a.Catalog = plans.NewCatalog(a.Store.Plans(), cfg.Business.PlanCacheSize, cfg.Business.PlanCacheTTL, logger)

	var events notify.EventPublisher
	if cfg.AWS.NotificationQueue != "" {
		events = queue.NewPublisher(o.sqs, cfg.AWS.NotificationQueue, logger)
	}
	a.Notifier = notify.NewNotifier(a.Store.Notifications(), events, logger)

	if cfg.AWS.ReplayQueue != "" {
		a.Replay = queue.NewPublisher(o.sqs, cfg.AWS.ReplayQueue, logger)
	}

	loc := cfg.Business.Location
	a.Reconciler = membership.NewReconciler(a.Store, a.Store, a.Catalog, a.Notifier, a.Metrics, loc, logger)
	a.Gate = access.NewGate(a.Store, a.Store, a.Catalog, a.Metrics, loc, logger)
	if o.clock != nil {
		a.Reconciler.WithClock(o.clock)
		a.Gate.WithClock(o.clock)
		a.Notifier.WithClock(o.clock)
	}

	a.Gateway = o.gateway
	if a.Gateway == nil {
		a.Gateway = external.NewMercadoPagoClient(external.MercadoPagoConfig{
			AccessToken: cfg.MercadoPago.AccessToken.Unmask(),
			BaseURL:     cfg.MercadoPago.BaseURL,
			UserAgent:   cfg.MercadoPago.UserAgent,
			Timeout:     cfg.MercadoPago.Timeout,
			Logger:      logger,
		})
	}
	a.Issuer = payments.NewIssuer(a.Gateway, cfg.Server.APIExternalURL, cfg.Server.PortalURL, a.Metrics, logger)
	a.Payments = payments.NewService(a.Gateway, a.Reconciler, a.Metrics, logger)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, o *options) error {
	if o.store != nil {
		a.Store = o.store
		return nil
	}

	switch a.Config.Database.Driver {
	case "memory":
		a.Logger.Warn("using in-memory store; data is lost on exit")
		a.Store = memstore.New()
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.Database.Driver)
	}

	dsn := a.Config.Database.URL.Unmask()
	if a.Config.Database.MigrateOnStart {
		if err := db.Migrate(ctx, dsn, "up"); err != nil {
			return err
		}
		a.Logger.Info("database migrations applied")
	}

	pool, err := db.NewPool(ctx, dsn, db.PoolConfig{
		MaxConns:          a.Config.Database.MaxConns,
		MinConns:          a.Config.Database.MinConns,
		MaxConnLifetime:   a.Config.Database.MaxConnLifetime,
		HealthCheckPeriod: a.Config.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.onClose(func() error {
		pool.Close()
		return nil
	})
	a.Store = db.NewStore(pool)
	return nil
}

// connectAWS loads the SDK config only when a queue or the CloudWatch
// backend needs it.
func (a *App) connectAWS(ctx context.Context, o *options) error {
	cfg := a.Config
	needSQS := o.sqs == nil && (cfg.AWS.NotificationQueue != "" || cfg.AWS.ReplayQueue != "")
	needCW := o.metrics == nil && cfg.Observability.MetricsBackend == "cloudwatch"
	if !needSQS && !needCW {
		return nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	if needSQS {
		o.sqs = sqs.NewFromConfig(awsCfg)
	}
	if needCW {
		o.cw = cloudwatch.NewFromConfig(awsCfg)
	}
	return nil
}

// LoadAWSConfig resolves SDK credentials for region, pointing every client
// at EndpointURL when one is configured (LocalStack).
func LoadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if c.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.EndpointURL)
	}
	return awsCfg, nil
}

// metricsFlushInterval is how often buffered CloudWatch data is sent.
const metricsFlushInterval = 30 * time.Second

func (a *App) buildMetrics(o *options) {
	if o.metrics != nil {
		a.Metrics = o.metrics
		return
	}
	switch a.Config.Observability.MetricsBackend {
	case "prometheus":
		p := telemetry.NewPrometheus(prometheusNamespace(a.Config.Observability.MetricNamespace))
		a.Metrics = p
		a.MetricsHandler = p.Handler()
	case "cloudwatch":
		cw := telemetry.NewCloudWatch(o.cw, a.Config.Observability.MetricNamespace, a.Logger)
		cw.StartFlusher(metricsFlushInterval)
		a.onClose(cw.Close)
		a.Metrics = cw
	default:
		a.Metrics = telemetry.Noop{}
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases the store and any other resources New opened, in reverse
// order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
