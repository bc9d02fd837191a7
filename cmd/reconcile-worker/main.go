// Package main is the entrypoint for the Reconcile Worker Lambda function.
//
// The worker consumes the reconcile replay SQS queue. The API enqueues a
// payment id there when a webhook could not be processed (gateway outage,
// database failure); operators enqueue ids with `gatectl reconcile
// --enqueue`. Each message re-runs the webhook reconciliation path through
// the same Reconciler the API uses, so a replay is idempotent.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load configuration (SSM pointers resolved outside APP_ENV=local).
//  3. Wire services through internal/app with CloudWatch metrics.
//  4. Register handler and call lambda.Start.
//
// Per message:
//  1. Decode the ReplayMessage. Malformed bodies are dropped.
//  2. Sync the payment with source=replay.
//  3. Not-found and validation failures are permanent and acknowledged;
//     anything else is reported in batchItemFailures so SQS redelivers it.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"coworkgate/internal/app"
	"coworkgate/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("function_name", os.Getenv("AWS_LAMBDA_FUNCTION_NAME"))

	logger.Info("Reconcile Worker Lambda initializing (cold start)")

	var provider config.SecretProvider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	if os.Getenv("APP_ENV") == "local" {
		provider = config.NewEnvVarProvider()
	}
	cfg, err := config.Load(provider)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// No scrape endpoint inside Lambda.
	if cfg.Observability.MetricsBackend == "prometheus" {
		cfg.Observability.MetricsBackend = "cloudwatch"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("Failed to wire services", "error", err)
		os.Exit(1)
	}

	h := NewHandler(a.Payments, a.Metrics, logger)

	logger.Info("Reconcile Worker Lambda initialized, starting handler",
		"store", cfg.Database.Driver,
		"metrics", cfg.Observability.MetricsBackend,
	)
	lambda.Start(h.Handle)
}
