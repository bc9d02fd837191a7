// Package main is the entry point for the coworkgate API server.
//
// It loads configuration, wires the services through internal/app and
// serves the HTTP routes: the Mercado Pago webhook, checkout endpoints, the
// reception kiosk and the operator /admin group.
//
// Locally it runs a standard HTTP server on the configured port. Inside AWS
// Lambda (Function URL) the same chi router is served through lambdaurl.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambdaurl"

	"coworkgate/internal/app"
	"coworkgate/internal/config"
	"coworkgate/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("coworkgate API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"metrics", cfg.Observability.MetricsBackend,
	)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(initCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring services: %w", err)
	}

	srv, err := a.Server()
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	if isLambdaEnvironment() {
		logger.Info("running behind a Lambda function URL")
		lambdaurl.Start(srv.Handler())
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// secretProvider returns the SSM provider outside local development.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer serves until SIGINT/SIGTERM or a listener failure, then
// drains in-flight requests and closes the app resources.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		listenErr <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-listenErr:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	// Closes the pool and flushes buffered CloudWatch metrics.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("resource shutdown error", "error", err)
		if serveErr == nil {
			serveErr = fmt.Errorf("server shutdown: %w", err)
		}
	}

	if serveErr == nil {
		logger.Info("server stopped cleanly")
	}
	return serveErr
}

// newLogger returns a JSON logger at the given level; unknown levels log
// at info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
