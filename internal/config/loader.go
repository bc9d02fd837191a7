package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Lambda images ship without a zoneinfo database.

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: MP_ACCESS_TOKEN_SSM_PARAM holds
// the SSM path whose value becomes MP_ACCESS_TOKEN.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// ssmResolveTimeout bounds the whole batch resolution at startup.
const ssmResolveTimeout = 30 * time.Second

// envSource abstracts the process environment so tests do not mutate it.
type envSource struct {
	lookup  func(key string) (string, bool)
	set     func(key, value string) error
	environ func() []string
}

func osEnv() envSource {
	return envSource{
		lookup:  os.LookupEnv,
		set:     os.Setenv,
		environ: os.Environ,
	}
}

// Load reads, resolves and validates the configuration.
//
//  1. Load a .env file if present (never overrides real env vars).
//  2. Outside APP_ENV=local, resolve _SSM_PARAM pointers through provider.
//  3. Populate Config from envconfig tags.
//  4. Attach build metadata and resolve the business time zone.
//  5. Validate struct tags.
//
// provider may be nil when no _SSM_PARAM variables are present.
func Load(provider SecretProvider) (*Config, error) {
	return load(provider, osEnv())
}

func load(provider SecretProvider, env envSource) (*Config, error) {
	_ = godotenv.Load()

	appEnv, _ := env.lookup("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSSMParams(provider, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	loc, err := time.LoadLocation(cfg.Business.TimeZone)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrTimeZone,
			Message: fmt.Sprintf("unknown BUSINESS_TIMEZONE %q", cfg.Business.TimeZone),
			Err:     err,
		}
	}
	cfg.Business.Location = loc

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// resolveSSMParams finds every NAME_SSM_PARAM=/path variable whose NAME is
// not already set, fetches all paths in one batch and exports the values
// as NAME.
func resolveSSMParams(provider SecretProvider, env envSource) error {
	targets := make(map[string]string) // ssm path -> env var
	var order []string

	for _, entry := range env.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		name := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := env.lookup(name); exists {
			continue
		}
		if _, dup := targets[path]; !dup {
			order = append(order, path)
		}
		targets[path] = name
	}

	if len(order) == 0 {
		return nil
	}

	if provider == nil {
		names := make([]string, 0, len(order))
		for _, p := range order {
			names = append(names, targets[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve: %s", strings.Join(names, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, order)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(order)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range order {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, targets[path])
			continue
		}
		if err := env.set(targets[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to export %s", targets[path]),
				Err:     err,
			}
		}
	}

	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
