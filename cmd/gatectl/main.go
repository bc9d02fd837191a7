// Command gatectl is the operator CLI for coworkgate: schema migrations,
// manual check-ins, payment replays and membership transitions. It loads the
// same configuration as the API and runs through the same services.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"coworkgate/internal/app"
	"coworkgate/internal/config"
	"coworkgate/internal/db"
)

// Version is injected via ldflags.
var Version = "dev"

// deps are the seams the commands are built on; tests replace them.
type deps struct {
	loadConfig func() (*config.Config, error)
	newApp     func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)
	migrate    func(ctx context.Context, dsn, direction string) error
	logOut     io.Writer
}

func defaultDeps() *deps {
	return &deps{
		loadConfig: func() (*config.Config, error) {
			if os.Getenv("APP_ENV") == "local" {
				return config.Load(config.NewEnvVarProvider())
			}
			return config.Load(config.NewSSMProvider(os.Getenv("AWS_REGION")))
		},
		newApp: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger)
		},
		migrate: db.Migrate,
		logOut:  os.Stderr,
	}
}

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(d *deps) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operate the coworkgate membership and access engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	logger := func() *slog.Logger {
		lvl := slog.LevelWarn
		if verbose {
			lvl = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(d.logOut, &slog.HandlerOptions{Level: lvl}))
	}

	root.AddCommand(
		migrateCmd(d),
		checkinCmd(d, logger),
		reconcileCmd(d, logger),
		membershipCmd(d, logger),
		classifyCmd(),
	)
	return root
}

// withApp loads configuration, wires the services and closes them after fn.
func withApp(cmd *cobra.Command, d *deps, logger func() *slog.Logger, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := d.newApp(ctx, cfg, logger())
	if err != nil {
		return fmt.Errorf("wiring services: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
