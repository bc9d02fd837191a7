package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver used by goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	gooseInit    sync.Once
	gooseInitErr error
)

// Migrate applies the embedded schema. direction is "up", "down" or
// "status".
func Migrate(ctx context.Context, dsn, direction string) error {
	gooseInit.Do(func() {
		goose.SetBaseFS(migrationsFS)
		gooseInitErr = goose.SetDialect("postgres")
	})
	if gooseInitErr != nil {
		return fmt.Errorf("goose dialect: %w", gooseInitErr)
	}

	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(sqlDB)

	switch direction {
	case "up":
		err = goose.UpContext(ctx, sqlDB, "migrations")
	case "down":
		err = goose.DownContext(ctx, sqlDB, "migrations")
	case "status":
		err = goose.StatusContext(ctx, sqlDB, "migrations")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}
