package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/AlibekovAA/user-directory/backend/internal/common/db/migrations"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
)

var gooseUpContext = func(ctx context.Context, conn *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, conn, dir, opts...)
}

// RunMigrations applies the embedded schema through a short-lived
// database/sql handle.
func RunMigrations(ctx context.Context, log *logger.Logger, databaseURL string) error {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer conn.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := gooseUpContext(ctx, conn, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, conn)
	if err == nil {
		metrics.DBMigrationsApplied.Set(float64(version))
		log.Infof("database schema at version %d", version)
	}
	return nil
}
