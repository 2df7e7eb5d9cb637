package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"bus-fleet/pkg/logger"
)

//go:embed *.sql
var files embed.FS

// Apply brings the schema up to the latest embedded version. Versions are
// recorded in goose_db_version, so already-applied files are skipped.
func Apply(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		log.WithFields(logger.LogFields{
			"migration":   r.Source.Path,
			"duration_ms": r.Duration.Milliseconds(),
		}).Info("db_migration_applied", "Migration applied")
	}
	if len(results) == 0 {
		log.Debug("db_migration_current", "Schema is up to date")
	}
	return nil
}
