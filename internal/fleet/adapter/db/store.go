package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgInvalidDatetime     = "22007"
	pgDatetimeOverflow    = "22008"
)

// Store implements the fleet repositories on PostgreSQL.
type Store struct {
	log  logger.Logger
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{log: log, pool: pool}
}

var (
	_ domain.StateRepository     = (*Store)(nil)
	_ domain.CatalogRepository   = (*Store)(nil)
	_ domain.HistoryRepository   = (*Store)(nil)
	_ domain.AnalyticsRepository = (*Store)(nil)
)

// mapErr translates driver errors into domain sentinels.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.Detail)
		case pgForeignKeyViolation, pgCheckViolation, pgInvalidDatetime, pgDatetimeOverflow:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidInput, pgErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// affected turns a zero-row command into ErrNotFound.
func affected(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func pageArgs(p domain.Page) (limit, offset int) {
	return p.Size, p.Offset()
}
