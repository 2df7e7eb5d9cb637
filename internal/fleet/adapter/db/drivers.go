package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
)

const driverColumns = `id, code, name, to_char(birth_date, 'YYYY-MM-DD'), phone, photo_url, status, created_at, updated_at`

func scanDriver(row pgx.Row) (*domain.Driver, error) {
	var d domain.Driver
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.BirthDate, &d.Phone, &d.PhotoURL, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDriver(ctx context.Context, d *domain.Driver) error {
	if d.Status == "" {
		d.Status = domain.DriverStatusStopped
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO drivers (code, name, birth_date, phone, photo_url, status)
		VALUES ($1, $2, $3::date, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		d.Code, d.Name, d.BirthDate, d.Phone, d.PhotoURL, d.Status,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr("create driver", err)
	}
	return nil
}

func (s *Store) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	d, err := scanDriver(s.pool.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get driver", err)
	}
	return d, nil
}

func (s *Store) ListDrivers(ctx context.Context, page domain.Page) ([]*domain.Driver, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM drivers`).Scan(&total); err != nil {
		return nil, 0, mapErr("count drivers", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list drivers", err)
	}
	defer rows.Close()

	var out []*domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, 0, mapErr("scan driver", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr("iterate drivers", err)
	}
	return out, total, nil
}

// UpdateDriver leaves status alone; it mirrors the assigned bus.
func (s *Store) UpdateDriver(ctx context.Context, d *domain.Driver) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE drivers
		SET code = $2, name = $3, birth_date = $4::date, phone = $5, photo_url = $6, updated_at = now()
		WHERE id = $1
		RETURNING status, created_at, updated_at`,
		d.ID, d.Code, d.Name, d.BirthDate, d.Phone, d.PhotoURL,
	).Scan(&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr("update driver", err)
	}
	return nil
}

func (s *Store) DeleteDriver(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM drivers WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete driver", err)
	}
	return affected("delete driver", tag)
}

func (s *Store) UpdateDriverStatus(ctx context.Context, id int64, status domain.DriverStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE drivers SET status = $2, updated_at = now() WHERE id = $1 AND status <> $2`,
		id, status)
	if err != nil {
		return false, mapErr("update driver status", err)
	}
	return tag.RowsAffected() > 0, nil
}
