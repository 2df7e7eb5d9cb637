package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
)

const maintenanceColumns = `
	id, bus_id, to_char(date, 'YYYY-MM-DD'), description, cost::float8, status, created_at, updated_at`

func scanMaintenance(row pgx.Row) (*domain.MaintenanceRecord, error) {
	var m domain.MaintenanceRecord
	if err := row.Scan(&m.ID, &m.VehicleID, &m.Date, &m.Description, &m.Cost, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMaintenance(rows pgx.Rows) ([]*domain.MaintenanceRecord, error) {
	defer rows.Close()
	var out []*domain.MaintenanceRecord
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, mapErr("scan maintenance", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate maintenance", err)
	}
	return out, nil
}

func (s *Store) CreateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO maintenance (bus_id, date, description, cost, status)
		VALUES ($1, $2::date, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		m.VehicleID, m.Date, m.Description, m.Cost, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return mapErr("create maintenance", err)
	}
	return nil
}

func (s *Store) GetMaintenance(ctx context.Context, id int64) (*domain.MaintenanceRecord, error) {
	m, err := scanMaintenance(s.pool.QueryRow(ctx, `SELECT `+maintenanceColumns+` FROM maintenance WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get maintenance", err)
	}
	return m, nil
}

func (s *Store) ListMaintenance(ctx context.Context, page domain.Page) ([]*domain.MaintenanceRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM maintenance`).Scan(&total); err != nil {
		return nil, 0, mapErr("count maintenance", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance ORDER BY date DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list maintenance", err)
	}
	out, err := collectMaintenance(rows)
	return out, total, err
}

// ListOpenMaintenance returns records that still hold the bus in the workshop.
func (s *Store) ListOpenMaintenance(ctx context.Context, vehicleID int64) ([]*domain.MaintenanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance
		 WHERE bus_id = $1 AND status IN ($2, $3)
		 ORDER BY date, id`,
		vehicleID, domain.MaintenanceStatusScheduled, domain.MaintenanceStatusInProgress)
	if err != nil {
		return nil, mapErr("list open maintenance", err)
	}
	return collectMaintenance(rows)
}

func (s *Store) UpdateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE maintenance
		SET bus_id = $2, date = $3::date, description = $4, cost = $5, status = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		m.ID, m.VehicleID, m.Date, m.Description, m.Cost, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return mapErr("update maintenance", err)
	}
	return nil
}

func (s *Store) DeleteMaintenance(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM maintenance WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete maintenance", err)
	}
	return affected("delete maintenance", tag)
}
