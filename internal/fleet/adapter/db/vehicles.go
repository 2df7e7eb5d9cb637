package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
)

const vehicleColumns = `
	id, plate_number, code, capacity, type, photo_url, status,
	latitude, longitude, passenger_count, last_seen_at,
	last_stop_id, next_stop_id, distance_to_stop, eta_seconds,
	created_at, updated_at`

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(
		&v.ID, &v.PlateNumber, &v.Code, &v.Capacity, &v.Type, &v.PhotoURL, &v.Status,
		&v.Latitude, &v.Longitude, &v.PassengerCount, &v.LastSeenAt,
		&v.LastStopID, &v.NextStopID, &v.DistanceToStop, &v.ETASeconds,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	v, err := scanVehicle(s.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM buses WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get vehicle", err)
	}
	return v, nil
}

func (s *Store) ListAllVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM buses ORDER BY id`)
	if err != nil {
		return nil, mapErr("list vehicles", err)
	}
	defer rows.Close()
	return collectVehicles(rows)
}

func (s *Store) ListVehicles(ctx context.Context, page domain.Page) ([]*domain.Vehicle, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM buses`).Scan(&total); err != nil {
		return nil, 0, mapErr("count vehicles", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM buses ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list vehicles", err)
	}
	defer rows.Close()
	out, err := collectVehicles(rows)
	return out, total, err
}

func collectVehicles(rows pgx.Rows) ([]*domain.Vehicle, error) {
	var out []*domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, mapErr("scan vehicle", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate vehicles", err)
	}
	return out, nil
}

func (s *Store) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	if v.Status == "" {
		v.Status = domain.VehicleStatusStopped
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO buses (plate_number, code, capacity, type, photo_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		v.PlateNumber, v.Code, v.Capacity, v.Type, v.PhotoURL, v.Status,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return mapErr("create vehicle", err)
	}
	return nil
}

// UpdateVehicle writes the catalogue fields. Status and live fields belong to
// the state engine and telemetry and are left alone.
func (s *Store) UpdateVehicle(ctx context.Context, v *domain.Vehicle) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE buses
		SET plate_number = $2, code = $3, capacity = $4, type = $5, photo_url = $6, updated_at = now()
		WHERE id = $1
		RETURNING status, created_at, updated_at`,
		v.ID, v.PlateNumber, v.Code, v.Capacity, v.Type, v.PhotoURL,
	).Scan(&v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return mapErr("update vehicle", err)
	}
	return nil
}

func (s *Store) DeleteVehicle(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM buses WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete vehicle", err)
	}
	return affected("delete vehicle", tag)
}

// UpdateVehicleStatus only touches the row when the status differs.
func (s *Store) UpdateVehicleStatus(ctx context.Context, id int64, status domain.VehicleStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE buses SET status = $2, updated_at = now() WHERE id = $1 AND status <> $2`,
		id, status)
	if err != nil {
		return false, mapErr("update vehicle status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateVehicleLive(ctx context.Context, id int64, live domain.LiveFields) (*domain.Vehicle, error) {
	v, err := scanVehicle(s.pool.QueryRow(ctx, `
		UPDATE buses
		SET latitude = $2,
		    longitude = $3,
		    passenger_count = COALESCE($4, passenger_count),
		    last_seen_at = $5,
		    last_stop_id = CASE WHEN $6::bigint IS DISTINCT FROM next_stop_id THEN next_stop_id ELSE last_stop_id END,
		    next_stop_id = $6,
		    distance_to_stop = $7,
		    eta_seconds = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+vehicleColumns,
		id, live.Latitude, live.Longitude, live.PassengerCount, live.SeenAt,
		live.NextStopID, live.DistanceToStop, live.ETASeconds,
	))
	if err != nil {
		return nil, mapErr("update vehicle live state", err)
	}
	return v, nil
}
