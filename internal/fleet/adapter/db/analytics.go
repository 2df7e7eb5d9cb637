package db

import (
	"context"
	"time"

	"bus-fleet/internal/fleet/domain"
)

func (s *Store) HourlyMaxPassengers(ctx context.Context, from, to time.Time, zone string) ([]domain.HourlyPassengers, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM recorded_at AT TIME ZONE $3)::int AS hour,
		       COALESCE(MAX(passenger_count), 0)::int
		FROM telemetry
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY hour
		ORDER BY hour`,
		from, to, zone)
	if err != nil {
		return nil, mapErr("aggregate hourly passengers", err)
	}
	defer rows.Close()

	var out []domain.HourlyPassengers
	for rows.Next() {
		var h domain.HourlyPassengers
		if err := rows.Scan(&h.Hour, &h.MaxPassengers); err != nil {
			return nil, mapErr("scan hourly passengers", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate hourly passengers", err)
	}
	return out, nil
}

// DailyActivity buckets by local date. A nil vehicleID covers the whole fleet.
func (s *Store) DailyActivity(ctx context.Context, from, to time.Time, zone string, vehicleID *int64) ([]domain.DailyActivity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char((recorded_at AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,
		       COALESCE(MAX(passenger_count), 0)::int,
		       COALESCE(AVG(passenger_count), 0)::float8
		FROM telemetry
		WHERE recorded_at >= $1 AND recorded_at < $2
		  AND ($4::bigint IS NULL OR bus_id = $4)
		GROUP BY day
		ORDER BY day`,
		from, to, zone, vehicleID)
	if err != nil {
		return nil, mapErr("aggregate daily activity", err)
	}
	defer rows.Close()

	var out []domain.DailyActivity
	for rows.Next() {
		var d domain.DailyActivity
		if err := rows.Scan(&d.Date, &d.MaxPassengers, &d.AvgPassengers); err != nil {
			return nil, mapErr("scan daily activity", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate daily activity", err)
	}
	return out, nil
}

// SampleCounts lists every bus, including those without samples in range.
func (s *Store) SampleCounts(ctx context.Context, from, to time.Time) ([]domain.VehicleUtilization, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.plate_number, COUNT(t.id)
		FROM buses b
		LEFT JOIN telemetry t
		       ON t.bus_id = b.id AND t.recorded_at >= $1 AND t.recorded_at < $2
		GROUP BY b.id, b.plate_number
		ORDER BY b.id`,
		from, to)
	if err != nil {
		return nil, mapErr("count telemetry samples", err)
	}
	defer rows.Close()

	var out []domain.VehicleUtilization
	for rows.Next() {
		var u domain.VehicleUtilization
		if err := rows.Scan(&u.VehicleID, &u.PlateNumber, &u.SampleCount); err != nil {
			return nil, mapErr("scan sample count", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate sample counts", err)
	}
	return out, nil
}
