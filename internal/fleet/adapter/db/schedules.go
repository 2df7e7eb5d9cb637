package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
)

// Times come back as text so a bad row is skipped by the engine instead of
// failing the whole scan.
const scheduleColumns = `
	id, bus_id, COALESCE(driver_id, 0), COALESCE(route_id, 0),
	to_char(service_date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI:SS'),
	to_char(end_time, 'HH24:MI:SS'),
	status`

func scanSchedule(row pgx.Row) (*domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	if err := row.Scan(&e.ID, &e.VehicleID, &e.DriverID, &e.RouteID, &e.Date, &e.StartTime, &e.EndTime, &e.Status); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectSchedules(rows pgx.Rows) ([]*domain.ScheduleEntry, error) {
	defer rows.Close()
	var out []*domain.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, mapErr("scan schedule", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate schedules", err)
	}
	return out, nil
}

// nullID stores zero references as NULL.
func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (s *Store) CreateSchedule(ctx context.Context, e *domain.ScheduleEntry) error {
	if e.Status == "" {
		e.Status = domain.ScheduleStatusScheduled
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO schedules (bus_id, driver_id, route_id, service_date, start_time, end_time, status)
		VALUES ($1, $2, $3, $4::date, $5::time, $6::time, $7)
		RETURNING id`,
		e.VehicleID, nullID(e.DriverID), nullID(e.RouteID), e.Date, e.StartTime, e.EndTime, e.Status,
	).Scan(&e.ID)
	if err != nil {
		return mapErr("create schedule", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id int64) (*domain.ScheduleEntry, error) {
	e, err := scanSchedule(s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get schedule", err)
	}
	return e, nil
}

func (s *Store) ListSchedules(ctx context.Context, date string, page domain.Page) ([]*domain.ScheduleEntry, int, error) {
	const filter = ` WHERE ($1::text = '' OR service_date = NULLIF($1::text, '')::date)`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM schedules`+filter, date).Scan(&total); err != nil {
		return nil, 0, mapErr("count schedules", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules`+filter+
			` ORDER BY service_date DESC, start_time, id LIMIT $2 OFFSET $3`,
		date, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list schedules", err)
	}
	out, err := collectSchedules(rows)
	return out, total, err
}

func (s *Store) ListVehicleSchedulesForDate(ctx context.Context, vehicleID int64, date string) ([]*domain.ScheduleEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE bus_id = $1 AND service_date = $2::date
		 ORDER BY start_time, id`,
		vehicleID, date)
	if err != nil {
		return nil, mapErr("list vehicle schedules", err)
	}
	return collectSchedules(rows)
}

func (s *Store) ListDriverSchedulesForDate(ctx context.Context, driverID int64, date string) ([]*domain.ScheduleEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE driver_id = $1 AND service_date = $2::date
		 ORDER BY start_time, id`,
		driverID, date)
	if err != nil {
		return nil, mapErr("list driver schedules", err)
	}
	return collectSchedules(rows)
}

func (s *Store) UpdateSchedule(ctx context.Context, e *domain.ScheduleEntry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE schedules
		SET bus_id = $2, driver_id = $3, route_id = $4, service_date = $5::date,
		    start_time = $6::time, end_time = $7::time, updated_at = now()
		WHERE id = $1`,
		e.ID, e.VehicleID, nullID(e.DriverID), nullID(e.RouteID), e.Date, e.StartTime, e.EndTime)
	if err != nil {
		return mapErr("update schedule", err)
	}
	return affected("update schedule", tag)
}

func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete schedule", err)
	}
	return affected("delete schedule", tag)
}

func (s *Store) UpdateScheduleStatus(ctx context.Context, id int64, status domain.ScheduleStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE schedules SET status = $2, updated_at = now() WHERE id = $1 AND status <> $2`,
		id, status)
	if err != nil {
		return false, mapErr("update schedule status", err)
	}
	return tag.RowsAffected() > 0, nil
}
