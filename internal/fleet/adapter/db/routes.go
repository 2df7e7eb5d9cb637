package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
)

const routeColumns = `id, name, code, status, polyline, created_at, updated_at`

func scanRoute(row pgx.Row) (*domain.Route, error) {
	var r domain.Route
	if err := row.Scan(&r.ID, &r.Name, &r.Code, &r.Status, &r.Polyline, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateRoute(ctx context.Context, r *domain.Route) error {
	if r.Status == "" {
		r.Status = domain.RouteStatusActive
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO routes (name, code, status, polyline)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		r.Name, r.Code, r.Status, r.Polyline,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapErr("create route", err)
	}
	return nil
}

func (s *Store) GetRoute(ctx context.Context, id int64) (*domain.Route, error) {
	r, err := scanRoute(s.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get route", err)
	}
	return r, nil
}

func (s *Store) ListRoutes(ctx context.Context, page domain.Page) ([]*domain.Route, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM routes`).Scan(&total); err != nil {
		return nil, 0, mapErr("count routes", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list routes", err)
	}
	defer rows.Close()

	var out []*domain.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, 0, mapErr("scan route", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr("iterate routes", err)
	}
	return out, total, nil
}

func (s *Store) UpdateRoute(ctx context.Context, r *domain.Route) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE routes
		SET name = $2, code = $3, status = $4, polyline = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		r.ID, r.Name, r.Code, r.Status, r.Polyline,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapErr("update route", err)
	}
	return nil
}

func (s *Store) DeleteRoute(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete route", err)
	}
	return affected("delete route", tag)
}

// Stops

const stopColumns = `id, name, latitude, longitude, route_id, sequence`

func scanStop(row pgx.Row) (*domain.Stop, error) {
	var st domain.Stop
	if err := row.Scan(&st.ID, &st.Name, &st.Latitude, &st.Longitude, &st.RouteID, &st.Sequence); err != nil {
		return nil, err
	}
	return &st, nil
}

func collectStops(rows pgx.Rows) ([]*domain.Stop, error) {
	defer rows.Close()
	var out []*domain.Stop
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, mapErr("scan stop", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate stops", err)
	}
	return out, nil
}

func (s *Store) CreateStop(ctx context.Context, st *domain.Stop) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO stops (name, latitude, longitude, route_id, sequence)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		st.Name, st.Latitude, st.Longitude, st.RouteID, st.Sequence,
	).Scan(&st.ID)
	if err != nil {
		return mapErr("create stop", err)
	}
	return nil
}

func (s *Store) GetStop(ctx context.Context, id int64) (*domain.Stop, error) {
	st, err := scanStop(s.pool.QueryRow(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get stop", err)
	}
	return st, nil
}

// ListStops returns every stop ordered by route and sequence so nearest-stop
// ties resolve the same way on every call.
func (s *Store) ListStops(ctx context.Context) ([]*domain.Stop, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stopColumns+` FROM stops ORDER BY route_id, sequence, id`)
	if err != nil {
		return nil, mapErr("list stops", err)
	}
	return collectStops(rows)
}

func (s *Store) ListStopsPage(ctx context.Context, page domain.Page) ([]*domain.Stop, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM stops`).Scan(&total); err != nil {
		return nil, 0, mapErr("count stops", err)
	}
	limit, offset := pageArgs(page)
	rows, err := s.pool.Query(ctx,
		`SELECT `+stopColumns+` FROM stops ORDER BY route_id, sequence, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list stops", err)
	}
	out, err := collectStops(rows)
	return out, total, err
}

func (s *Store) ListStopsByRoute(ctx context.Context, routeID int64) ([]*domain.Stop, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stopColumns+` FROM stops WHERE route_id = $1 ORDER BY sequence, id`, routeID)
	if err != nil {
		return nil, mapErr("list route stops", err)
	}
	return collectStops(rows)
}

func (s *Store) UpdateStop(ctx context.Context, st *domain.Stop) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stops
		SET name = $2, latitude = $3, longitude = $4, route_id = $5, sequence = $6
		WHERE id = $1`,
		st.ID, st.Name, st.Latitude, st.Longitude, st.RouteID, st.Sequence)
	if err != nil {
		return mapErr("update stop", err)
	}
	return affected("update stop", tag)
}

func (s *Store) DeleteStop(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stops WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete stop", err)
	}
	return affected("delete stop", tag)
}
