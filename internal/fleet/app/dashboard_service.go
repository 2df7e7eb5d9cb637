package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
)

const defaultActivityDays = 7

// FleetEvaluator runs a full fleet pass.
type FleetEvaluator interface {
	EvaluateFleet(ctx context.Context) ([]*Evaluation, error)
}

// DashboardCatalog resolves the drivers and routes named by schedule entries.
type DashboardCatalog interface {
	GetDriver(ctx context.Context, id int64) (*domain.Driver, error)
	GetRoute(ctx context.Context, id int64) (*domain.Route, error)
	ListStopsByRoute(ctx context.Context, routeID int64) ([]*domain.Stop, error)
}

// Overview is the dashboard landing payload.
type Overview struct {
	Stats       Stats           `json:"stats"`
	Buses       []*DashboardBus `json:"live_buses"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// DashboardBus is a derived vehicle with today's schedule.
type DashboardBus struct {
	*domain.Vehicle
	Schedules []*DashboardSchedule `json:"schedules"`
}

// DashboardSchedule is a schedule entry with its driver and route expanded.
// Status is the freshly derived one for entries that parse.
type DashboardSchedule struct {
	domain.ScheduleEntry
	Driver *DriverSummary `json:"driver,omitempty"`
	Route  *RouteSummary  `json:"route,omitempty"`
}

type DriverSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type RouteSummary struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Polyline string         `json:"polyline,omitempty"`
	Stops    []*domain.Stop `json:"stops"`
}

type DashboardService struct {
	log            logger.Logger
	fleet          FleetEvaluator
	analytics      domain.AnalyticsRepository
	catalog        DashboardCatalog
	clock          engine.Clock
	loc            *time.Location
	reportInterval time.Duration
}

func NewDashboardService(
	log logger.Logger,
	fleet FleetEvaluator,
	analytics domain.AnalyticsRepository,
	catalog DashboardCatalog,
	clock engine.Clock,
	loc *time.Location,
	reportInterval time.Duration,
) *DashboardService {
	if loc == nil {
		loc = clock.Now().Location()
	}
	return &DashboardService{
		log:            log,
		fleet:          fleet,
		analytics:      analytics,
		catalog:        catalog,
		clock:          clock,
		loc:            loc,
		reportInterval: reportInterval,
	}
}

// Overview re-derives every bus and returns the counts together with the
// derived vehicles and their schedules for today, so the numbers are never
// staler than the request.
func (s *DashboardService) Overview(ctx context.Context) (*Overview, error) {
	evals, err := s.fleet.EvaluateFleet(ctx)
	if err != nil {
		return nil, err
	}

	lookup := newCatalogLookup(ctx, s.log, s.catalog)
	buses := make([]*DashboardBus, 0, len(evals))
	for _, ev := range evals {
		if ev == nil || ev.Vehicle == nil {
			continue
		}
		buses = append(buses, &DashboardBus{Vehicle: ev.Vehicle, Schedules: lookup.schedules(ev)})
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].ID < buses[j].ID })
	return &Overview{
		Stats:       CountStatuses(evals),
		Buses:       buses,
		GeneratedAt: s.clock.Now(),
	}, nil
}

// catalogLookup memoises drivers and routes for one overview, since many buses
// share a route. Lookup failures are logged and leave the field empty.
type catalogLookup struct {
	ctx     context.Context
	log     logger.Logger
	catalog DashboardCatalog
	drivers map[int64]*DriverSummary
	routes  map[int64]*RouteSummary
}

func newCatalogLookup(ctx context.Context, log logger.Logger, catalog DashboardCatalog) *catalogLookup {
	return &catalogLookup{
		ctx:     ctx,
		log:     log,
		catalog: catalog,
		drivers: make(map[int64]*DriverSummary),
		routes:  make(map[int64]*RouteSummary),
	}
}

func (l *catalogLookup) schedules(ev *Evaluation) []*DashboardSchedule {
	out := make([]*DashboardSchedule, 0, len(ev.Entries)+len(ev.Skipped))
	for _, es := range ev.Entries {
		entry := *es.Entry
		entry.Status = es.Status
		out = append(out, l.expand(entry))
	}
	for _, sk := range ev.Skipped {
		out = append(out, l.expand(*sk.Entry))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *catalogLookup) expand(entry domain.ScheduleEntry) *DashboardSchedule {
	return &DashboardSchedule{
		ScheduleEntry: entry,
		Driver:        l.driver(entry.DriverID),
		Route:         l.route(entry.RouteID),
	}
}

func (l *catalogLookup) driver(id int64) *DriverSummary {
	if id <= 0 || l.catalog == nil {
		return nil
	}
	if d, ok := l.drivers[id]; ok {
		return d
	}
	var sum *DriverSummary
	d, err := l.catalog.GetDriver(l.ctx, id)
	if err != nil {
		l.log.WithFields(logger.LogFields{"driver_id": id}).Warn("dashboard_driver_lookup_failed", err.Error())
	} else {
		sum = &DriverSummary{ID: d.ID, Name: d.Name, PhotoURL: d.PhotoURL}
	}
	l.drivers[id] = sum
	return sum
}

func (l *catalogLookup) route(id int64) *RouteSummary {
	if id <= 0 || l.catalog == nil {
		return nil
	}
	if r, ok := l.routes[id]; ok {
		return r
	}
	var sum *RouteSummary
	r, err := l.catalog.GetRoute(l.ctx, id)
	if err != nil {
		l.log.WithFields(logger.LogFields{"route_id": id}).Warn("dashboard_route_lookup_failed", err.Error())
	} else {
		stops, err := l.catalog.ListStopsByRoute(l.ctx, id)
		if err != nil {
			l.log.WithFields(logger.LogFields{"route_id": id}).Warn("dashboard_stops_lookup_failed", err.Error())
		}
		if stops == nil {
			stops = []*domain.Stop{}
		}
		sum = &RouteSummary{ID: r.ID, Name: r.Name, Polyline: r.Polyline, Stops: stops}
	}
	l.routes[id] = sum
	return sum
}

// PassengerChart returns the hourly passenger peak for today in the fleet zone.
// Hours without samples are reported as zero.
func (s *DashboardService) PassengerChart(ctx context.Context) ([]domain.HourlyPassengers, error) {
	from := engine.StartOfDay(s.clock.Now().In(s.loc))
	to := from.AddDate(0, 0, 1)
	rows, err := s.analytics.HourlyMaxPassengers(ctx, from, to, s.loc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load passenger chart: %w", err)
	}
	chart := make([]domain.HourlyPassengers, 24)
	for h := range chart {
		chart[h].Hour = h
	}
	for _, r := range rows {
		if r.Hour >= 0 && r.Hour < 24 {
			chart[r.Hour].MaxPassengers = r.MaxPassengers
		}
	}
	return chart, nil
}

// DateRange is a half-open [From, To) interval of whole days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ResolveRange turns inclusive YYYY-MM-DD bounds into a day range in the fleet
// zone. Missing bounds default to the last defaultDays days ending today.
func (s *DashboardService) ResolveRange(start, end string, defaultDays int) (DateRange, error) {
	if defaultDays <= 0 {
		defaultDays = defaultActivityDays
	}
	loc := s.loc
	last := engine.StartOfDay(s.clock.Now().In(loc))
	if end != "" {
		t, err := time.ParseInLocation(time.DateOnly, end, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		last = t
	}
	first := last.AddDate(0, 0, -(defaultDays - 1))
	if start != "" {
		t, err := time.ParseInLocation(time.DateOnly, start, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		first = t
	}
	if last.Before(first) {
		return DateRange{}, fmt.Errorf("%w: end_date before start_date", domain.ErrInvalidInput)
	}
	return DateRange{From: first, To: last.AddDate(0, 0, 1)}, nil
}

// Activity returns per-day passenger statistics, optionally for a single bus.
func (s *DashboardService) Activity(ctx context.Context, r DateRange, vehicleID *int64) ([]domain.DailyActivity, error) {
	rows, err := s.analytics.DailyActivity(ctx, r.From, r.To, s.loc.String(), vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	return rows, nil
}

// Utilization estimates how long each bus reported in the range. Every sample
// stands for one report interval.
func (s *DashboardService) Utilization(ctx context.Context, r DateRange) ([]domain.VehicleUtilization, error) {
	rows, err := s.analytics.SampleCounts(ctx, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load utilization: %w", err)
	}
	for i := range rows {
		rows[i].ActiveMinutes = float64(rows[i].SampleCount) * s.reportInterval.Seconds() / 60
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ActiveMinutes > rows[j].ActiveMinutes })
	return rows, nil
}
