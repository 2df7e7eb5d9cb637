package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bus-fleet/internal/fleet/domain"
)

var wib = time.FixedZone("WIB", 7*3600)

func wibAt(clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", "2025-03-10 "+clock, wib)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeRepo struct {
	mu          sync.Mutex
	vehicles    map[int64]*domain.Vehicle
	schedules   map[int64][]*domain.ScheduleEntry
	maintenance map[int64][]*domain.MaintenanceRecord
	drivers     map[int64]domain.DriverStatus
	stops       []*domain.Stop
	routeStops  map[int64][]*domain.Stop

	scheduleErr    map[int64]error
	statusWriteErr error
	statusWrites   int
	scheduleWrites map[int64]domain.ScheduleStatus
	liveWrites     []domain.LiveFields
	stopListCalls  int
	routeListCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		vehicles:       make(map[int64]*domain.Vehicle),
		schedules:      make(map[int64][]*domain.ScheduleEntry),
		maintenance:    make(map[int64][]*domain.MaintenanceRecord),
		drivers:        make(map[int64]domain.DriverStatus),
		routeStops:     make(map[int64][]*domain.Stop),
		scheduleErr:    make(map[int64]error),
		scheduleWrites: make(map[int64]domain.ScheduleStatus),
	}
}

func (r *fakeRepo) addVehicle(id int64, status domain.VehicleStatus) {
	r.vehicles[id] = &domain.Vehicle{ID: id, PlateNumber: fmt.Sprintf("B %d XYZ", id), Status: status}
}

func (r *fakeRepo) GetVehicle(_ context.Context, id int64) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeRepo) ListAllVehicles(_ context.Context) ([]*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) UpdateVehicleStatus(_ context.Context, id int64, status domain.VehicleStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statusWriteErr != nil {
		return false, r.statusWriteErr
	}
	v, ok := r.vehicles[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if v.Status == status {
		return false, nil
	}
	v.Status = status
	r.statusWrites++
	return true, nil
}

func (r *fakeRepo) UpdateVehicleLive(_ context.Context, id int64, live domain.LiveFields) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	lat, lon := live.Latitude, live.Longitude
	seen := live.SeenAt
	v.Latitude = &lat
	v.Longitude = &lon
	v.LastSeenAt = &seen
	if live.PassengerCount != nil {
		v.PassengerCount = *live.PassengerCount
	}
	v.NextStopID = live.NextStopID
	v.DistanceToStop = live.DistanceToStop
	v.ETASeconds = live.ETASeconds
	r.liveWrites = append(r.liveWrites, live)
	cp := *v
	return &cp, nil
}

func (r *fakeRepo) ListVehicleSchedulesForDate(_ context.Context, vehicleID int64, _ string) ([]*domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.scheduleErr[vehicleID]; err != nil {
		return nil, err
	}
	return r.schedules[vehicleID], nil
}

func (r *fakeRepo) ListDriverSchedulesForDate(_ context.Context, driverID int64, _ string) ([]*domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScheduleEntry
	for _, entries := range r.schedules {
		for _, e := range entries {
			if e.DriverID == driverID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateScheduleStatus(_ context.Context, id int64, status domain.ScheduleStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduleWrites[id] = status
	return true, nil
}

func (r *fakeRepo) ListOpenMaintenance(_ context.Context, vehicleID int64) ([]*domain.MaintenanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []*domain.MaintenanceRecord
	for _, m := range r.maintenance[vehicleID] {
		if m.Status.IsOpen() {
			open = append(open, m)
		}
	}
	return open, nil
}

func (r *fakeRepo) UpdateDriverStatus(_ context.Context, id int64, status domain.DriverStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.drivers[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	r.drivers[id] = status
	return prev != status, nil
}

func (r *fakeRepo) ListStops(_ context.Context) ([]*domain.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopListCalls++
	return r.stops, nil
}

func (r *fakeRepo) ListStopsByRoute(_ context.Context, routeID int64) ([]*domain.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeListCalls++
	return r.routeStops[routeID], nil
}

type fakeLog struct {
	mu      sync.Mutex
	samples []domain.TelemetrySample
	err     error
}

func (l *fakeLog) Append(_ context.Context, s domain.TelemetrySample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.samples = append(l.samples, s)
	return nil
}

type fakeCache struct {
	mu  sync.Mutex
	put []*domain.Vehicle
}

func (c *fakeCache) Put(_ context.Context, v *domain.Vehicle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put = append(c.put, v)
	return nil
}

func (c *fakeCache) Remove(context.Context, int64) error { return nil }

func (c *fakeCache) Nearby(context.Context, float64, float64, float64, int) ([]domain.NearbyVehicle, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.VehicleNotification
	err  error
}

func (n *fakeNotifier) Publish(_ context.Context, msg domain.VehicleNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Type == kind {
			c++
		}
	}
	return c
}

var errBoom = errors.New("boom")
