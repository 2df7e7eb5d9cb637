package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
)

type telemetryFixture struct {
	repo     *fakeRepo
	history  *fakeLog
	cache    *fakeCache
	notifier *fakeNotifier
	svc      *TelemetryService
}

func newTelemetryFixture(scope StopScope) *telemetryFixture {
	f := &telemetryFixture{
		repo:     newFakeRepo(),
		history:  &fakeLog{},
		cache:    &fakeCache{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewTelemetryService(
		logger.NewNop(),
		f.repo,
		f.history,
		f.cache,
		f.notifier,
		engine.NewResolver(engine.DefaultFloorSpeedKMH),
		engine.FixedClock{T: wibAt("10:00:00")},
		scope,
	)
	return f
}

func passengers(n int) *int { return &n }

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name    string
		sample  domain.TelemetrySample
		wantErr bool
	}{
		{"ok", domain.TelemetrySample{VehicleID: 1, Latitude: -6.2, Longitude: 106.8, SpeedKMH: 30}, false},
		{"missing id", domain.TelemetrySample{Latitude: -6.2, Longitude: 106.8}, true},
		{"latitude out of range", domain.TelemetrySample{VehicleID: 1, Latitude: 91, Longitude: 106.8}, true},
		{"longitude out of range", domain.TelemetrySample{VehicleID: 1, Latitude: 0, Longitude: -181}, true},
		{"negative speed", domain.TelemetrySample{VehicleID: 1, SpeedKMH: -1}, true},
		{"nan speed", domain.TelemetrySample{VehicleID: 1, SpeedKMH: math.NaN()}, true},
		{"negative passengers", domain.TelemetrySample{VehicleID: 1, PassengerCount: passengers(-2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSample(tt.sample)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestIngestUpdatesLiveStateAndNotifies(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.repo.stops = []*domain.Stop{
		{ID: 1, Latitude: -6.2000, Longitude: 106.8000},
		{ID: 2, Latitude: -6.2010, Longitude: 106.8000},
	}

	sample := domain.TelemetrySample{VehicleID: 1, Latitude: -6.2009, Longitude: 106.8, SpeedKMH: 0, PassengerCount: passengers(12)}
	if err := f.svc.Ingest(context.Background(), sample); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	v := f.repo.vehicles[1]
	if v.NextStopID == nil || *v.NextStopID != 2 {
		t.Fatalf("next stop = %v, want 2", v.NextStopID)
	}
	if v.DistanceToStop == nil || *v.DistanceToStop != 11 {
		t.Errorf("distance = %v, want 11", v.DistanceToStop)
	}
	// 11 m at the 20 km/h floor.
	if v.ETASeconds == nil || *v.ETASeconds != 2 {
		t.Errorf("eta = %v, want 2", v.ETASeconds)
	}
	if v.PassengerCount != 12 {
		t.Errorf("passengers = %d, want 12", v.PassengerCount)
	}
	if v.LastSeenAt == nil || !v.LastSeenAt.Equal(wibAt("10:00:00")) {
		t.Errorf("last seen = %v, want clock time", v.LastSeenAt)
	}
	if len(f.history.samples) != 1 || f.history.samples[0].RecordedAt.IsZero() {
		t.Errorf("history = %+v", f.history.samples)
	}
	if len(f.cache.put) != 1 {
		t.Errorf("cache puts = %d, want 1", len(f.cache.put))
	}
	if got := f.notifier.count(domain.NotificationBusLocation); got != 1 {
		t.Errorf("location notifications = %d, want 1", got)
	}
	if n := f.notifier.sent[0]; n.Status != domain.VehicleStatusRunning || n.PassengerCount != 12 {
		t.Errorf("notification = %+v", n)
	}
}

func TestIngestWithoutStopsLeavesFieldsEmpty(t *testing.T) {
	f := newTelemetryFixture(StopScopeRoute)
	f.repo.addVehicle(1, domain.VehicleStatusStopped)

	err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, Latitude: 1, Longitude: 1})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	v := f.repo.vehicles[1]
	if v.NextStopID != nil || v.DistanceToStop != nil || v.ETASeconds != nil {
		t.Errorf("expected nil stop fields, got %v %v %v", v.NextStopID, v.DistanceToStop, v.ETASeconds)
	}
}

func TestIngestRouteScopePrefersAssignedRoute(t *testing.T) {
	f := newTelemetryFixture(StopScopeRoute)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 0, 100, "09:00", "11:00")}
	f.repo.stops = []*domain.Stop{{ID: 9, Latitude: 0, Longitude: 0}}
	f.repo.routeStops[100] = []*domain.Stop{{ID: 5, RouteID: 100, Latitude: 1, Longitude: 1}}

	// The global stop is closer, but the bus serves route 100 now.
	if err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, Latitude: 0.001, Longitude: 0.001}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if v := f.repo.vehicles[1]; v.NextStopID == nil || *v.NextStopID != 5 {
		t.Fatalf("next stop = %v, want 5", v.NextStopID)
	}
}

func TestIngestRouteScopeFallsBackToGlobal(t *testing.T) {
	f := newTelemetryFixture(StopScopeRoute)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 0, 200, "09:00", "11:00")}
	f.repo.stops = []*domain.Stop{{ID: 9, Latitude: 0, Longitude: 0}}

	if err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, Latitude: 0.001, Longitude: 0.001}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if v := f.repo.vehicles[1]; v.NextStopID == nil || *v.NextStopID != 9 {
		t.Fatalf("next stop = %v, want 9", v.NextStopID)
	}
}

func TestIngestCachesStops(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.repo.stops = []*domain.Stop{{ID: 9}}

	for i := 0; i < 3; i++ {
		if err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	if f.repo.stopListCalls != 1 {
		t.Errorf("stop loads = %d, want 1", f.repo.stopListCalls)
	}

	f.svc.InvalidateStops()
	if err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if f.repo.stopListCalls != 2 {
		t.Errorf("stop loads after invalidate = %d, want 2", f.repo.stopListCalls)
	}
}

func TestIngestRejectsUnknownVehicle(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)

	err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 5, Latitude: 1, Longitude: 1})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.history.samples) != 0 || len(f.notifier.sent) != 0 {
		t.Error("unknown vehicle must not produce side effects")
	}
}

func TestIngestRejectsInvalidSample(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)

	err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, Latitude: 100})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(f.repo.liveWrites) != 0 {
		t.Error("invalid sample must not be written")
	}
}

func TestIngestHistoryFailureStillUpdatesLiveState(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.history.err = errBoom

	recorded := wibAt("09:59:58")
	err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, Latitude: 1, Longitude: 1, RecordedAt: recorded})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(f.repo.liveWrites) != 1 || !f.repo.liveWrites[0].SeenAt.Equal(recorded) {
		t.Errorf("live writes = %+v", f.repo.liveWrites)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.notifier.sent))
	}
}

func TestIngestNotifierFailureIsNotFatal(t *testing.T) {
	f := newTelemetryFixture(StopScopeGlobal)
	f.repo.addVehicle(1, domain.VehicleStatusRunning)
	f.notifier.err = errBoom

	if err := f.svc.Ingest(context.Background(), domain.TelemetrySample{VehicleID: 1, RecordedAt: time.Now()}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}
