package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
)

func newFleetService(repo *fakeRepo, n domain.Notifier, now time.Time) *FleetService {
	return NewFleetService(
		logger.NewNop(),
		repo,
		engine.NewEngine(engine.Policy{StickyRunning: true}),
		engine.FixedClock{T: now},
		n,
		FleetOptions{VehicleTimeout: time.Second, Concurrency: 2},
	)
}

func schedule(id, vehicleID, driverID, routeID int64, start, end string) *domain.ScheduleEntry {
	return &domain.ScheduleEntry{
		ID:        id,
		VehicleID: vehicleID,
		DriverID:  driverID,
		RouteID:   routeID,
		Date:      "2025-03-10",
		StartTime: start,
		EndTime:   end,
		Status:    domain.ScheduleStatusScheduled,
	}
}

func TestEvaluateVehiclePropagatesChange(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusStopped)
	repo.drivers[10] = domain.DriverStatusStopped
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 10, 100, "09:00", "11:00")}
	n := &fakeNotifier{}

	svc := newFleetService(repo, n, wibAt("10:00:00"))
	ev, err := svc.EvaluateVehicle(context.Background(), 1)
	if err != nil {
		t.Fatalf("EvaluateVehicle: %v", err)
	}

	if ev.Vehicle.Status != domain.VehicleStatusRunning || !ev.Changed {
		t.Fatalf("got status %s changed %v, want running/true", ev.Vehicle.Status, ev.Changed)
	}
	if ev.Previous != domain.VehicleStatusStopped {
		t.Errorf("previous = %s, want stopped", ev.Previous)
	}
	if repo.vehicles[1].Status != domain.VehicleStatusRunning {
		t.Errorf("stored status = %s", repo.vehicles[1].Status)
	}
	if repo.drivers[10] != domain.DriverStatusRunning {
		t.Errorf("driver status = %s, want running", repo.drivers[10])
	}
	if repo.scheduleWrites[7] != domain.ScheduleStatusRunning {
		t.Errorf("schedule status = %q, want running", repo.scheduleWrites[7])
	}
	if got := n.count(domain.NotificationStatusChanged); got != 1 {
		t.Errorf("status notifications = %d, want 1", got)
	}
}

func TestEvaluateVehicleUnchangedWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusRunning)
	entry := schedule(7, 1, 0, 100, "09:00", "11:00")
	entry.Status = domain.ScheduleStatusRunning
	repo.schedules[1] = []*domain.ScheduleEntry{entry}
	n := &fakeNotifier{}

	svc := newFleetService(repo, n, wibAt("10:00:00"))
	ev, err := svc.EvaluateVehicle(context.Background(), 1)
	if err != nil {
		t.Fatalf("EvaluateVehicle: %v", err)
	}
	if ev.Changed {
		t.Error("expected no change")
	}
	if repo.statusWrites != 0 {
		t.Errorf("status writes = %d, want 0", repo.statusWrites)
	}
	if len(repo.scheduleWrites) != 0 {
		t.Errorf("schedule writes = %v, want none", repo.scheduleWrites)
	}
	if len(n.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(n.sent))
	}
}

func TestEvaluateVehicleMaintenanceStopsDriver(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusRunning)
	repo.drivers[10] = domain.DriverStatusRunning
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 10, 100, "09:00", "11:00")}
	repo.maintenance[1] = []*domain.MaintenanceRecord{{ID: 3, VehicleID: 1, Status: domain.MaintenanceStatusInProgress}}

	svc := newFleetService(repo, &fakeNotifier{}, wibAt("10:00:00"))
	ev, err := svc.EvaluateVehicle(context.Background(), 1)
	if err != nil {
		t.Fatalf("EvaluateVehicle: %v", err)
	}
	if ev.Vehicle.Status != domain.VehicleStatusUnderMaintenance {
		t.Fatalf("status = %s, want under_maintenance", ev.Vehicle.Status)
	}
	if repo.drivers[10] != domain.DriverStatusStopped {
		t.Errorf("driver status = %s, want stopped", repo.drivers[10])
	}
}

func TestDriverSharedAcrossVehiclesFollowsCurrentAssignment(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusStopped)
	repo.addVehicle(2, domain.VehicleStatusStopped)
	repo.drivers[10] = domain.DriverStatusStopped
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 10, 100, "08:00", "09:00")}
	repo.schedules[2] = []*domain.ScheduleEntry{schedule(8, 2, 10, 100, "09:30", "11:00")}

	svc := newFleetService(repo, &fakeNotifier{}, wibAt("10:00:00"))
	for _, order := range [][]int64{{2, 1}, {1, 2}} {
		repo.drivers[10] = domain.DriverStatusStopped
		for _, id := range order {
			if _, err := svc.EvaluateVehicle(context.Background(), id); err != nil {
				t.Fatalf("EvaluateVehicle(%d): %v", id, err)
			}
		}
		if repo.drivers[10] != domain.DriverStatusRunning {
			t.Errorf("order %v: driver status = %s, want running", order, repo.drivers[10])
		}
	}

	if _, err := svc.EvaluateFleet(context.Background()); err != nil {
		t.Fatalf("EvaluateFleet: %v", err)
	}
	if repo.drivers[10] != domain.DriverStatusRunning {
		t.Errorf("after fleet pass: driver status = %s, want running", repo.drivers[10])
	}
}

func TestEvaluateVehicleMissingDriverIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusStopped)
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 99, 100, "09:00", "11:00")}

	svc := newFleetService(repo, &fakeNotifier{}, wibAt("10:00:00"))
	if _, err := svc.EvaluateVehicle(context.Background(), 1); err != nil {
		t.Fatalf("EvaluateVehicle: %v", err)
	}
}

func TestEvaluateVehicleWriteFailureKeepsDerivedStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusStopped)
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 0, 100, "09:00", "11:00")}
	repo.statusWriteErr = errBoom
	n := &fakeNotifier{}

	svc := newFleetService(repo, n, wibAt("10:00:00"))
	ev, err := svc.EvaluateVehicle(context.Background(), 1)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if ev == nil || ev.Vehicle.Status != domain.VehicleStatusRunning {
		t.Fatalf("expected derived running status alongside the error, got %+v", ev)
	}
	if ev.Changed || len(n.sent) != 0 {
		t.Error("a failed write must not be reported as a change")
	}
}

func TestEvaluateVehicleUnknown(t *testing.T) {
	svc := newFleetService(newFakeRepo(), nil, wibAt("10:00:00"))
	if _, err := svc.EvaluateVehicle(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEvaluateFleetIsolatesFailures(t *testing.T) {
	repo := newFakeRepo()
	repo.addVehicle(1, domain.VehicleStatusStopped)
	repo.addVehicle(2, domain.VehicleStatusRunning)
	repo.addVehicle(3, domain.VehicleStatusStopped)
	repo.schedules[1] = []*domain.ScheduleEntry{schedule(7, 1, 0, 100, "09:00", "11:00")}
	repo.schedules[3] = []*domain.ScheduleEntry{schedule(8, 3, 0, 100, "12:00", "13:00")}
	repo.scheduleErr[2] = errBoom

	svc := newFleetService(repo, &fakeNotifier{}, wibAt("10:00:00"))
	evals, err := svc.EvaluateFleet(context.Background())
	if err != nil {
		t.Fatalf("EvaluateFleet: %v", err)
	}
	if len(evals) != 3 {
		t.Fatalf("evaluations = %d, want 3", len(evals))
	}

	byID := make(map[int64]*Evaluation)
	for _, ev := range evals {
		byID[ev.Vehicle.ID] = ev
	}
	if byID[1].Vehicle.Status != domain.VehicleStatusRunning || byID[1].Err != nil {
		t.Errorf("vehicle 1: %s %v", byID[1].Vehicle.Status, byID[1].Err)
	}
	if !errors.Is(byID[2].Err, errBoom) {
		t.Errorf("vehicle 2 err = %v, want boom", byID[2].Err)
	}
	if byID[2].Vehicle.Status != domain.VehicleStatusRunning {
		t.Errorf("vehicle 2 should keep its stored status, got %s", byID[2].Vehicle.Status)
	}
	if byID[3].Vehicle.Status != domain.VehicleStatusScheduled {
		t.Errorf("vehicle 3: %s, want scheduled", byID[3].Vehicle.Status)
	}

	st := CountStatuses(evals)
	if st.Running != 2 || st.Scheduled != 1 || st.Stopped != 0 || st.Maintenance != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAssignedEntry(t *testing.T) {
	mk := func(id int64, start, end time.Time, status domain.ScheduleStatus) engine.EntryStatus {
		return engine.EntryStatus{
			Entry:  &domain.ScheduleEntry{ID: id},
			Window: engine.Window{Start: start, End: end},
			Status: status,
		}
	}
	h := func(clock string) time.Time { return wibAt(clock) }

	tests := []struct {
		name    string
		entries []engine.EntryStatus
		want    int64
	}{
		{"none", nil, 0},
		{
			"running wins",
			[]engine.EntryStatus{
				mk(1, h("06:00:00"), h("07:00:00"), domain.ScheduleStatusCompleted),
				mk(2, h("12:00:00"), h("13:00:00"), domain.ScheduleStatusScheduled),
				mk(3, h("09:00:00"), h("11:00:00"), domain.ScheduleStatusRunning),
			},
			3,
		},
		{
			"earliest upcoming",
			[]engine.EntryStatus{
				mk(1, h("15:00:00"), h("16:00:00"), domain.ScheduleStatusScheduled),
				mk(2, h("12:00:00"), h("13:00:00"), domain.ScheduleStatusScheduled),
			},
			2,
		},
		{
			"latest finished",
			[]engine.EntryStatus{
				mk(1, h("06:00:00"), h("07:00:00"), domain.ScheduleStatusCompleted),
				mk(2, h("07:00:00"), h("08:00:00"), domain.ScheduleStatusCompleted),
			},
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssignedEntry(tt.entries)
			var id int64
			if got != nil {
				id = got.ID
			}
			if id != tt.want {
				t.Errorf("assigned = %d, want %d", id, tt.want)
			}
		})
	}
}

func TestCountStatusesSkipsNil(t *testing.T) {
	evals := []*Evaluation{
		nil,
		{Vehicle: &domain.Vehicle{Status: domain.VehicleStatusUnderMaintenance}},
		{Vehicle: &domain.Vehicle{Status: domain.VehicleStatusStopped}},
		{},
	}
	st := CountStatuses(evals)
	if st != (Stats{Maintenance: 1, Stopped: 1}) {
		t.Errorf("stats = %+v", st)
	}
}
