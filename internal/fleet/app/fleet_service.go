package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

const (
	defaultVehicleTimeout  = 5 * time.Second
	defaultPassConcurrency = 8
)

// Evaluation is the result of deriving one vehicle's status. Vehicle carries the
// derived status even when writing it back failed; Err holds that failure.
type Evaluation struct {
	Vehicle  *domain.Vehicle
	Previous domain.VehicleStatus
	Changed  bool
	Entries  []engine.EntryStatus
	Skipped  []engine.SkippedEntry
	Err      error
}

// Stats counts vehicles per derived status.
type Stats struct {
	Running     int `json:"running"`
	Stopped     int `json:"stopped"`
	Maintenance int `json:"maintenance"`
	Scheduled   int `json:"scheduled"`
}

// FleetService runs the fleet state engine and propagates its results.
type FleetService struct {
	log            logger.Logger
	repo           domain.StateRepository
	engine         *engine.Engine
	clock          engine.Clock
	notifier       domain.Notifier
	vehicleTimeout time.Duration
	concurrency    int
}

type FleetOptions struct {
	VehicleTimeout time.Duration
	Concurrency    int
}

func NewFleetService(
	log logger.Logger,
	repo domain.StateRepository,
	eng *engine.Engine,
	clock engine.Clock,
	notifier domain.Notifier,
	opts FleetOptions,
) *FleetService {
	if opts.VehicleTimeout <= 0 {
		opts.VehicleTimeout = defaultVehicleTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultPassConcurrency
	}
	return &FleetService{
		log:            log,
		repo:           repo,
		engine:         eng,
		clock:          clock,
		notifier:       notifier,
		vehicleTimeout: opts.VehicleTimeout,
		concurrency:    opts.Concurrency,
	}
}

// EvaluateVehicle re-derives and propagates the status of one vehicle.
func (s *FleetService) EvaluateVehicle(ctx context.Context, vehicleID int64) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.vehicleTimeout)
	defer cancel()

	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		s.log.WithFields(logger.LogFields{"vehicle_id": vehicleID}).Error("evaluate_vehicle_lookup_failed", err)
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	ev := s.evaluate(ctx, v)
	return ev, ev.Err
}

// EvaluateFleet derives every vehicle concurrently. Each vehicle has its own
// timeout and a failing vehicle never aborts the pass; its error is carried in
// its Evaluation.
func (s *FleetService) EvaluateFleet(ctx context.Context) ([]*Evaluation, error) {
	started := time.Now()
	defer func() { metrics.PassDuration.Observe(time.Since(started).Seconds()) }()

	vehicles, err := s.repo.ListAllVehicles(ctx)
	if err != nil {
		s.log.Error("fleet_pass_list_failed", err)
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}

	results := make([]*Evaluation, len(vehicles))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, v := range vehicles {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(ctx, s.vehicleTimeout)
			defer cancel()
			results[i] = s.evaluate(vctx, v)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.log.WithFields(logger.LogFields{
		"vehicles": len(results),
		"failed":   failed,
		"duration": time.Since(started),
	}).Debug("fleet_pass_completed", "Fleet status pass finished")

	return results, nil
}

// Run evaluates the fleet every interval until ctx is cancelled.
func (s *FleetService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("fleet_pass_loop_start", fmt.Sprintf("Running fleet status pass every %s", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("fleet_pass_loop_stop", "Stopping fleet status pass loop")
			return
		case <-ticker.C:
			if _, err := s.EvaluateFleet(ctx); err != nil {
				s.log.Error("fleet_pass_failed", err)
			}
		}
	}
}

// CountStatuses tallies evaluations by derived status.
func CountStatuses(evals []*Evaluation) Stats {
	var st Stats
	for _, ev := range evals {
		if ev == nil || ev.Vehicle == nil {
			continue
		}
		switch ev.Vehicle.Status {
		case domain.VehicleStatusRunning:
			st.Running++
		case domain.VehicleStatusStopped:
			st.Stopped++
		case domain.VehicleStatusUnderMaintenance:
			st.Maintenance++
		case domain.VehicleStatusScheduled:
			st.Scheduled++
		}
	}
	return st
}

func (s *FleetService) evaluate(ctx context.Context, v *domain.Vehicle) *Evaluation {
	log := s.log.WithFields(logger.LogFields{"vehicle_id": v.ID})
	now := s.clock.Now()

	derived := *v
	ev := &Evaluation{Vehicle: &derived, Previous: v.Status}

	entries, err := s.repo.ListVehicleSchedulesForDate(ctx, v.ID, engine.DateString(now))
	if err != nil {
		log.Error("evaluate_schedules_failed", err)
		ev.Err = fmt.Errorf("failed to load schedules: %w", err)
		return ev
	}
	open, err := s.repo.ListOpenMaintenance(ctx, v.ID)
	if err != nil {
		log.Error("evaluate_maintenance_failed", err)
		ev.Err = fmt.Errorf("failed to load maintenance: %w", err)
		return ev
	}

	d := s.engine.Derive(now, entries, open, v.Status)
	for _, sk := range d.Skipped {
		log.WithFields(logger.LogFields{"schedule_id": sk.Entry.ID}).Warn("schedule_entry_skipped", sk.Err.Error())
	}
	derived.Status = d.Status
	ev.Entries = d.Entries
	ev.Skipped = d.Skipped

	var errs []error
	if d.Status != v.Status {
		changed, err := s.repo.UpdateVehicleStatus(ctx, v.ID, d.Status)
		switch {
		case err != nil:
			log.Error("vehicle_status_write_failed", err)
			errs = append(errs, fmt.Errorf("failed to update vehicle status: %w", err))
		case changed:
			ev.Changed = true
			metrics.StatusChanges.WithLabelValues(string(d.Status)).Inc()
			log.WithFields(logger.LogFields{"from": string(v.Status), "to": string(d.Status)}).Info("vehicle_status_changed", "Vehicle status updated")
		}
	}

	for _, es := range d.Entries {
		if es.Status == es.Entry.Status {
			continue
		}
		if _, err := s.repo.UpdateScheduleStatus(ctx, es.Entry.ID, es.Status); err != nil {
			log.WithFields(logger.LogFields{"schedule_id": es.Entry.ID}).Error("schedule_status_write_failed", err)
			errs = append(errs, fmt.Errorf("failed to update schedule %d: %w", es.Entry.ID, err))
		}
	}

	if assigned := AssignedEntry(d.Entries); assigned != nil && assigned.DriverID > 0 {
		if err := s.mirrorDriver(ctx, log, now, v.ID, assigned.DriverID, d.Status); err != nil {
			errs = append(errs, err)
		}
	}

	if ev.Changed && s.notifier != nil {
		n := domain.NotificationFromVehicle(domain.NotificationStatusChanged, &derived, now)
		if err := s.notifier.Publish(ctx, n); err != nil {
			log.Error("status_notification_failed", err)
		}
	}

	ev.Err = errors.Join(errs...)
	if ev.Err != nil {
		metrics.VehicleEvaluationErrors.Inc()
	}
	return ev
}

// mirrorDriver copies the vehicle status onto the driver, but only when this
// vehicle owns the driver's assignment across all of the driver's entries for
// the day. Otherwise the vehicle holding that assignment writes it.
func (s *FleetService) mirrorDriver(ctx context.Context, log logger.Logger, now time.Time, vehicleID, driverID int64, status domain.VehicleStatus) error {
	log = log.WithFields(logger.LogFields{"driver_id": driverID})

	entries, err := s.repo.ListDriverSchedulesForDate(ctx, driverID, engine.DateString(now))
	if err != nil {
		log.Error("driver_schedules_failed", err)
		return fmt.Errorf("failed to load schedules of driver %d: %w", driverID, err)
	}
	derived, _ := engine.EntryStatuses(now, entries)
	owner := AssignedEntry(derived)
	if owner == nil || owner.VehicleID != vehicleID {
		log.Debug("driver_mirror_skipped", "Driver is assigned to another vehicle")
		return nil
	}

	_, err = s.repo.UpdateDriverStatus(ctx, driverID, domain.DriverStatusFor(status))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("driver_missing", "Assigned driver no longer exists")
	case err != nil:
		log.Error("driver_status_write_failed", err)
		return fmt.Errorf("failed to update driver %d: %w", driverID, err)
	}
	return nil
}

// AssignedEntry picks the schedule entry that currently owns the vehicle: the
// running one, else the next upcoming one, else the one that finished last.
func AssignedEntry(entries []engine.EntryStatus) *domain.ScheduleEntry {
	var upcoming, finished *engine.EntryStatus
	for i := range entries {
		es := &entries[i]
		switch es.Status {
		case domain.ScheduleStatusRunning:
			return es.Entry
		case domain.ScheduleStatusScheduled:
			if upcoming == nil || es.Window.Start.Before(upcoming.Window.Start) {
				upcoming = es
			}
		case domain.ScheduleStatusCompleted:
			if finished == nil || es.Window.End.After(finished.Window.End) {
				finished = es
			}
		}
	}
	if upcoming != nil {
		return upcoming.Entry
	}
	if finished != nil {
		return finished.Entry
	}
	return nil
}
