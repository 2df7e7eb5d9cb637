package app

import (
	"context"
	"fmt"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
)

// VehicleEvaluator re-derives one vehicle's status.
type VehicleEvaluator interface {
	EvaluateVehicle(ctx context.Context, vehicleID int64) (*Evaluation, error)
}

// CatalogService applies the business rules around schedule and maintenance
// mutations. Every mutation re-derives the affected vehicle so the dashboard
// sees the new status without waiting for the next pass.
type CatalogService struct {
	log       logger.Logger
	schedules domain.ScheduleStore
	records   domain.MaintenanceStore
	evaluator VehicleEvaluator
	clock     engine.Clock
}

func NewCatalogService(
	log logger.Logger,
	schedules domain.ScheduleStore,
	records domain.MaintenanceStore,
	evaluator VehicleEvaluator,
	clock engine.Clock,
) *CatalogService {
	return &CatalogService{
		log:       log,
		schedules: schedules,
		records:   records,
		evaluator: evaluator,
		clock:     clock,
	}
}

func (s *CatalogService) CreateSchedule(ctx context.Context, e *domain.ScheduleEntry) error {
	if e.Status == "" {
		e.Status = domain.ScheduleStatusScheduled
	}
	if err := s.schedules.CreateSchedule(ctx, e); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	s.reevaluate(ctx, e.VehicleID)
	return nil
}

func (s *CatalogService) UpdateSchedule(ctx context.Context, e *domain.ScheduleEntry) error {
	prev, err := s.schedules.GetSchedule(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get schedule: %w", err)
	}
	if e.Status == "" {
		e.Status = prev.Status
	}
	if err := s.schedules.UpdateSchedule(ctx, e); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	s.reevaluate(ctx, e.VehicleID)
	if prev.VehicleID != e.VehicleID {
		s.reevaluate(ctx, prev.VehicleID)
	}
	return nil
}

func (s *CatalogService) DeleteSchedule(ctx context.Context, id int64) error {
	prev, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get schedule: %w", err)
	}
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	s.reevaluate(ctx, prev.VehicleID)
	return nil
}

func (s *CatalogService) GetSchedule(ctx context.Context, id int64) (*domain.ScheduleEntry, error) {
	e, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	s.applyDerivedStatus([]*domain.ScheduleEntry{e})
	return e, nil
}

// ListSchedules returns a page of entries with statuses re-derived for entries
// dated today. Entries with unparseable windows keep their stored status.
func (s *CatalogService) ListSchedules(ctx context.Context, date string, page domain.Page) ([]*domain.ScheduleEntry, int, error) {
	entries, total, err := s.schedules.ListSchedules(ctx, date, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list schedules: %w", err)
	}
	s.applyDerivedStatus(entries)
	return entries, total, nil
}

func (s *CatalogService) applyDerivedStatus(entries []*domain.ScheduleEntry) {
	now := s.clock.Now()
	today := engine.DateString(now)
	for _, e := range entries {
		if e.Date != today {
			if e.Date < today && e.Status != domain.ScheduleStatusCompleted {
				e.Status = domain.ScheduleStatusCompleted
			}
			continue
		}
		w, err := engine.EntryWindow(now, e)
		if err != nil {
			s.log.WithFields(logger.LogFields{"schedule_id": e.ID}).Warn("schedule_entry_skipped", err.Error())
			continue
		}
		e.Status = engine.ScheduleStatusAt(now, w)
	}
}

func (s *CatalogService) CreateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error {
	if m.Status == "" {
		m.Status = domain.MaintenanceStatusScheduled
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: unknown maintenance status %q", domain.ErrInvalidInput, m.Status)
	}
	if err := s.records.CreateMaintenance(ctx, m); err != nil {
		return fmt.Errorf("failed to create maintenance: %w", err)
	}
	s.reevaluate(ctx, m.VehicleID)
	return nil
}

// UpdateMaintenance enforces the maintenance lifecycle before writing.
func (s *CatalogService) UpdateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error {
	prev, err := s.records.GetMaintenance(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to get maintenance: %w", err)
	}
	if m.Status == "" {
		m.Status = prev.Status
	}
	if err := domain.TransitionMaintenance(ctx, prev.Status, m.Status); err != nil {
		return err
	}
	if err := s.records.UpdateMaintenance(ctx, m); err != nil {
		return fmt.Errorf("failed to update maintenance: %w", err)
	}
	s.reevaluate(ctx, m.VehicleID)
	if prev.VehicleID != m.VehicleID {
		s.reevaluate(ctx, prev.VehicleID)
	}
	return nil
}

func (s *CatalogService) DeleteMaintenance(ctx context.Context, id int64) error {
	prev, err := s.records.GetMaintenance(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get maintenance: %w", err)
	}
	if err := s.records.DeleteMaintenance(ctx, id); err != nil {
		return fmt.Errorf("failed to delete maintenance: %w", err)
	}
	s.reevaluate(ctx, prev.VehicleID)
	return nil
}

func (s *CatalogService) GetMaintenance(ctx context.Context, id int64) (*domain.MaintenanceRecord, error) {
	return s.records.GetMaintenance(ctx, id)
}

func (s *CatalogService) ListMaintenance(ctx context.Context, page domain.Page) ([]*domain.MaintenanceRecord, int, error) {
	return s.records.ListMaintenance(ctx, page)
}

// reevaluate never fails the mutation; the periodic pass catches up.
func (s *CatalogService) reevaluate(ctx context.Context, vehicleID int64) {
	if s.evaluator == nil || vehicleID <= 0 {
		return
	}
	if _, err := s.evaluator.EvaluateVehicle(ctx, vehicleID); err != nil {
		s.log.WithFields(logger.LogFields{"vehicle_id": vehicleID}).Error("reevaluate_vehicle_failed", err)
	}
}
