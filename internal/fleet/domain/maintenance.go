package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
)

type MaintenanceStatus string

const (
	MaintenanceStatusScheduled  MaintenanceStatus = "scheduled"
	MaintenanceStatusInProgress MaintenanceStatus = "in_progress"
	MaintenanceStatusCompleted  MaintenanceStatus = "completed"
	MaintenanceStatusCancelled  MaintenanceStatus = "cancelled"
)

func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenanceStatusScheduled, MaintenanceStatusInProgress, MaintenanceStatusCompleted, MaintenanceStatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the record still keeps its vehicle off the road.
func (s MaintenanceStatus) IsOpen() bool {
	return s == MaintenanceStatusScheduled || s == MaintenanceStatusInProgress
}

type MaintenanceRecord struct {
	ID          int64             `json:"id"`
	VehicleID   int64             `json:"bus_id"`
	Date        string            `json:"date"`
	Description string            `json:"description"`
	Cost        float64           `json:"cost"`
	Status      MaintenanceStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

const (
	maintenanceEventStart    = "start"
	maintenanceEventComplete = "complete"
	maintenanceEventCancel   = "cancel"
)

var maintenanceEvents = fsm.Events{
	{Name: maintenanceEventStart, Src: []string{string(MaintenanceStatusScheduled)}, Dst: string(MaintenanceStatusInProgress)},
	{Name: maintenanceEventComplete, Src: []string{string(MaintenanceStatusInProgress)}, Dst: string(MaintenanceStatusCompleted)},
	{Name: maintenanceEventCancel, Src: []string{string(MaintenanceStatusScheduled), string(MaintenanceStatusInProgress)}, Dst: string(MaintenanceStatusCancelled)},
}

// TransitionMaintenance checks that a record may move from one status to another.
// Staying in the same status is always allowed.
func TransitionMaintenance(ctx context.Context, from, to MaintenanceStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: unknown maintenance status", ErrInvalidInput)
	}
	if from == to {
		return nil
	}

	var event string
	for _, e := range maintenanceEvents {
		if e.Dst == string(to) {
			event = e.Name
			break
		}
	}
	if event == "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	machine := fsm.NewFSM(string(from), maintenanceEvents, nil)
	if err := machine.Event(ctx, event); err != nil {
		var inv fsm.InvalidEventError
		if errors.As(err, &inv) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return fmt.Errorf("failed to apply maintenance transition: %w", err)
	}
	return nil
}
