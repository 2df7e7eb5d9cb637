package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bus-fleet/internal/fleet/domain"
)

var (
	ErrMalformedTime  = errors.New("malformed schedule time")
	ErrEmptyWindow    = errors.New("schedule window ends before it starts")
	ErrNotServiceDate = errors.New("schedule entry is not for the evaluated date")
)

// Policy tunes status derivation.
type Policy struct {
	// StickyRunning keeps a bus running after its window lapses until a
	// maintenance record or a future window says otherwise.
	StickyRunning bool
}

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// EntryStatus is a schedule entry together with its freshly derived status.
type EntryStatus struct {
	Entry  *domain.ScheduleEntry
	Window Window
	Status domain.ScheduleStatus
}

// SkippedEntry is a schedule entry that took no part in derivation.
type SkippedEntry struct {
	Entry *domain.ScheduleEntry
	Err   error
}

// Derivation is the outcome of one vehicle evaluation.
type Derivation struct {
	Status  domain.VehicleStatus
	Entries []EntryStatus
	Skipped []SkippedEntry
}

// Engine derives vehicle and schedule statuses. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Derive computes the status of one vehicle at now. entries are the vehicle's
// schedule entries for now's date, open its non-terminal maintenance records and
// previous the currently persisted status. Entries that cannot be parsed are
// reported in Skipped and otherwise ignored.
func (e *Engine) Derive(now time.Time, entries []*domain.ScheduleEntry, open []*domain.MaintenanceRecord, previous domain.VehicleStatus) Derivation {
	var d Derivation
	d.Entries, d.Skipped = EntryStatuses(now, entries)

	var active, upcoming bool
	for _, es := range d.Entries {
		switch es.Status {
		case domain.ScheduleStatusRunning:
			active = true
		case domain.ScheduleStatusScheduled:
			upcoming = true
		}
	}

	switch {
	case hasOpenMaintenance(open):
		d.Status = domain.VehicleStatusUnderMaintenance
	case active:
		d.Status = domain.VehicleStatusRunning
	case e.policy.StickyRunning && previous == domain.VehicleStatusRunning:
		d.Status = domain.VehicleStatusRunning
	case upcoming:
		d.Status = domain.VehicleStatusScheduled
	default:
		d.Status = domain.VehicleStatusStopped
	}
	return d
}

// EntryStatuses derives the status of each entry at now. Entries whose window
// cannot be resolved are returned in skipped.
func EntryStatuses(now time.Time, entries []*domain.ScheduleEntry) (derived []EntryStatus, skipped []SkippedEntry) {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		w, err := EntryWindow(now, entry)
		if err != nil {
			skipped = append(skipped, SkippedEntry{Entry: entry, Err: err})
			continue
		}
		derived = append(derived, EntryStatus{Entry: entry, Window: w, Status: ScheduleStatusAt(now, w)})
	}
	return derived, skipped
}

// ScheduleStatusAt places now relative to a window.
func ScheduleStatusAt(now time.Time, w Window) domain.ScheduleStatus {
	switch {
	case now.Before(w.Start):
		return domain.ScheduleStatusScheduled
	case w.Contains(now):
		return domain.ScheduleStatusRunning
	default:
		return domain.ScheduleStatusCompleted
	}
}

// EntryWindow resolves an entry's start and end wall-clock times on now's date
// in now's zone.
func EntryWindow(now time.Time, entry *domain.ScheduleEntry) (Window, error) {
	if entry.Date != "" && entry.Date != DateString(now) {
		return Window{}, fmt.Errorf("%w: %s", ErrNotServiceDate, entry.Date)
	}
	start, err := clockOn(now, entry.StartTime)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	end, err := clockOn(now, entry.EndTime)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: %s-%s", ErrEmptyWindow, entry.StartTime, entry.EndTime)
	}
	return Window{Start: start, End: end}, nil
}

var clockLayouts = []string{"15:04:05", "15:04"}

func clockOn(day time.Time, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		y, m, d := day.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, value)
}

func hasOpenMaintenance(records []*domain.MaintenanceRecord) bool {
	for _, r := range records {
		if r != nil && r.Status.IsOpen() {
			return true
		}
	}
	return false
}
