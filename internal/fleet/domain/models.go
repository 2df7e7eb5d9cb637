package domain

import "time"

// VehicleStatus is the operational state of a bus.
type VehicleStatus string

const (
	VehicleStatusStopped          VehicleStatus = "stopped"
	VehicleStatusScheduled        VehicleStatus = "scheduled"
	VehicleStatusRunning          VehicleStatus = "running"
	VehicleStatusUnderMaintenance VehicleStatus = "under_maintenance"
)

func (s VehicleStatus) String() string { return string(s) }

func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleStatusStopped, VehicleStatusScheduled, VehicleStatusRunning, VehicleStatusUnderMaintenance:
		return true
	}
	return false
}

// DriverStatus mirrors the status of the bus a driver is assigned to.
type DriverStatus string

const (
	DriverStatusStopped   DriverStatus = "stopped"
	DriverStatusScheduled DriverStatus = "scheduled"
	DriverStatusRunning   DriverStatus = "running"
)

func (s DriverStatus) IsValid() bool {
	switch s {
	case DriverStatusStopped, DriverStatusScheduled, DriverStatusRunning:
		return true
	}
	return false
}

// DriverStatusFor projects a vehicle status onto the driver status space.
func DriverStatusFor(s VehicleStatus) DriverStatus {
	switch s {
	case VehicleStatusRunning:
		return DriverStatusRunning
	case VehicleStatusScheduled:
		return DriverStatusScheduled
	default:
		return DriverStatusStopped
	}
}

// ScheduleStatus is derived from a schedule entry's own [start,end) window.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusScheduled, ScheduleStatusRunning, ScheduleStatusCompleted:
		return true
	}
	return false
}

type RouteStatus string

const (
	RouteStatusActive   RouteStatus = "active"
	RouteStatusInactive RouteStatus = "inactive"
)

func (s RouteStatus) IsValid() bool {
	return s == RouteStatusActive || s == RouteStatusInactive
}

// Vehicle is a bus together with its live telemetry-derived fields.
type Vehicle struct {
	ID             int64         `json:"id"`
	PlateNumber    string        `json:"plate_number"`
	Code           string        `json:"code"`
	Capacity       int           `json:"capacity"`
	Type           string        `json:"type"`
	PhotoURL       string        `json:"photo_url,omitempty"`
	Status         VehicleStatus `json:"status"`
	Latitude       *float64      `json:"latitude"`
	Longitude      *float64      `json:"longitude"`
	PassengerCount int           `json:"passenger_count"`
	LastSeenAt     *time.Time    `json:"last_seen_at"`
	LastStopID     *int64        `json:"last_stop_id"`
	NextStopID     *int64        `json:"next_stop_id"`
	DistanceToStop *int          `json:"distance_to_next_stop"`
	ETASeconds     *int          `json:"eta_seconds"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// LiveFields are the vehicle columns owned by telemetry ingestion.
type LiveFields struct {
	Latitude       float64
	Longitude      float64
	PassengerCount *int
	SeenAt         time.Time
	NextStopID     *int64
	DistanceToStop *int
	ETASeconds     *int
}

type Driver struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	BirthDate *string      `json:"birth_date,omitempty"`
	Phone     string       `json:"phone"`
	PhotoURL  string       `json:"photo_url,omitempty"`
	Status    DriverStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Route struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Code      string      `json:"code"`
	Status    RouteStatus `json:"status"`
	Polyline  string      `json:"polyline,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Stop is a bus stop. Sequence orders stops within their route, starting at 1.
type Stop struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RouteID   int64   `json:"route_id"`
	Sequence  int     `json:"sequence"`
}

// ScheduleEntry assigns a vehicle and driver to a route for a time window on a date.
// Date is YYYY-MM-DD; StartTime and EndTime are HH:MM[:SS] wall-clock strings in the
// fleet zone and are parsed at evaluation time so one bad row never blocks the rest.
type ScheduleEntry struct {
	ID        int64          `json:"id"`
	VehicleID int64          `json:"bus_id"`
	DriverID  int64          `json:"driver_id"`
	RouteID   int64          `json:"route_id"`
	Date      string         `json:"date"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
	Status    ScheduleStatus `json:"status"`
}

// TelemetrySample is one immutable position report.
type TelemetrySample struct {
	VehicleID      int64     `json:"bus_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	SpeedKMH       float64   `json:"speed"`
	PassengerCount *int      `json:"passenger_count,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Page is a one-based pagination window.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }
