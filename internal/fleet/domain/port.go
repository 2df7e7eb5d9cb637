package domain

import (
	"context"
	"time"
)

// StateRepository is the persistence surface used by status derivation and telemetry fusion.
type StateRepository interface {
	GetVehicle(ctx context.Context, id int64) (*Vehicle, error)
	ListAllVehicles(ctx context.Context) ([]*Vehicle, error)
	// UpdateVehicleStatus writes status only when it differs from the stored value
	// and reports whether a row changed.
	UpdateVehicleStatus(ctx context.Context, id int64, status VehicleStatus) (bool, error)
	// UpdateVehicleLive writes the telemetry-owned columns and returns the updated vehicle.
	UpdateVehicleLive(ctx context.Context, id int64, live LiveFields) (*Vehicle, error)

	ListVehicleSchedulesForDate(ctx context.Context, vehicleID int64, date string) ([]*ScheduleEntry, error)
	ListDriverSchedulesForDate(ctx context.Context, driverID int64, date string) ([]*ScheduleEntry, error)
	UpdateScheduleStatus(ctx context.Context, id int64, status ScheduleStatus) (bool, error)
	ListOpenMaintenance(ctx context.Context, vehicleID int64) ([]*MaintenanceRecord, error)
	UpdateDriverStatus(ctx context.Context, id int64, status DriverStatus) (bool, error)

	ListStops(ctx context.Context) ([]*Stop, error)
	ListStopsByRoute(ctx context.Context, routeID int64) ([]*Stop, error)
}

// TelemetryLog is the append-only telemetry history.
type TelemetryLog interface {
	Append(ctx context.Context, sample TelemetrySample) error
}

// HistoryRepository reads and trims the telemetry history.
type HistoryRepository interface {
	ListTelemetry(ctx context.Context, vehicleID int64, from, to time.Time, limit int) ([]*TelemetrySample, error)
	PurgeTelemetryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NearbyVehicle is a geo index hit.
type NearbyVehicle struct {
	VehicleID      int64   `json:"bus_id"`
	DistanceMeters float64 `json:"distance_m"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// LiveStateCache keeps the latest position of every bus in a fast store.
type LiveStateCache interface {
	Put(ctx context.Context, v *Vehicle) error
	Nearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyVehicle, error)
	Remove(ctx context.Context, vehicleID int64) error
}

// Notifier is a best-effort outbound sink for vehicle notifications.
type Notifier interface {
	Publish(ctx context.Context, n VehicleNotification) error
}

type VehicleStore interface {
	CreateVehicle(ctx context.Context, v *Vehicle) error
	GetVehicle(ctx context.Context, id int64) (*Vehicle, error)
	ListVehicles(ctx context.Context, page Page) ([]*Vehicle, int, error)
	UpdateVehicle(ctx context.Context, v *Vehicle) error
	DeleteVehicle(ctx context.Context, id int64) error
}

type DriverStore interface {
	CreateDriver(ctx context.Context, d *Driver) error
	GetDriver(ctx context.Context, id int64) (*Driver, error)
	ListDrivers(ctx context.Context, page Page) ([]*Driver, int, error)
	UpdateDriver(ctx context.Context, d *Driver) error
	DeleteDriver(ctx context.Context, id int64) error
}

type RouteStore interface {
	CreateRoute(ctx context.Context, r *Route) error
	GetRoute(ctx context.Context, id int64) (*Route, error)
	ListRoutes(ctx context.Context, page Page) ([]*Route, int, error)
	UpdateRoute(ctx context.Context, r *Route) error
	DeleteRoute(ctx context.Context, id int64) error
}

type StopStore interface {
	CreateStop(ctx context.Context, s *Stop) error
	GetStop(ctx context.Context, id int64) (*Stop, error)
	ListStopsPage(ctx context.Context, page Page) ([]*Stop, int, error)
	ListStopsByRoute(ctx context.Context, routeID int64) ([]*Stop, error)
	UpdateStop(ctx context.Context, s *Stop) error
	DeleteStop(ctx context.Context, id int64) error
}

type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *ScheduleEntry) error
	GetSchedule(ctx context.Context, id int64) (*ScheduleEntry, error)
	// ListSchedules filters by date when date is non-empty.
	ListSchedules(ctx context.Context, date string, page Page) ([]*ScheduleEntry, int, error)
	UpdateSchedule(ctx context.Context, s *ScheduleEntry) error
	DeleteSchedule(ctx context.Context, id int64) error
}

type MaintenanceStore interface {
	CreateMaintenance(ctx context.Context, m *MaintenanceRecord) error
	GetMaintenance(ctx context.Context, id int64) (*MaintenanceRecord, error)
	ListMaintenance(ctx context.Context, page Page) ([]*MaintenanceRecord, int, error)
	UpdateMaintenance(ctx context.Context, m *MaintenanceRecord) error
	DeleteMaintenance(ctx context.Context, id int64) error
}

// CatalogRepository is the CRUD surface behind the admin REST API.
type CatalogRepository interface {
	VehicleStore
	DriverStore
	RouteStore
	StopStore
	ScheduleStore
	MaintenanceStore
}

type HourlyPassengers struct {
	Hour          int `json:"hour"`
	MaxPassengers int `json:"max_passengers"`
}

type DailyActivity struct {
	Date          string  `json:"date"`
	MaxPassengers int     `json:"max_passengers"`
	AvgPassengers float64 `json:"avg_passengers"`
}

type VehicleUtilization struct {
	VehicleID     int64   `json:"bus_id"`
	PlateNumber   string  `json:"plate_number"`
	SampleCount   int64   `json:"sample_count"`
	ActiveMinutes float64 `json:"active_minutes"`
}

// AnalyticsRepository aggregates telemetry history for dashboard charts.
// Times are bucketed in the given zone.
type AnalyticsRepository interface {
	HourlyMaxPassengers(ctx context.Context, from, to time.Time, zone string) ([]HourlyPassengers, error)
	DailyActivity(ctx context.Context, from, to time.Time, zone string, vehicleID *int64) ([]DailyActivity, error)
	SampleCounts(ctx context.Context, from, to time.Time) ([]VehicleUtilization, error)
}
