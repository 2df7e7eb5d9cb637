package rest

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bus-fleet/internal/fleet/app"
	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/logger"
)

// ScheduleService manages schedule entries and re-derives affected buses.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, e *domain.ScheduleEntry) error
	GetSchedule(ctx context.Context, id int64) (*domain.ScheduleEntry, error)
	ListSchedules(ctx context.Context, date string, page domain.Page) ([]*domain.ScheduleEntry, int, error)
	UpdateSchedule(ctx context.Context, e *domain.ScheduleEntry) error
	DeleteSchedule(ctx context.Context, id int64) error
}

// MaintenanceService manages maintenance records and re-derives affected buses.
type MaintenanceService interface {
	CreateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error
	GetMaintenance(ctx context.Context, id int64) (*domain.MaintenanceRecord, error)
	ListMaintenance(ctx context.Context, page domain.Page) ([]*domain.MaintenanceRecord, int, error)
	UpdateMaintenance(ctx context.Context, m *domain.MaintenanceRecord) error
	DeleteMaintenance(ctx context.Context, id int64) error
}

type DashboardService interface {
	Overview(ctx context.Context) (*app.Overview, error)
	PassengerChart(ctx context.Context) ([]domain.HourlyPassengers, error)
	ResolveRange(start, end string, defaultDays int) (app.DateRange, error)
	Activity(ctx context.Context, r app.DateRange, vehicleID *int64) ([]domain.DailyActivity, error)
	Utilization(ctx context.Context, r app.DateRange) ([]domain.VehicleUtilization, error)
}

// StopInvalidator drops cached stop sets after a stop or route changes.
type StopInvalidator interface {
	InvalidateStops()
}

type Deps struct {
	Vehicles    domain.VehicleStore
	Drivers     domain.DriverStore
	Routes      domain.RouteStore
	Stops       domain.StopStore
	Schedules   ScheduleService
	Maintenance MaintenanceService
	History     domain.HistoryRepository
	Live        domain.LiveStateCache
	Dashboard   DashboardService
	StopCache   StopInvalidator
}

// Handler hosts the admin REST API.
type Handler struct {
	Deps
	log      logger.Logger
	jwt      *auth.JWTManager
	validate *validator.Validate
}

func NewHandler(deps Deps, jwt *auth.JWTManager, log logger.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Deps: deps, log: log, jwt: jwt, validate: v}
}

// RegisterRoutes mounts every endpoint on mux without authentication.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/buses", h.HandleCreateBus)
	mux.HandleFunc("GET /api/buses", h.HandleListBuses)
	mux.HandleFunc("GET /api/buses/nearby", h.HandleNearbyBuses)
	mux.HandleFunc("GET /api/buses/{id}", h.HandleGetBus)
	mux.HandleFunc("GET /api/buses/{id}/history", h.HandleBusHistory)
	mux.HandleFunc("PUT /api/buses/{id}", h.HandleUpdateBus)
	mux.HandleFunc("DELETE /api/buses/{id}", h.HandleDeleteBus)

	mux.HandleFunc("POST /api/drivers", h.HandleCreateDriver)
	mux.HandleFunc("GET /api/drivers", h.HandleListDrivers)
	mux.HandleFunc("GET /api/drivers/{id}", h.HandleGetDriver)
	mux.HandleFunc("PUT /api/drivers/{id}", h.HandleUpdateDriver)
	mux.HandleFunc("DELETE /api/drivers/{id}", h.HandleDeleteDriver)

	mux.HandleFunc("POST /api/routes", h.HandleCreateRoute)
	mux.HandleFunc("GET /api/routes", h.HandleListRoutes)
	mux.HandleFunc("GET /api/routes/{id}", h.HandleGetRoute)
	mux.HandleFunc("GET /api/routes/{id}/stops", h.HandleRouteStops)
	mux.HandleFunc("PUT /api/routes/{id}", h.HandleUpdateRoute)
	mux.HandleFunc("DELETE /api/routes/{id}", h.HandleDeleteRoute)

	mux.HandleFunc("POST /api/stops", h.HandleCreateStop)
	mux.HandleFunc("GET /api/stops", h.HandleListStops)
	mux.HandleFunc("GET /api/stops/{id}", h.HandleGetStop)
	mux.HandleFunc("PUT /api/stops/{id}", h.HandleUpdateStop)
	mux.HandleFunc("DELETE /api/stops/{id}", h.HandleDeleteStop)

	mux.HandleFunc("POST /api/schedules", h.HandleCreateSchedule)
	mux.HandleFunc("GET /api/schedules", h.HandleListSchedules)
	mux.HandleFunc("GET /api/schedules/{id}", h.HandleGetSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", h.HandleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", h.HandleDeleteSchedule)

	mux.HandleFunc("POST /api/maintenance", h.HandleCreateMaintenance)
	mux.HandleFunc("GET /api/maintenance", h.HandleListMaintenance)
	mux.HandleFunc("GET /api/maintenance/{id}", h.HandleGetMaintenance)
	mux.HandleFunc("PUT /api/maintenance/{id}", h.HandleUpdateMaintenance)
	mux.HandleFunc("DELETE /api/maintenance/{id}", h.HandleDeleteMaintenance)

	mux.HandleFunc("GET /api/dashboard", h.HandleOverview)
	mux.HandleFunc("GET /api/dashboard/passenger-chart", h.HandlePassengerChart)
	mux.HandleFunc("GET /api/dashboard/activity", h.HandleActivity)
	mux.HandleFunc("GET /api/dashboard/utilization", h.HandleUtilization)
}

// Routes returns the API behind bearer authentication restricted to admins.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.jwt.AuthMiddleware(auth.RequireRole(auth.RoleAdmin, mux))
}

func (h *Handler) invalidateStops() {
	if h.StopCache != nil {
		h.StopCache.InvalidateStops()
	}
}
