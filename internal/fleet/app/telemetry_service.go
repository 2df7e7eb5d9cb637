package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

// StopScope selects which stops are candidates for the nearest-stop lookup.
type StopScope string

const (
	// StopScopeRoute searches the route the bus serves today and falls back to
	// all stops when it has none.
	StopScopeRoute  StopScope = "route"
	StopScopeGlobal StopScope = "global"
)

const stopCacheTTL = time.Minute

// TelemetryService fuses raw position samples into vehicle live state.
type TelemetryService struct {
	log      logger.Logger
	repo     domain.StateRepository
	history  domain.TelemetryLog
	cache    domain.LiveStateCache
	notifier domain.Notifier
	resolver *engine.Resolver
	clock    engine.Clock
	scope    StopScope

	stopsMu     sync.Mutex
	allStops    []*domain.Stop
	routeStops  map[int64][]*domain.Stop
	stopsLoaded time.Time
}

func NewTelemetryService(
	log logger.Logger,
	repo domain.StateRepository,
	history domain.TelemetryLog,
	cache domain.LiveStateCache,
	notifier domain.Notifier,
	resolver *engine.Resolver,
	clock engine.Clock,
	scope StopScope,
) *TelemetryService {
	if scope != StopScopeGlobal {
		scope = StopScopeRoute
	}
	return &TelemetryService{
		log:        log,
		repo:       repo,
		history:    history,
		cache:      cache,
		notifier:   notifier,
		resolver:   resolver,
		clock:      clock,
		scope:      scope,
		routeStops: make(map[int64][]*domain.Stop),
	}
}

// ValidateSample rejects samples that cannot be applied.
func ValidateSample(s domain.TelemetrySample) error {
	if s.VehicleID <= 0 {
		return fmt.Errorf("%w: missing vehicle id", domain.ErrInvalidInput)
	}
	if !engine.ValidCoordinates(s.Latitude, s.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidInput)
	}
	if math.IsNaN(s.SpeedKMH) || math.IsInf(s.SpeedKMH, 0) || s.SpeedKMH < 0 {
		return fmt.Errorf("%w: invalid speed", domain.ErrInvalidInput)
	}
	if s.PassengerCount != nil && *s.PassengerCount < 0 {
		return fmt.Errorf("%w: negative passenger count", domain.ErrInvalidInput)
	}
	return nil
}

// Ingest applies one sample: live fields, telemetry row, cache and notification.
// Invalid samples and unknown vehicles are rejected without touching the store.
func (s *TelemetryService) Ingest(ctx context.Context, sample domain.TelemetrySample) error {
	log := s.log.WithFields(logger.LogFields{"vehicle_id": sample.VehicleID})

	if err := ValidateSample(sample); err != nil {
		metrics.TelemetryRejected.WithLabelValues("invalid").Inc()
		log.Warn("telemetry_rejected", err.Error())
		return err
	}
	now := s.clock.Now()
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = now
	}

	v, err := s.repo.GetVehicle(ctx, sample.VehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.TelemetryRejected.WithLabelValues("unknown_vehicle").Inc()
			log.Warn("telemetry_unknown_vehicle", "Dropping sample for unknown vehicle")
		} else {
			log.Error("telemetry_vehicle_lookup_failed", err)
		}
		return fmt.Errorf("failed to get vehicle: %w", err)
	}

	live := domain.LiveFields{
		Latitude:       sample.Latitude,
		Longitude:      sample.Longitude,
		PassengerCount: sample.PassengerCount,
		SeenAt:         sample.RecordedAt,
	}
	stops, err := s.candidateStops(ctx, v.ID, now)
	if err != nil {
		log.Error("telemetry_stops_failed", err)
	}
	if nearest, ok := s.resolver.Nearest(sample.Latitude, sample.Longitude, sample.SpeedKMH, stops); ok {
		stopID := nearest.Stop.ID
		dist := nearest.DistanceMeters
		eta := nearest.ETASeconds
		live.NextStopID = &stopID
		live.DistanceToStop = &dist
		live.ETASeconds = &eta
	}

	updated, err := s.repo.UpdateVehicleLive(ctx, v.ID, live)
	if err != nil {
		log.Error("telemetry_live_update_failed", err)
		return fmt.Errorf("failed to update vehicle live state: %w", err)
	}

	var errs []error
	if err := s.history.Append(ctx, sample); err != nil {
		log.Error("telemetry_append_failed", err)
		errs = append(errs, fmt.Errorf("failed to append telemetry: %w", err))
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, updated); err != nil {
			log.Error("telemetry_cache_failed", err)
		}
	}
	if s.notifier != nil {
		n := domain.NotificationFromVehicle(domain.NotificationBusLocation, updated, sample.RecordedAt)
		if err := s.notifier.Publish(ctx, n); err != nil {
			log.Error("telemetry_notification_failed", err)
		}
	}

	metrics.TelemetryProcessed.Inc()
	log.Debug("telemetry_ingested", "Telemetry sample applied")
	return errors.Join(errs...)
}

// InvalidateStops drops the cached stop sets after stops or routes change.
func (s *TelemetryService) InvalidateStops() {
	s.stopsMu.Lock()
	defer s.stopsMu.Unlock()
	s.stopsLoaded = time.Time{}
}

func (s *TelemetryService) candidateStops(ctx context.Context, vehicleID int64, now time.Time) ([]*domain.Stop, error) {
	if s.scope == StopScopeRoute {
		routeID, err := s.todaysRoute(ctx, vehicleID, now)
		if err != nil {
			return nil, err
		}
		if routeID > 0 {
			stops, err := s.stopsForRoute(ctx, routeID)
			if err != nil {
				return nil, err
			}
			if len(stops) > 0 {
				return stops, nil
			}
		}
	}
	return s.globalStops(ctx)
}

func (s *TelemetryService) todaysRoute(ctx context.Context, vehicleID int64, now time.Time) (int64, error) {
	entries, err := s.repo.ListVehicleSchedulesForDate(ctx, vehicleID, engine.DateString(now))
	if err != nil {
		return 0, fmt.Errorf("failed to load schedules: %w", err)
	}
	var windows []engine.EntryStatus
	for _, e := range entries {
		w, err := engine.EntryWindow(now, e)
		if err != nil {
			continue
		}
		windows = append(windows, engine.EntryStatus{Entry: e, Window: w, Status: engine.ScheduleStatusAt(now, w)})
	}
	if assigned := AssignedEntry(windows); assigned != nil {
		return assigned.RouteID, nil
	}
	return 0, nil
}

func (s *TelemetryService) globalStops(ctx context.Context) ([]*domain.Stop, error) {
	s.stopsMu.Lock()
	defer s.stopsMu.Unlock()
	s.expireStopsLocked()
	if s.allStops != nil {
		return s.allStops, nil
	}
	stops, err := s.repo.ListStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stops: %w", err)
	}
	s.allStops = stops
	return stops, nil
}

func (s *TelemetryService) stopsForRoute(ctx context.Context, routeID int64) ([]*domain.Stop, error) {
	s.stopsMu.Lock()
	defer s.stopsMu.Unlock()
	s.expireStopsLocked()
	if stops, ok := s.routeStops[routeID]; ok {
		return stops, nil
	}
	stops, err := s.repo.ListStopsByRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load route stops: %w", err)
	}
	s.routeStops[routeID] = stops
	return stops, nil
}

func (s *TelemetryService) expireStopsLocked() {
	if time.Since(s.stopsLoaded) < stopCacheTTL {
		return
	}
	s.allStops = nil
	s.routeStops = make(map[int64][]*domain.Stop)
	s.stopsLoaded = time.Now()
}
