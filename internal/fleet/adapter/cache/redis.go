package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bus-fleet/internal/fleet/domain"
)

const (
	geoKey           = "fleet:vehicles"
	telemetryChannel = "fleet:telemetry"
	statusChannel    = "fleet:status"
)

func stateKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d:state", vehicleID)
}

// LiveStateCache mirrors the latest vehicle state into Redis: a hash per
// vehicle, a geo index of positions and a pub/sub channel for other services.
type LiveStateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLiveStateCache(client *redis.Client, ttl time.Duration) *LiveStateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LiveStateCache{client: client, ttl: ttl}
}

// StateFields flattens a vehicle into the hash stored under vehicle:<id>:state.
// Nil live fields are stored as empty strings.
func StateFields(v *domain.Vehicle) map[string]interface{} {
	fields := map[string]interface{}{
		"vehicle_id":      v.ID,
		"plate_number":    v.PlateNumber,
		"status":          string(v.Status),
		"passenger_count": v.PassengerCount,
		"lat":             "",
		"lng":             "",
		"next_stop_id":    "",
		"distance_m":      "",
		"eta_seconds":     "",
		"last_seen_at":    "",
	}
	if v.Latitude != nil && v.Longitude != nil {
		fields["lat"] = strconv.FormatFloat(*v.Latitude, 'f', -1, 64)
		fields["lng"] = strconv.FormatFloat(*v.Longitude, 'f', -1, 64)
	}
	if v.NextStopID != nil {
		fields["next_stop_id"] = *v.NextStopID
	}
	if v.DistanceToStop != nil {
		fields["distance_m"] = *v.DistanceToStop
	}
	if v.ETASeconds != nil {
		fields["eta_seconds"] = *v.ETASeconds
	}
	if v.LastSeenAt != nil {
		fields["last_seen_at"] = v.LastSeenAt.Unix()
	}
	return fields
}

func (c *LiveStateCache) Put(ctx context.Context, v *domain.Vehicle) error {
	fields := StateFields(v)
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(v.ID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, c.ttl)
	if v.Latitude != nil && v.Longitude != nil {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      strconv.FormatInt(v.ID, 10),
			Longitude: *v.Longitude,
			Latitude:  *v.Latitude,
		})
	}
	pipe.Publish(ctx, telemetryChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Nearby returns vehicles within radiusMeters of a point, nearest first. Hits
// whose state hash has expired are left out and dropped from the geo index.
func (c *LiveStateCache) Nearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.NearbyVehicle, error) {
	locs, err := c.client.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   lat,
			Longitude:  lon,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geo search failed: %w", err)
	}
	if len(locs) == 0 {
		return []domain.NearbyVehicle{}, nil
	}

	pipe := c.client.Pipeline()
	checks := make([]*redis.IntCmd, len(locs))
	for i, l := range locs {
		checks[i] = pipe.Exists(ctx, "vehicle:"+l.Name+":state")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis state lookup failed: %w", err)
	}
	alive := make([]bool, len(locs))
	for i, cmd := range checks {
		alive[i] = cmd.Val() > 0
	}

	out, stale := liveHits(locs, alive)
	if len(stale) > 0 {
		members := make([]interface{}, len(stale))
		for i, m := range stale {
			members[i] = m
		}
		// Best effort; the next search retries the trim.
		_ = c.client.ZRem(ctx, geoKey, members...).Err()
	}
	return out, nil
}

// liveHits keeps the geo hits whose state is still present and returns the
// member names of the others.
func liveHits(locs []redis.GeoLocation, alive []bool) ([]domain.NearbyVehicle, []string) {
	out := make([]domain.NearbyVehicle, 0, len(locs))
	var stale []string
	for i, l := range locs {
		if i >= len(alive) || !alive[i] {
			stale = append(stale, l.Name)
			continue
		}
		id, err := strconv.ParseInt(l.Name, 10, 64)
		if err != nil {
			stale = append(stale, l.Name)
			continue
		}
		out = append(out, domain.NearbyVehicle{
			VehicleID:      id,
			DistanceMeters: l.Dist,
			Latitude:       l.Latitude,
			Longitude:      l.Longitude,
		})
	}
	return out, stale
}

// Remove drops a vehicle's state hash and its geo index entry.
func (c *LiveStateCache) Remove(ctx context.Context, vehicleID int64) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, stateKey(vehicleID))
	pipe.ZRem(ctx, geoKey, strconv.FormatInt(vehicleID, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis remove failed: %w", err)
	}
	return nil
}

// Publish forwards notifications to the fleet:status channel so services that
// only speak Redis can follow status changes.
func (c *LiveStateCache) Publish(ctx context.Context, n domain.VehicleNotification) error {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		domain.VehicleNotification
	}{Type: n.Type, VehicleNotification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := c.client.Publish(ctx, statusChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}
