package engine

import (
	"math"

	"bus-fleet/internal/fleet/domain"
)

// DefaultFloorSpeedKMH is the speed assumed for ETA when a bus reports little or no movement.
const DefaultFloorSpeedKMH = 20.0

// KMHToMetersPerSecond converts km/h to m/s.
func KMHToMetersPerSecond(kmh float64) float64 {
	return kmh * 1000 / 3600
}

// NearestStop is the result of a resolver lookup.
type NearestStop struct {
	Stop           *domain.Stop
	DistanceMeters int
	ETASeconds     int
}

// Resolver finds the closest stop to a position and estimates time of arrival.
type Resolver struct {
	floorSpeed float64 // m/s
}

// NewResolver builds a resolver with the given floor speed in km/h.
// A non-positive value selects DefaultFloorSpeedKMH.
func NewResolver(floorSpeedKMH float64) *Resolver {
	if floorSpeedKMH <= 0 || math.IsNaN(floorSpeedKMH) {
		floorSpeedKMH = DefaultFloorSpeedKMH
	}
	return &Resolver{floorSpeed: KMHToMetersPerSecond(floorSpeedKMH)}
}

// Nearest returns the stop with the smallest distance to (lat, lon). Ties keep the
// earlier stop in input order. It returns false when stops is empty.
func (r *Resolver) Nearest(lat, lon, speedKMH float64, stops []*domain.Stop) (NearestStop, bool) {
	var best *domain.Stop
	bestDist := 0
	for _, s := range stops {
		if s == nil {
			continue
		}
		d := DistanceMeters(lat, lon, s.Latitude, s.Longitude)
		if best == nil || d < bestDist {
			best = s
			bestDist = d
		}
	}
	if best == nil {
		return NearestStop{}, false
	}

	return NearestStop{
		Stop:           best,
		DistanceMeters: bestDist,
		ETASeconds:     r.ETASeconds(bestDist, speedKMH),
	}, true
}

// ETASeconds divides distance by the reported speed, never by less than the floor speed.
func (r *Resolver) ETASeconds(distanceMeters int, speedKMH float64) int {
	speed := KMHToMetersPerSecond(speedKMH)
	if math.IsNaN(speed) || speed < r.floorSpeed {
		speed = r.floorSpeed
	}
	return int(math.Round(float64(distanceMeters) / speed))
}
