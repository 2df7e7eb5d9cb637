package engine

import (
	"math"
	"testing"

	"bus-fleet/internal/fleet/domain"
)

func TestDistanceMetersIdentical(t *testing.T) {
	points := [][2]float64{{0, 0}, {-6.2, 106.8}, {89.9, 179.9}, {-90, -180}}
	for _, p := range points {
		if d := DistanceMeters(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("DistanceMeters(%v, %v) = %d, want 0", p, p, d)
		}
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{-6.1754, 106.8272, -6.2088, 106.8456},
		{0, 0, 0, 0.001},
		{51.5007, -0.1246, 40.6892, -74.0445},
		{-33.8568, 151.2153, 35.6586, 139.7454},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Errorf("asymmetric: %d vs %d for %v", ab, ba, p)
		}
	}
}

func TestDistanceMetersKnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        int
	}{
		{"one millidegree at equator", 0, 0, 0, 0.001, 111, 1},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 5},
		{"Monas to Bundaran HI", -6.1754, 106.8272, -6.1950, 106.8230, 2228, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if diff := got - tt.want; diff < -tt.tolerance || diff > tt.tolerance {
				t.Errorf("got %d, want %d±%d", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{-90, 180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := ValidCoordinates(tt.lat, tt.lon); got != tt.want {
			t.Errorf("ValidCoordinates(%v, %v) = %v", tt.lat, tt.lon, got)
		}
	}
}

func TestNearestPicksMinimalDistance(t *testing.T) {
	r := NewResolver(0)
	stops := []*domain.Stop{
		{ID: 1, Latitude: -6.20, Longitude: 106.80, Sequence: 1},
		{ID: 2, Latitude: -6.1801, Longitude: 106.8301, Sequence: 2},
		{ID: 3, Latitude: -6.15, Longitude: 106.85, Sequence: 3},
	}

	got, ok := r.Nearest(-6.18, 106.83, 30, stops)
	if !ok {
		t.Fatal("expected a stop")
	}
	if got.Stop.ID != 2 {
		t.Errorf("nearest = %d, want 2", got.Stop.ID)
	}
	for _, s := range stops {
		if d := DistanceMeters(-6.18, 106.83, s.Latitude, s.Longitude); d < got.DistanceMeters {
			t.Errorf("stop %d is closer (%d < %d)", s.ID, d, got.DistanceMeters)
		}
	}
}

func TestNearestTieKeepsFirst(t *testing.T) {
	r := NewResolver(0)
	stops := []*domain.Stop{
		{ID: 7, Latitude: 0, Longitude: 0.001},
		{ID: 8, Latitude: 0, Longitude: -0.001},
	}
	got, _ := r.Nearest(0, 0, 0, stops)
	if got.Stop.ID != 7 {
		t.Errorf("tie resolved to %d, want 7", got.Stop.ID)
	}
}

func TestNearestEmpty(t *testing.T) {
	r := NewResolver(0)
	if _, ok := r.Nearest(0, 0, 10, nil); ok {
		t.Error("expected no stop for empty set")
	}
	if _, ok := r.Nearest(0, 0, 10, []*domain.Stop{nil}); ok {
		t.Error("expected no stop for nil-only set")
	}
}

// Scenario F: a stationary bus still gets a finite ETA.
func TestETAUsesFloorSpeedWhenStationary(t *testing.T) {
	r := NewResolver(DefaultFloorSpeedKMH)
	got, ok := r.Nearest(0, 0, 0, []*domain.Stop{{ID: 1, Latitude: 0, Longitude: 0.001}})
	if !ok {
		t.Fatal("expected a stop")
	}
	if got.DistanceMeters != 111 {
		t.Fatalf("distance = %d", got.DistanceMeters)
	}
	// 111 m at 20 km/h (5.5556 m/s) is 19.98 s.
	if got.ETASeconds != 20 {
		t.Errorf("eta = %d, want 20", got.ETASeconds)
	}
}

func TestETASeconds(t *testing.T) {
	r := NewResolver(20)
	tests := []struct {
		name     string
		distance int
		speedKMH float64
		want     int
	}{
		{"fast bus uses reported speed", 1000, 36, 100},
		{"slow bus uses floor", 1000, 5, 180},
		{"negative speed uses floor", 1000, -10, 180},
		{"NaN speed uses floor", 1000, math.NaN(), 180},
		{"zero distance", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ETASeconds(tt.distance, tt.speedKMH); got != tt.want {
				t.Errorf("ETASeconds = %d, want %d", got, tt.want)
			}
		})
	}
}
