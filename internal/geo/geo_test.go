package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	d := DistanceKm(37.7749, -122.4194, 37.7749, -122.4194)
	if d != 0 {
		t.Errorf("expected 0 distance for same point, got %f", d)
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// San Francisco to Los Angeles, roughly 559km
	d := DistanceKm(37.7749, -122.4194, 34.0522, -118.2437)
	if math.Abs(d-559) > 5 {
		t.Errorf("expected ~559km SF-LA, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := DistanceKm(35.6762, 139.6503, -33.8688, 151.2093)
	b := DistanceKm(-33.8688, 151.2093, 35.6762, 139.6503)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestDistanceKm_Antipodal(t *testing.T) {
	// Half the Earth's circumference, ~20015km
	d := DistanceKm(0, 0, 0, 180)
	if math.Abs(d-20015) > 10 {
		t.Errorf("expected ~20015km for antipodal points, got %f", d)
	}
}
