package geo

import "testing"

func TestDistanceKmKnownPoints(t *testing.T) {
	// Philadelphia to New York, roughly 130km great-circle.
	phl := Geographic{Latitude: 39.9526, Longitude: -75.1652}
	nyc := Geographic{Latitude: 40.7128, Longitude: -74.0060}

	got := DistanceKm(phl, nyc)
	if got < 120 || got > 145 {
		t.Errorf("DistanceKm(PHL, NYC) = %.1f, want ~130km", got)
	}
}

func TestDistanceKmSamePoint(t *testing.T) {
	p := Geographic{Latitude: 41.0, Longitude: -74.0}
	if d := DistanceKm(p, p); d != 0 {
		t.Errorf("DistanceKm(p, p) = %v, want 0", d)
	}
}
