package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceSamePointIsZero(t *testing.T) {
	points := []Point{
		{Lat: 0, Lng: 0},
		{Lat: -6.2, Lng: 106.8},
		{Lat: 51.5, Lng: -0.12},
	}

	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p, p))
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Point{Lat: -6.2, Lng: 106.8}   // Jakarta
	b := Point{Lat: -6.914, Lng: 107.6} // Bandung

	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestDistanceKnownValue(t *testing.T) {
	a := Point{Lat: -6.2, Lng: 106.8}
	b := Point{Lat: -6.914, Lng: 107.6}

	d := Distance(a, b)
	// Jakarta to Bandung is roughly 118 km as the crow flies
	assert.InDelta(t, 118, d, 5)
}

func TestEstimateDeliveryTime(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		speedKph   float64
		want       string
	}{
		{"zero distance", 0, 30, "Immediate"},
		{"negative distance", -5, 30, "Immediate"},
		{"half hour rounds up to one", 15, 30, "1 hour"},
		{"exactly ten hours", 300, 30, "10 hours"},
		{"just under a day", 690, 30, "23 hours"},
		{"thirty hours widens to a range", 900, 30, "2-3 days"},
		{"exactly two days", 1440, 30, "2-3 days"},
		{"a week out", 5100, 30, "8-9 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateDeliveryTime(tt.distanceKm, tt.speedKph))
		})
	}
}

func TestEstimateDeliveryTimeDefaultSpeed(t *testing.T) {
	assert.Equal(t, "1 hour", EstimateDeliveryTime(15, 0))
}
