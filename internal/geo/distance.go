package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// DefaultCourierSpeedKph is used when no speed is configured.
const DefaultCourierSpeedKph = 30.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the Haversine great-circle distance between two points
// in kilometers.
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// EstimateDeliveryTime converts a distance into a human-readable delivery
// estimate at the given courier speed. Estimates of a day or more become a
// day range.
func EstimateDeliveryTime(distanceKm, speedKph float64) string {
	if distanceKm <= 0 {
		return "Immediate"
	}
	if speedKph <= 0 {
		speedKph = DefaultCourierSpeedKph
	}

	hours := distanceKm / speedKph
	if hours < 24 {
		h := int(math.Ceil(hours))
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}

	days := int(math.Ceil(hours / 24))
	return fmt.Sprintf("%d-%d days", days, days+1)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
