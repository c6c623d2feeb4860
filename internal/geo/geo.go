// Package geo contains pure geographic computation helpers shared by routing, scoring,
// gap-fill and ETA estimation.
package geo

import (
	"fmt"
	"math"

	"fieldops/internal/types"
)

const earthRadiusKm = 6371.0

// AverageSpeedKmh is the urban travel speed assumed for both ETA and route duration.
const AverageSpeedKmh = 30.0

// DistanceKm returns the great-circle (haversine) distance in kilometres between two
// points.
func DistanceKm(a, b types.Point) float64 {
	dLat := ToRadians(b.Lat - a.Lat)
	dLng := ToRadians(b.Lng - a.Lng)

	rLat1 := ToRadians(a.Lat)
	rLat2 := ToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// TravelMinutes converts a distance to whole minutes at AverageSpeedKmh.
func TravelMinutes(km float64) int {
	return int(math.Round(km / AverageSpeedKmh * 60))
}

// Validate reports whether p lies inside the valid latitude/longitude ranges.
func Validate(p types.Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("%w: coordinate is NaN", types.ErrInvalidInput)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", types.ErrInvalidInput, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range", types.ErrInvalidInput, p.Lng)
	}
	return nil
}
