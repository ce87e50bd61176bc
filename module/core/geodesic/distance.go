// Package geodesic computes great-circle distances on a spherical Earth.
package geodesic

import (
	"math"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

const EarthRadiusMeters = 6371000

// Distance returns the haversine distance between a and b in meters.
// Inputs are not range-checked.
func Distance(a, b domain.Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
