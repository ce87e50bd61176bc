package geodesic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

func TestDistance_SamePoint(t *testing.T) {
	points := []domain.Coordinate{
		{Latitude: 0, Longitude: 0},
		{Latitude: -6.2088, Longitude: 106.8456},
		{Latitude: 40, Longitude: -74},
		{Latitude: 89.9, Longitude: 179.9},
	}
	for _, p := range points {
		assert.Zero(t, Distance(p, p))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]domain.Coordinate{
		{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.01}},
		{{Latitude: 40, Longitude: -74}, {Latitude: 40.01, Longitude: -74}},
		{{Latitude: -33.86, Longitude: 151.21}, {Latitude: 51.5, Longitude: -0.12}},
	}
	for _, p := range pairs {
		assert.InDelta(t, Distance(p[0], p[1]), Distance(p[1], p[0]), 1e-6)
	}
}

func TestDistance_HundredthOfDegreeLatitude(t *testing.T) {
	d := Distance(domain.Coordinate{Latitude: 40, Longitude: -74}, domain.Coordinate{Latitude: 40.01, Longitude: -74})
	assert.InEpsilon(t, 1112.0, d, 0.05)
}

func TestDistance_EquatorLongitude(t *testing.T) {
	// 0.01 degree of longitude on the equator is the same arc as 0.01 degree of latitude
	d := Distance(domain.Coordinate{}, domain.Coordinate{Latitude: 0, Longitude: 0.01})
	assert.InDelta(t, 1111.95, d, 1)
}

func TestDistance_Antipodal(t *testing.T) {
	d := Distance(domain.Coordinate{Latitude: 0, Longitude: 0}, domain.Coordinate{Latitude: 0, Longitude: 180})
	assert.InDelta(t, 3.14159265*EarthRadiusMeters, d, 1)
}
