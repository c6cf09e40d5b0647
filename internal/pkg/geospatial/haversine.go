package geospatial

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/setshaba/mapdata/internal/core/domain"
)

const earthRadiusKm = 6371.0

// HaversineDistanceKm returns the great-circle distance in kilometres between two points.
func HaversineDistanceKm(p1, p2 domain.GeoPoint) float64 {
	a := s2.LatLngFromDegrees(p1.Lat, p1.Lon)
	b := s2.LatLngFromDegrees(p2.Lat, p2.Lon)
	return a.Distance(b).Radians() * earthRadiusKm
}

// BoundingBox returns the viewport bounds enclosing a circle of radiusKm around center.
func BoundingBox(center domain.GeoPoint, radiusKm float64) domain.ViewportBounds {
	latDelta := radiusKm / 111.32
	lonDelta := radiusKm / (111.32 * math.Cos(center.Lat*math.Pi/180))

	return domain.ViewportBounds{
		NorthEast: domain.GeoPoint{Lat: center.Lat + latDelta, Lon: center.Lon + lonDelta},
		SouthWest: domain.GeoPoint{Lat: center.Lat - latDelta, Lon: center.Lon - lonDelta},
	}
}
