package domain

import "fmt"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within the WGS 84 coordinate range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// ViewportBounds is the rectangle currently visible on a map, given by its
// north-east and south-west corners.
type ViewportBounds struct {
	NorthEast GeoPoint `json:"northEast"`
	SouthWest GeoPoint `json:"southWest"`
}

// Contains reports whether p lies inside the bounds, edges included.
func (b ViewportBounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lon >= b.SouthWest.Lon && p.Lon <= b.NorthEast.Lon
}

// Validate rejects inverted or out-of-range bounds.
func (b ViewportBounds) Validate() error {
	if !b.NorthEast.Valid() || !b.SouthWest.Valid() {
		return fmt.Errorf("bounds out of range: %+v", b)
	}
	if b.NorthEast.Lat < b.SouthWest.Lat || b.NorthEast.Lon < b.SouthWest.Lon {
		return fmt.Errorf("bounds inverted: north-east %+v is below south-west %+v", b.NorthEast, b.SouthWest)
	}
	return nil
}

// Region is a map viewport expressed as a center and the span it covers.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// DefaultRegion is the initial map region (Johannesburg).
var DefaultRegion = Region{
	Latitude:       -26.2041,
	Longitude:      28.0473,
	LatitudeDelta:  0.5,
	LongitudeDelta: 0.5,
}

// Bounds converts the region into viewport bounds: center ± delta/2.
func (r Region) Bounds() ViewportBounds {
	return ViewportBounds{
		NorthEast: GeoPoint{
			Lat: r.Latitude + r.LatitudeDelta/2,
			Lon: r.Longitude + r.LongitudeDelta/2,
		},
		SouthWest: GeoPoint{
			Lat: r.Latitude - r.LatitudeDelta/2,
			Lon: r.Longitude - r.LongitudeDelta/2,
		},
	}
}
