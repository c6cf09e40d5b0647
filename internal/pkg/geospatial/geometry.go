package geospatial

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// DefaultTolerance is the simplification tolerance in degrees used when none is configured.
const DefaultTolerance = 0.001

// PointInBounds reports whether point lies inside bounds, edges included.
// A missing point or missing bounds is treated as inside.
func PointInBounds(point *domain.GeoPoint, bounds *domain.ViewportBounds) bool {
	if point == nil || bounds == nil {
		return true
	}
	return bounds.Contains(*point)
}

// Simplify reduces the vertex count of every feature geometry using
// Douglas-Peucker with the given tolerance. The input is never modified. If
// simplification fails for any reason the original collection is returned.
func Simplify(fc *geojson.FeatureCollection, tolerance float64) (out *geojson.FeatureCollection) {
	if fc == nil || tolerance <= 0 {
		return fc
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("simplification failed, using original dataset", "error", fmt.Sprint(r))
			out = fc
		}
	}()

	s := simplify.DouglasPeucker(tolerance)

	out = geojson.NewFeatureCollection()
	out.BBox = fc.BBox
	out.ExtraMembers = fc.ExtraMembers
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))

	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		nf := *f
		if f.Geometry != nil {
			nf.Geometry = simplifyGeometry(s, f.Geometry)
		}
		out.Features = append(out.Features, &nf)
	}
	return out
}

// simplifyGeometry simplifies g ring by ring. Any ring or line that would
// collapse keeps its original coordinates, so no polygon part or hole is lost.
func simplifyGeometry(s *simplify.DouglasPeuckerSimplifier, g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Polygon:
		return simplifyPolygon(s, g)
	case orb.MultiPolygon:
		mp := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			mp[i] = simplifyPolygon(s, p)
		}
		return mp
	case orb.Ring:
		return simplifyRing(s, g)
	case orb.LineString:
		return simplifyLine(s, g)
	case orb.MultiLineString:
		mls := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			mls[i] = simplifyLine(s, ls)
		}
		return mls
	case orb.Collection:
		c := make(orb.Collection, len(g))
		for i, sub := range g {
			c[i] = simplifyGeometry(s, sub)
		}
		return c
	default:
		// Points and bounds have nothing to drop.
		return orb.Clone(g)
	}
}

func simplifyPolygon(s *simplify.DouglasPeuckerSimplifier, p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = simplifyRing(s, r)
	}
	return out
}

// simplifyRing keeps r when the result would no longer be a closed triangle.
func simplifyRing(s *simplify.DouglasPeuckerSimplifier, r orb.Ring) orb.Ring {
	simplified := s.Ring(r.Clone())
	if len(simplified) < 4 {
		return r.Clone()
	}
	return simplified
}

func simplifyLine(s *simplify.DouglasPeuckerSimplifier, ls orb.LineString) orb.LineString {
	simplified := s.LineString(ls.Clone())
	if len(simplified) < 2 {
		return ls.Clone()
	}
	return simplified
}

// FilterByBounds returns the features with at least one vertex inside bounds.
// With nil bounds the input collection itself is returned. Features without
// geometry are dropped.
func FilterByBounds(fc *geojson.FeatureCollection, bounds *domain.ViewportBounds) *geojson.FeatureCollection {
	if bounds == nil || fc == nil {
		return fc
	}

	out := geojson.NewFeatureCollection()
	out.ExtraMembers = fc.ExtraMembers
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if anyVertex(f.Geometry, func(p orb.Point) bool {
			return bounds.Contains(domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()})
		}) {
			out.Append(f)
		}
	}
	return out
}

// anyVertex walks every coordinate of g and stops at the first one matching fn.
func anyVertex(g orb.Geometry, fn func(orb.Point) bool) bool {
	switch g := g.(type) {
	case orb.Point:
		return fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			if fn(p) {
				return true
			}
		}
	case orb.LineString:
		return anyVertex(orb.MultiPoint(g), fn)
	case orb.Ring:
		return anyVertex(orb.MultiPoint(g), fn)
	case orb.MultiLineString:
		for _, ls := range g {
			if anyVertex(ls, fn) {
				return true
			}
		}
	case orb.Polygon:
		for _, r := range g {
			if anyVertex(r, fn) {
				return true
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if anyVertex(p, fn) {
				return true
			}
		}
	case orb.Collection:
		for _, c := range g {
			if anyVertex(c, fn) {
				return true
			}
		}
	case orb.Bound:
		return anyVertex(g.ToRing(), fn)
	}
	return false
}

func vertexCount(g orb.Geometry) int {
	n := 0
	anyVertex(g, func(orb.Point) bool {
		n++
		return false
	})
	return n
}

// VertexCount returns the total number of coordinates across all features.
func VertexCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	n := 0
	for _, f := range fc.Features {
		if f != nil && f.Geometry != nil {
			n += vertexCount(f.Geometry)
		}
	}
	return n
}
