// Package geometry implements the planar distance and containment
// primitives the matcher needs on top of orb's ring/polygon types. orb
// gives us geometry representation and WKB decoding; it does not expose a
// point-to-polygon distance function, so that arithmetic is hand-rolled
// here, grounded on the segment/ray-casting approach used throughout the
// original Rust matcher (original_source/src/structures.rs).
package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

// DistanceToPoint returns the planar distance, in meters, from pt to the
// nearest point of geom. It returns 0 (within model.InsideEpsilonM) when pt
// lies inside or on the boundary of geom.
func DistanceToPoint(geom model.ParcelGeometry, pt orb.Point) float64 {
	if geom.IsMulti {
		best := math.Inf(1)
		for _, poly := range geom.MultiPolygon {
			if d := distanceToPolygon(poly, pt); d < best {
				best = d
			}
		}
		if math.IsInf(best, 1) {
			return best
		}
		return best
	}
	return distanceToPolygon(geom.Polygon, pt)
}

func distanceToPolygon(poly orb.Polygon, pt orb.Point) float64 {
	if len(poly) == 0 {
		return math.Inf(1)
	}
	if isInsideOrOnBorder(poly, pt) {
		return 0
	}
	// Distance to a polygon-with-holes is the distance to the nearest ring
	// segment across all rings (outer + holes) when the point is outside.
	best := math.Inf(1)
	for _, ring := range poly {
		if d := distanceToRing(ring, pt); d < best {
			best = d
		}
	}
	return best
}

func distanceToRing(ring orb.Ring, pt orb.Point) float64 {
	best := math.Inf(1)
	n := len(ring)
	if n < 2 {
		return best
	}
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		if d := distanceToSegment(a, b, pt); d < best {
			best = d
		}
	}
	return best
}

func distanceToSegment(a, b, pt orb.Point) float64 {
	ax, ay := a[0], a[1]
	bx, by := b[0], b[1]
	px, py := pt[0], pt[1]

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx := ax + t*dx
	cy := ay + t*dy
	return math.Hypot(px-cx, py-cy)
}

// isInsideOrOnBorder reports whether pt lies inside poly (accounting for
// holes) or within model.InsideEpsilonM of its boundary.
func isInsideOrOnBorder(poly orb.Polygon, pt orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	outer := poly[0]
	if distanceToRing(outer, pt) <= model.InsideEpsilonM {
		return true
	}
	if !rayCastInRing(outer, pt) {
		return false
	}
	for _, hole := range poly[1:] {
		if distanceToRing(hole, pt) <= model.InsideEpsilonM {
			return true
		}
		if rayCastInRing(hole, pt) {
			// inside a hole, and not near any boundary: outside the parcel
			return false
		}
	}
	return true
}

// rayCastInRing is the standard even-odd ray-casting point-in-polygon test.
func rayCastInRing(ring orb.Ring, pt orb.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	px, py := pt[0], pt[1]
	for i, j := 0, n-1; i < n; i, j = i+1, i {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		intersects := (yi > py) != (yj > py)
		if intersects {
			xIntersect := (xj-xi)*(py-yi)/(yj-yi) + xi
			if px < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// BoundingEnvelope returns geom's axis-aligned bound and whether it has one.
func BoundingEnvelope(geom model.ParcelGeometry) (orb.Bound, bool) {
	return geom.Bound()
}

// ExpandBound grows b by m meters on every side.
func ExpandBound(b orb.Bound, m float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min[0] - m, b.Min[1] - m},
		Max: orb.Point{b.Max[0] + m, b.Max[1] + m},
	}
}
