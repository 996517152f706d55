package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
)

func square(minX, minY, maxX, maxY float64) model.ParcelGeometry {
	ring := orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
	return model.ParcelGeometry{Polygon: orb.Polygon{ring}}
}

func TestDistanceToPointInside(t *testing.T) {
	geom := square(0, 0, 10, 10)
	tests := []struct {
		name string
		pt   orb.Point
	}{
		{"center", orb.Point{5, 5}},
		{"near corner", orb.Point{0.5, 0.5}},
		{"on boundary", orb.Point{0, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := DistanceToPoint(geom, tt.pt); d > model.InsideEpsilonM {
				t.Errorf("DistanceToPoint(%v) = %v, want ~0", tt.pt, d)
			}
		})
	}
}

func TestDistanceToPointOutside(t *testing.T) {
	geom := square(0, 0, 10, 10)
	d := DistanceToPoint(geom, orb.Point{15, 5})
	if math.Abs(d-5) > 1e-9 {
		t.Errorf("DistanceToPoint = %v, want 5", d)
	}
}

func TestDistanceToPointMultiPolygon(t *testing.T) {
	a := square(0, 0, 5, 5).Polygon
	b := square(100, 100, 105, 105).Polygon
	geom := model.ParcelGeometry{MultiPolygon: orb.MultiPolygon{a, b}, IsMulti: true}

	if d := DistanceToPoint(geom, orb.Point{2, 2}); d > model.InsideEpsilonM {
		t.Errorf("expected inside first polygon, got distance %v", d)
	}
	d := DistanceToPoint(geom, orb.Point{10, 2})
	if math.Abs(d-5) > 1e-9 {
		t.Errorf("DistanceToPoint = %v, want 5 (nearer polygon)", d)
	}
}

func TestDistanceToPointWithHole(t *testing.T) {
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	geom := model.ParcelGeometry{Polygon: orb.Polygon{outer, hole}}

	if d := DistanceToPoint(geom, orb.Point{1, 1}); d > model.InsideEpsilonM {
		t.Errorf("expected point in solid area to be inside, got %v", d)
	}
	if d := DistanceToPoint(geom, orb.Point{5, 5}); d <= model.InsideEpsilonM {
		t.Errorf("expected point inside hole to be outside the parcel, got %v", d)
	}
}

func TestExpandBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	got := ExpandBound(b, 5)
	want := orb.Bound{Min: orb.Point{-5, -5}, Max: orb.Point{15, 15}}
	if got != want {
		t.Errorf("ExpandBound = %v, want %v", got, want)
	}
}
