package spatialindex

import (
	"testing"

	"github.com/paulmach/orb"
)

func pointEntry(i int, x, y float64) Entry {
	pt := orb.Point{x, y}
	return Entry{Index: i, Bound: orb.Bound{Min: pt, Max: pt}, Point: pt}
}

func TestBulkLoadAndEnvelopeLookup(t *testing.T) {
	entries := []Entry{
		pointEntry(0, 0, 0),
		pointEntry(1, 10, 10),
		pointEntry(2, 20, 20),
		pointEntry(3, 5, 5),
	}
	tree := BulkLoad(entries)

	got := tree.EnvelopeLookup(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{6, 6}})
	want := map[int]bool{0: true, 3: true}
	if len(got) != len(want) {
		t.Fatalf("EnvelopeLookup returned %d entries, want %d", len(got), len(want))
	}
	for _, idx := range got {
		if !want[idx] {
			t.Errorf("unexpected index %d in result", idx)
		}
	}
}

func TestEnvelopeLookupEmptyTree(t *testing.T) {
	tree := BulkLoad(nil)
	got := tree.EnvelopeLookup(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}})
	if len(got) != 0 {
		t.Fatalf("expected no results from empty tree, got %d", len(got))
	}
}

func TestNearestNeighborIterOrder(t *testing.T) {
	entries := []Entry{
		pointEntry(0, 100, 100),
		pointEntry(1, 1, 1),
		pointEntry(2, 50, 50),
		pointEntry(3, 0, 0),
	}
	tree := BulkLoad(entries)

	it := tree.NearestNeighborIter(orb.Point{0, 0})
	var order []int
	var lastDist float64 = -1
	for {
		idx, distSq, ok := it.Next()
		if !ok {
			break
		}
		if distSq < lastDist {
			t.Fatalf("nearest-neighbor iterator returned out-of-order distance: %v after %v", distSq, lastDist)
		}
		lastDist = distSq
		order = append(order, idx)
	}
	if len(order) != len(entries) {
		t.Fatalf("expected %d results, got %d", len(entries), len(order))
	}
	if order[0] != 3 {
		t.Errorf("closest point should be index 3 (0,0), got %d", order[0])
	}
}

func TestMinDistSq(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	tests := []struct {
		name string
		pt   orb.Point
		want float64
	}{
		{"inside", orb.Point{5, 5}, 0},
		{"left of box", orb.Point{-3, 5}, 9},
		{"corner diagonal", orb.Point{-3, -4}, 9 + 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinDistSq(b, tt.pt); got != tt.want {
				t.Errorf("MinDistSq(%v) = %v, want %v", tt.pt, got, tt.want)
			}
		})
	}
}
