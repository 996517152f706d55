// Package spatialindex implements a bulk-loaded R-tree with a best-first
// nearest-neighbor iterator. The pack's one directly-evidenced R-tree
// dependency, github.com/dhconnelly/rtreego (see
// other_examples/d875a025_1F47E-geo-index-rtree…rtree.go.go), supports
// neither STR-style bulk loading nor a resumable iterator exposing each
// node's min-distance-squared bound, both of which the three-stage matcher
// relies on for Stage 2/3 pruning (see DESIGN.md). This index is hand-rolled
// instead, grounded on the node/query shape of
// original_source/src/indexer.rs (rstar-based ParcelNode/AddressNode,
// RTree::bulk_load, locate_in_envelope).
package spatialindex

import (
	"container/heap"
	"sort"

	"github.com/paulmach/orb"
)

// Entry is one item stored in the tree: an opaque index into the caller's
// own slice plus the envelope used for indexing.
type Entry struct {
	Index int
	Bound orb.Bound
	Point orb.Point // set only for point entries; the tree indexes and measures Bound only
}

const maxLeafSize = 8

type node struct {
	bound    orb.Bound
	children []*node
	entries  []Entry
	isLeaf   bool
}

// Tree is a static, bulk-loaded R-tree over a fixed set of entries.
type Tree struct {
	root *node
}

// BulkLoad builds a Tree from entries using a sort-tile-recursive layout:
// sort by X into slices, then sort each slice by Y, then group into leaves.
func BulkLoad(entries []Entry) *Tree {
	if len(entries) == 0 {
		return &Tree{root: &node{isLeaf: true}}
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	root := strBuild(cp)
	return &Tree{root: root}
}

func strBuild(entries []Entry) *node {
	if len(entries) <= maxLeafSize {
		return leafFromEntries(entries)
	}

	numLeaves := (len(entries) + maxLeafSize - 1) / maxLeafSize
	numSlices := intSqrtCeil(numLeaves)
	sliceSize := (len(entries) + numSlices - 1) / numSlices

	sort.Slice(entries, func(i, j int) bool {
		return centerX(entries[i].Bound) < centerX(entries[j].Bound)
	})

	var leaves []*node
	for s := 0; s < len(entries); s += sliceSize {
		end := s + sliceSize
		if end > len(entries) {
			end = len(entries)
		}
		slice := entries[s:end]
		sort.Slice(slice, func(i, j int) bool {
			return centerY(slice[i].Bound) < centerY(slice[j].Bound)
		})
		for i := 0; i < len(slice); i += maxLeafSize {
			j := i + maxLeafSize
			if j > len(slice) {
				j = len(slice)
			}
			leaves = append(leaves, leafFromEntries(slice[i:j]))
		}
	}

	return buildInternalLevels(leaves)
}

func buildInternalLevels(children []*node) *node {
	if len(children) == 1 {
		return children[0]
	}
	numGroups := (len(children) + maxLeafSize - 1) / maxLeafSize
	numSlices := intSqrtCeil(numGroups)
	sliceSize := (len(children) + numSlices - 1) / numSlices

	sort.Slice(children, func(i, j int) bool {
		return centerX(children[i].bound) < centerX(children[j].bound)
	})

	var parents []*node
	for s := 0; s < len(children); s += sliceSize {
		end := s + sliceSize
		if end > len(children) {
			end = len(children)
		}
		slice := children[s:end]
		sort.Slice(slice, func(i, j int) bool {
			return centerY(slice[i].bound) < centerY(slice[j].bound)
		})
		for i := 0; i < len(slice); i += maxLeafSize {
			j := i + maxLeafSize
			if j > len(slice) {
				j = len(slice)
			}
			parents = append(parents, internalFromChildren(slice[i:j]))
		}
	}
	return buildInternalLevels(parents)
}

func leafFromEntries(entries []Entry) *node {
	n := &node{isLeaf: true, entries: entries}
	n.bound = entries[0].Bound
	for _, e := range entries[1:] {
		n.bound = n.bound.Union(e.Bound)
	}
	return n
}

func internalFromChildren(children []*node) *node {
	n := &node{isLeaf: false, children: children}
	n.bound = children[0].bound
	for _, c := range children[1:] {
		n.bound = n.bound.Union(c.bound)
	}
	return n
}

func centerX(b orb.Bound) float64 { return (b.Min[0] + b.Max[0]) / 2 }
func centerY(b orb.Bound) float64 { return (b.Min[1] + b.Max[1]) / 2 }

func intSqrtCeil(n int) int {
	if n <= 1 {
		return 1
	}
	r := 1
	for r*r < n {
		r++
	}
	return r
}

// MinDistSq returns the squared planar distance from pt to the nearest
// point of b (0 if pt is inside b).
func MinDistSq(b orb.Bound, pt orb.Point) float64 {
	dx := 0.0
	if pt[0] < b.Min[0] {
		dx = b.Min[0] - pt[0]
	} else if pt[0] > b.Max[0] {
		dx = pt[0] - b.Max[0]
	}
	dy := 0.0
	if pt[1] < b.Min[1] {
		dy = b.Min[1] - pt[1]
	} else if pt[1] > b.Max[1] {
		dy = pt[1] - b.Max[1]
	}
	return dx*dx + dy*dy
}

// EnvelopeLookup returns the indices of every entry whose bound intersects
// query.
func (t *Tree) EnvelopeLookup(query orb.Bound) []int {
	var out []int
	var walk func(n *node)
	walk = func(n *node) {
		if !boundsOverlap(n.bound, query) {
			return
		}
		if n.isLeaf {
			for _, e := range n.entries {
				if boundsOverlap(e.Bound, query) {
					out = append(out, e.Index)
				}
			}
			return
		}
		for _, c := range n.children {
			if boundsOverlap(c.bound, query) {
				walk(c)
			}
		}
	}
	walk(t.root)
	return out
}

func boundsOverlap(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}

// heap item for best-first nearest-neighbor traversal: either an internal
// node or a leaf entry, ordered by ascending min-distance-squared to the
// query point.
type nnItem struct {
	distSq float64
	n      *node  // non-nil for an internal/leaf node to expand
	entry  *Entry // non-nil for a concrete candidate result
}

type nnHeap []nnItem

func (h nnHeap) Len() int            { return len(h) }
func (h nnHeap) Less(i, j int) bool  { return h[i].distSq < h[j].distSq }
func (h nnHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nnHeap) Push(x interface{}) { *h = append(*h, x.(nnItem)) }
func (h *nnHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NearestNeighborIterator yields entry indices around pt in strictly
// non-decreasing order of squared distance-to-envelope, stopping early is
// the caller's responsibility (it returns false once exhausted).
type NearestNeighborIterator struct {
	pt orb.Point
	h  nnHeap
}

// NearestNeighborIter starts a best-first nearest-neighbor walk from pt.
func (t *Tree) NearestNeighborIter(pt orb.Point) *NearestNeighborIterator {
	it := &NearestNeighborIterator{pt: pt}
	heap.Init(&it.h)
	heap.Push(&it.h, nnItem{distSq: MinDistSq(t.root.bound, pt), n: t.root})
	return it
}

// Next returns the next-nearest entry index and its squared distance to pt,
// or ok=false once the tree is exhausted.
func (it *NearestNeighborIterator) Next() (idx int, distSq float64, ok bool) {
	for it.h.Len() > 0 {
		top := heap.Pop(&it.h).(nnItem)
		if top.entry != nil {
			return top.entry.Index, top.distSq, true
		}
		n := top.n
		if n.isLeaf {
			for i := range n.entries {
				e := &n.entries[i]
				d := MinDistSq(e.Bound, it.pt)
				heap.Push(&it.h, nnItem{distSq: d, entry: e})
			}
			continue
		}
		for _, c := range n.children {
			d := MinDistSq(c.bound, it.pt)
			heap.Push(&it.h, nnItem{distSq: d, n: c})
		}
	}
	return 0, 0, false
}
