package ingest

import (
	"slices"

	"github.com/mohammed-shakir/region-adjacency/internal/intern"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
)

// PointIndex maps each quantized vertex to the regions whose boundary passes
// through it. Owner lists are duplicate-free and usually hold one to four ids,
// so a linear membership check beats a per-point set.
type PointIndex struct {
	points map[quantize.Point][]intern.ID
}

func NewPointIndex() *PointIndex {
	return &PointIndex{points: make(map[quantize.Point][]intern.ID)}
}

// Add records id as an owner of p and reports whether it was new.
func (x *PointIndex) Add(p quantize.Point, id intern.ID) bool {
	owners := x.points[p]
	if slices.Contains(owners, id) {
		return false
	}
	x.points[p] = append(owners, id)
	return true
}

// Owners returns the owners of p. The slice must not be modified.
func (x *PointIndex) Owners(p quantize.Point) []intern.ID {
	return x.points[p]
}

// Len is the number of distinct points.
func (x *PointIndex) Len() int { return len(x.points) }

// Range calls fn for every point until fn returns false. Order is unspecified.
func (x *PointIndex) Range(fn func(p quantize.Point, owners []intern.ID) bool) {
	for p, owners := range x.points {
		if !fn(p, owners) {
			return
		}
	}
}
