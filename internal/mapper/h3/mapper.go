// Package h3mapper groups adjacency work units by the H3 cell their point
// falls in, so each worker folds a spatially compact batch.
package h3mapper

import (
	"cmp"
	"maps"
	"slices"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/region-adjacency/internal/adjacency"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
)

const (
	DefaultRes        = 5
	DefaultMaxBatches = 1 << 14
)

// Partitioner implements adjacency.Partitioner. Batches are ordered by cell
// index; units keep their input order within a batch.
type Partitioner struct {
	res        int
	maxBatches int
}

var _ adjacency.Partitioner = (*Partitioner)(nil)

// New returns a partitioner at resolution res. When a collection spreads over
// more than maxBatches cells the grouping is coarsened to parent cells until
// it fits. maxBatches <= 0 uses DefaultMaxBatches.
func New(res, maxBatches int) (*Partitioner, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	return &Partitioner{res: res, maxBatches: maxBatches}, nil
}

func (p *Partitioner) Res() int { return p.res }

func (p *Partitioner) Partition(units []adjacency.Unit) [][]adjacency.Unit {
	groups := make(map[h3.Cell][]adjacency.Unit)
	for _, u := range units {
		c := CellFor(u.Point, p.res)
		groups[c] = append(groups[c], u)
	}
	for res := p.res; len(groups) > p.maxBatches && res > 0; res-- {
		groups = coarsen(groups, res-1)
	}

	cells := slices.SortedFunc(maps.Keys(groups), func(a, b h3.Cell) int {
		return cmp.Compare(uint64(a), uint64(b))
	})
	out := make([][]adjacency.Unit, 0, len(cells))
	for _, c := range cells {
		out = append(out, groups[c])
	}
	return out
}

// CellFor maps a quantized point to its H3 cell. Points H3 cannot index land
// in the zero cell, which still forms a valid batch.
func CellFor(pt quantize.Point, res int) h3.Cell {
	lon, lat := quantize.Dequantize(pt)
	c, err := h3.LatLngToCell(h3.LatLng{Lat: clampLat(lat), Lng: lon}, res)
	if err != nil {
		return 0
	}
	return c
}

func coarsen(groups map[h3.Cell][]adjacency.Unit, parentRes int) map[h3.Cell][]adjacency.Unit {
	out := make(map[h3.Cell][]adjacency.Unit, len(groups)/7+1)
	// iterate in cell order so merged batches are stable across runs
	cells := slices.SortedFunc(maps.Keys(groups), func(a, b h3.Cell) int {
		return cmp.Compare(uint64(a), uint64(b))
	})
	for _, c := range cells {
		parent := parentOf(c, parentRes)
		out[parent] = append(out[parent], groups[c]...)
	}
	return out
}

// latitudes are quantized on the same (-180, 180) range as longitudes
func clampLat(lat float64) float64 {
	return max(-90, min(90, lat))
}
