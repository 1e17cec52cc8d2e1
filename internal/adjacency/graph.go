package adjacency

import (
	"iter"
	"maps"
	"slices"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
)

// Graph maps each region to its sorted, duplicate-free neighbor list. Regions
// sharing no vertex with any other region have no entry. A Graph is immutable.
type Graph struct {
	regions []model.RegionID
	adj     map[model.RegionID][]model.RegionID
	pairs   int
}

// NewGraph builds a Graph from an unordered adjacency map. Neighbor lists are
// copied, sorted and de-duplicated; self references and empty lists are dropped.
func NewGraph(adj map[model.RegionID][]model.RegionID) *Graph {
	g := &Graph{adj: make(map[model.RegionID][]model.RegionID, len(adj))}
	for id, ns := range adj {
		out := make([]model.RegionID, 0, len(ns))
		for _, n := range ns {
			if n != id {
				out = append(out, n)
			}
		}
		slices.Sort(out)
		out = slices.Compact(out)
		if len(out) == 0 {
			continue
		}
		g.adj[id] = out
		g.pairs += len(out)
	}
	g.regions = slices.Sorted(maps.Keys(g.adj))
	return g
}

// Len is the number of regions with at least one neighbor.
func (g *Graph) Len() int { return len(g.regions) }

// PairCount is the number of ordered (region, neighbor) pairs.
func (g *Graph) PairCount() int { return g.pairs }

// Regions returns the regions with an entry, in ascending order.
func (g *Graph) Regions() []model.RegionID { return slices.Clone(g.regions) }

// Neighbors returns the sorted neighbors of id and whether id has an entry.
func (g *Graph) Neighbors(id model.RegionID) ([]model.RegionID, bool) {
	ns, ok := g.adj[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(ns), true
}

// Adjacent reports whether b is a neighbor of a.
func (g *Graph) Adjacent(a, b model.RegionID) bool {
	_, found := slices.BinarySearch(g.adj[a], b)
	return found
}

// Pairs yields every ordered pair, by region then neighbor.
func (g *Graph) Pairs() iter.Seq[model.Pair] {
	return func(yield func(model.Pair) bool) {
		for _, id := range g.regions {
			for _, n := range g.adj[id] {
				if !yield(model.Pair{Region: id, Neighbor: n}) {
					return
				}
			}
		}
	}
}
