// Package regions provides the graph sources served by the adjacency server.
package regions

import (
	"context"

	"github.com/mohammed-shakir/region-adjacency/internal/adjacency"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/core/router"
	"github.com/mohammed-shakir/region-adjacency/internal/ingest"
)

// Memory serves a graph computed in this process, together with the ingestion
// summaries of every region.
type Memory struct {
	digest  string
	graph   *adjacency.Graph
	ingest  *ingest.Result
	regions []model.RegionID
}

var _ router.Source = (*Memory)(nil)

func NewMemory(digest string, g *adjacency.Graph, res *ingest.Result) *Memory {
	return &Memory{digest: digest, graph: g, ingest: res, regions: res.Regions()}
}

func (m *Memory) Digest() string { return m.digest }

func (m *Memory) Regions(context.Context) ([]model.RegionID, error) {
	return append([]model.RegionID(nil), m.regions...), nil
}

func (m *Memory) Region(_ context.Context, id model.RegionID) (router.RegionView, bool, error) {
	sum, ok := m.ingest.Summary(id)
	if !ok {
		return router.RegionView{}, false, nil
	}
	ns, _ := m.graph.Neighbors(id)
	bb := model.BBox{
		X1: sum.Bound.Min.Lon(), Y1: sum.Bound.Min.Lat(),
		X2: sum.Bound.Max.Lon(), Y2: sum.Bound.Max.Lat(),
	}
	return router.RegionView{ID: id, Neighbors: ns, Vertices: sum.Vertices, BBox: &bb}, true, nil
}

func (m *Memory) Graph(context.Context) (*adjacency.Graph, error) { return m.graph, nil }
