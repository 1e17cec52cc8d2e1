// Package ingest parses a GeoJSON FeatureCollection into interned regions and a
// point index keyed by quantized vertex.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/intern"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
	"github.com/mohammed-shakir/region-adjacency/internal/regionid"
)

// Summary describes one ingested region.
type Summary struct {
	Features int
	Vertices int
	Bound    orb.Bound
}

// Result is the read-only output of one ingestion.
type Result struct {
	Interner *intern.Interner
	Index    *PointIndex
	Features int

	summaries []Summary // indexed by intern.ID
}

// Summary returns what was ingested for id.
func (r *Result) Summary(id model.RegionID) (Summary, bool) {
	iid, ok := r.Interner.Lookup(string(id))
	if !ok {
		return Summary{}, false
	}
	return r.summaries[iid], true
}

// Regions returns every ingested region in ascending order.
func (r *Result) Regions() []model.RegionID {
	out := make([]model.RegionID, 0, r.Interner.Len())
	for i := range r.Interner.Len() {
		s, _ := r.Interner.Resolve(intern.ID(i))
		out = append(out, model.RegionID(s))
	}
	slices.Sort(out)
	return out
}

type Loader struct {
	log      *slog.Logger
	resolver *regionid.Resolver
}

func NewLoader(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{log: log, resolver: regionid.New(log)}
}

type rawFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// Load ingests a FeatureCollection. The document shape is validated before any
// feature is processed; the first bad feature aborts the whole load.
func (l *Loader) Load(data []byte) (*Result, error) {
	feats, err := parseCollection(data)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Interner: intern.New(),
		Index:    NewPointIndex(),
		Features: len(feats),
	}
	for i, f := range feats {
		if err := l.addFeature(res, i, f); err != nil {
			return nil, err
		}
	}

	l.log.Info("ingested feature collection",
		"features", res.Features,
		"regions", res.Interner.Len(),
		"points", res.Index.Len())
	return res, nil
}

func parseCollection(data []byte) ([]rawFeature, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: parse json: %w", model.ErrUnsupportedInputShape, err)
	}

	var typ string
	tRaw, ok := root["type"]
	if !ok {
		return nil, fmt.Errorf(`%w: missing required member "type"`, model.ErrUnsupportedInputShape)
	}
	if err := json.Unmarshal(tRaw, &typ); err != nil {
		return nil, fmt.Errorf(`%w: parse "type": %w`, model.ErrUnsupportedInputShape, err)
	}
	if typ != "FeatureCollection" {
		return nil, fmt.Errorf(`%w: type is %q (want "FeatureCollection")`, model.ErrUnsupportedInputShape, typ)
	}

	featuresRaw, ok := root["features"]
	if !ok {
		return nil, fmt.Errorf(`%w: missing required member "features"`, model.ErrUnsupportedInputShape)
	}
	if bytes.Equal(bytes.TrimSpace(featuresRaw), []byte("null")) {
		return nil, fmt.Errorf(`%w: "features" is null`, model.ErrUnsupportedInputShape)
	}
	var feats []rawFeature
	if err := json.Unmarshal(featuresRaw, &feats); err != nil {
		return nil, fmt.Errorf(`%w: "features" must be an array of objects: %w`, model.ErrUnsupportedInputShape, err)
	}
	for i, f := range feats {
		if f.Type != "Feature" {
			return nil, fmt.Errorf(`%w: feature %d: type is %q (want "Feature")`, model.ErrUnsupportedInputShape, i, f.Type)
		}
	}
	return feats, nil
}

func (l *Loader) addFeature(res *Result, idx int, f rawFeature) error {
	id, err := l.resolver.Resolve(f.Properties)
	if err != nil {
		return &model.FeatureError{Index: idx, Err: fmt.Errorf("%w: %w", model.ErrUnresolvableFeature, err)}
	}

	rings, bound, err := polygonRings(f.Geometry)
	if err != nil {
		return &model.FeatureError{Index: idx, RegionID: id, Err: err}
	}

	// quantize everything first so a bad vertex leaves the index untouched
	var pts []quantize.Point
	for _, ring := range rings {
		for _, p := range ring {
			q, err := quantize.Quantize(p.Lon(), p.Lat())
			if err != nil {
				return &model.FeatureError{Index: idx, RegionID: id, Err: err}
			}
			pts = append(pts, q)
		}
	}

	iid := res.Interner.Intern(string(id))
	if int(iid) == len(res.summaries) {
		res.summaries = append(res.summaries, Summary{Bound: bound})
	} else {
		res.summaries[iid].Bound = res.summaries[iid].Bound.Union(bound)
	}
	sum := &res.summaries[iid]
	sum.Features++
	for _, q := range pts {
		if res.Index.Add(q, iid) {
			sum.Vertices++
		}
	}
	return nil
}

// polygonRings returns every ring (outer and holes) of a Polygon or
// MultiPolygon geometry.
func polygonRings(raw json.RawMessage) ([]orb.Ring, orb.Bound, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, orb.Bound{}, fmt.Errorf("%w: %w", model.ErrUnresolvableFeature, model.ErrMissingGeometry)
	}
	g, err := geojson.UnmarshalGeometry(trimmed)
	if err != nil {
		return nil, orb.Bound{}, fmt.Errorf("%w: %w: %w", model.ErrUnresolvableFeature, model.ErrUnsupportedGeometry, err)
	}

	var rings []orb.Ring
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		rings = append(rings, geom...)
	case orb.MultiPolygon:
		for _, poly := range geom {
			rings = append(rings, poly...)
		}
	default:
		return nil, orb.Bound{}, fmt.Errorf("%w: %w: type %q", model.ErrUnresolvableFeature, model.ErrUnsupportedGeometry, g.Type)
	}

	var bound orb.Bound
	n := 0
	for _, r := range rings {
		for _, p := range r {
			if n == 0 {
				bound = orb.Bound{Min: p, Max: p}
			} else {
				bound = bound.Extend(p)
			}
			n++
		}
	}
	if n == 0 {
		return nil, orb.Bound{}, fmt.Errorf("%w: %w: empty %s", model.ErrUnresolvableFeature, model.ErrUnsupportedGeometry, g.Type)
	}
	return rings, bound, nil
}
