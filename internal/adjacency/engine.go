// Package adjacency computes the region adjacency graph from a point index.
//
// Every point touched by two or more regions yields all ordered pairs of those
// regions. Workers fold pairs into private partial graphs; the partials are
// merged sequentially after the fork/join barrier, so the hot loop never
// synchronizes.
package adjacency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/intern"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
)

var (
	// ErrWorkerPanic wraps a panic raised while processing a unit of work.
	ErrWorkerPanic = errors.New("adjacency worker panicked")
	// ErrUnknownID means the point index holds an id its interner never issued.
	ErrUnknownID = errors.New("interned id does not resolve")
)

// Source is the read-only point index consumed by the engine.
type Source interface {
	Len() int
	Range(fn func(p quantize.Point, owners []intern.ID) bool)
}

// Names resolves interned ids back to identifiers.
type Names interface {
	Resolve(id intern.ID) (string, bool)
}

type Options struct {
	// Workers defaults to GOMAXPROCS.
	Workers     int
	Partitioner Partitioner
	Logger      *slog.Logger
}

// Stats describes one computation.
type Stats struct {
	Points       int
	SharedPoints int
	OrphanPoints int
	PairsEmitted int
	Batches      int
	Workers      int
}

type Engine struct {
	workers int
	part    Partitioner
	log     *slog.Logger

	onUnit func(Unit) // test hook
}

func New(opts Options) *Engine {
	e := &Engine{workers: opts.Workers, part: opts.Partitioner, log: opts.Logger}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.part == nil {
		e.part = ChunkPartitioner{Size: DefaultChunkSize}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// partial is one worker's private accumulation.
type partial struct {
	adj    map[intern.ID]map[intern.ID]struct{}
	shared int
	orphan int
	pairs  int
}

func newPartial() *partial {
	return &partial{adj: make(map[intern.ID]map[intern.ID]struct{})}
}

func (p *partial) neighbors(id intern.ID) map[intern.ID]struct{} {
	ns, ok := p.adj[id]
	if !ok {
		ns = make(map[intern.ID]struct{})
		p.adj[id] = ns
	}
	return ns
}

// fold inserts every ordered pair of distinct owners of u.
func (p *partial) fold(u Unit) {
	switch n := len(u.Owners); {
	case n == 0:
		p.orphan++
	case n == 1:
	default:
		p.shared++
		for _, a := range u.Owners {
			ns := p.neighbors(a)
			for _, b := range u.Owners {
				if a == b {
					continue
				}
				ns[b] = struct{}{}
				p.pairs++
			}
		}
	}
}

// merge unions other into p.
func (p *partial) merge(other *partial) {
	for a, ns := range other.adj {
		dst := p.neighbors(a)
		for b := range ns {
			dst[b] = struct{}{}
		}
	}
	p.shared += other.shared
	p.orphan += other.orphan
	p.pairs += other.pairs
}

// Compute builds the adjacency graph. The result does not depend on the
// iteration order of src, the worker count or the partitioning. A panic in any
// unit aborts the whole computation.
func (e *Engine) Compute(src Source, names Names) (*Graph, Stats, error) {
	return e.ComputeContext(context.Background(), src, names)
}

// ComputeContext is Compute with cancellation between batches.
func (e *Engine) ComputeContext(parent context.Context, src Source, names Names) (*Graph, Stats, error) {
	units := make([]Unit, 0, src.Len())
	src.Range(func(p quantize.Point, owners []intern.ID) bool {
		units = append(units, Unit{Point: p, Owners: owners})
		return true
	})

	batches := e.part.Partition(units)
	workers := max(min(e.workers, len(batches)), 1)
	stats := Stats{Points: len(units), Batches: len(batches), Workers: workers}

	e.log.Info("computing adjacencies",
		"points", stats.Points,
		"batches", stats.Batches,
		"workers", workers)

	jobs := make(chan []Unit, len(batches))
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)

	partials := make([]*partial, workers)
	g, ctx := errgroup.WithContext(parent)
	for w := range workers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: worker %d: %v", ErrWorkerPanic, w, r)
				}
			}()
			local := newPartial()
			for batch := range jobs {
				if ctx.Err() != nil {
					return nil
				}
				for _, u := range batch {
					if e.onUnit != nil {
						e.onUnit(u)
					}
					local.fold(u)
				}
			}
			partials[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := parent.Err(); err != nil {
		return nil, stats, fmt.Errorf("compute canceled: %w", err)
	}

	e.log.Debug("collected partial graphs; merging", "partials", len(partials))
	final := partials[0]
	for _, p := range partials[1:] {
		e.log.Debug("merging partial graph", "regions", len(p.adj))
		final.merge(p)
	}
	stats.SharedPoints = final.shared
	stats.OrphanPoints = final.orphan
	stats.PairsEmitted = final.pairs
	if final.orphan > 0 {
		e.log.Warn("points without owning regions skipped", "count", final.orphan)
	}

	graph, err := resolve(final, names)
	if err != nil {
		return nil, stats, err
	}
	e.log.Info("adjacency computed",
		"regions", graph.Len(),
		"pairs", graph.PairCount(),
		"shared_points", stats.SharedPoints)
	return graph, stats, nil
}

// resolve turns interned ids back into region identifiers, only now that the
// integer-keyed work is done.
func resolve(p *partial, names Names) (*Graph, error) {
	adj := make(map[model.RegionID][]model.RegionID, len(p.adj))
	for a, ns := range p.adj {
		name, ok := names.Resolve(a)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnknownID, a)
		}
		out := make([]model.RegionID, 0, len(ns))
		for b := range ns {
			nb, ok := names.Resolve(b)
			if !ok {
				return nil, fmt.Errorf("%w: %v", ErrUnknownID, b)
			}
			out = append(out, model.RegionID(nb))
		}
		adj[model.RegionID(name)] = out
	}
	return NewGraph(adj), nil
}
