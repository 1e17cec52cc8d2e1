package regions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/region-adjacency/internal/adjacency"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/graphstore"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/core/router"
)

var ErrNoPublishedGraph = errors.New("no published graph")

const mgetBatch = 512

// Store serves a graph published to Redis. Neighbor lists are kept in an LRU;
// the full graph is assembled once on first request.
type Store struct {
	store   *graphstore.Store
	digest  string
	timeout time.Duration
	cache   *lru.Cache[model.RegionID, []model.RegionID]

	mu    sync.Mutex
	graph *adjacency.Graph
}

var _ router.Source = (*Store)(nil)

// NewStore binds to digest, or to the latest published graph when digest is
// empty.
func NewStore(ctx context.Context, st *graphstore.Store, digest string, size int, timeout time.Duration) (*Store, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[model.RegionID, []model.RegionID](size)
	if err != nil {
		return nil, fmt.Errorf("region lru: %w", err)
	}
	s := &Store{store: st, timeout: timeout, cache: cache}
	if digest == "" {
		ctx, cancel := s.opCtx(ctx)
		defer cancel()
		d, ok, err := st.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve latest graph: %w", err)
		}
		if !ok {
			return nil, ErrNoPublishedGraph
		}
		digest = d
	}
	s.digest = digest
	return s, nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Digest() string { return s.digest }

func (s *Store) Regions(ctx context.Context) ([]model.RegionID, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ids, ok, err := s.store.Regions(ctx, s.digest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPublishedGraph, s.digest)
	}
	return ids, nil
}

func (s *Store) Region(ctx context.Context, id model.RegionID) (router.RegionView, bool, error) {
	if ns, ok := s.cache.Get(id); ok {
		return router.RegionView{ID: id, Neighbors: slices.Clone(ns)}, true, nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ns, ok, err := s.store.Neighbors(ctx, s.digest, id)
	if err != nil || !ok {
		return router.RegionView{}, false, err
	}
	s.cache.Add(id, ns)
	return router.RegionView{ID: id, Neighbors: slices.Clone(ns)}, true, nil
}

func (s *Store) Graph(ctx context.Context) (*adjacency.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph != nil {
		return s.graph, nil
	}

	ids, err := s.Regions(ctx)
	if err != nil {
		return nil, err
	}
	adj := make(map[model.RegionID][]model.RegionID, len(ids))
	for batch := range slices.Chunk(ids, mgetBatch) {
		bctx, cancel := s.opCtx(ctx)
		got, err := s.store.MGetNeighbors(bctx, s.digest, batch)
		cancel()
		if err != nil {
			return nil, err
		}
		for id, ns := range got {
			adj[id] = ns
			s.cache.Add(id, ns)
		}
	}
	s.graph = adjacency.NewGraph(adj)
	return s.graph, nil
}
