// Package graphstore publishes computed adjacency graphs to Redis and reads
// them back by input digest.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-shakir/region-adjacency/internal/cache/keys"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/redisstore"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/core/observability"
)

// Graph is the read side of a computed graph.
type Graph interface {
	Neighbors(id model.RegionID) ([]model.RegionID, bool)
}

type Store struct {
	cli *redisstore.Client
	ttl time.Duration
}

// New returns a store writing keys with ttl; ttl <= 0 keeps them forever.
func New(cli *redisstore.Client, ttl time.Duration) *Store {
	return &Store{cli: cli, ttl: ttl}
}

// Put writes one neighbors key per region plus the region list, then moves the
// latest pointer. Regions without neighbors are stored with an empty list so
// readers can tell them apart from unknown ids.
func (s *Store) Put(ctx context.Context, digest string, regions []model.RegionID, g Graph) error {
	kv := make(map[string][]byte, len(regions)+1)
	for _, id := range regions {
		ns, _ := g.Neighbors(id)
		if ns == nil {
			ns = []model.RegionID{}
		}
		b, err := json.Marshal(ns)
		if err != nil {
			return fmt.Errorf("graphstore encode %q: %w", id, err)
		}
		kv[keys.NeighborsKey(digest, id)] = b
	}
	list, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("graphstore encode regions: %w", err)
	}
	kv[keys.RegionsKey(digest)] = list

	if err := s.cli.MSetWithTTL(ctx, kv, s.ttl); err != nil {
		return fmt.Errorf("graphstore put %s: %w", digest, err)
	}
	// the pointer moves only after the whole graph is readable
	if err := s.cli.Set(ctx, keys.LatestKey, []byte(digest), s.ttl); err != nil {
		return fmt.Errorf("graphstore latest %s: %w", digest, err)
	}
	return nil
}

// Latest returns the digest of the most recently published graph.
func (s *Store) Latest(ctx context.Context) (string, bool, error) {
	v, ok, err := s.cli.Get(ctx, keys.LatestKey)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

func (s *Store) Regions(ctx context.Context, digest string) ([]model.RegionID, bool, error) {
	v, ok, err := s.cli.Get(ctx, keys.RegionsKey(digest))
	if err != nil || !ok {
		return nil, ok, err
	}
	var out []model.RegionID
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, false, fmt.Errorf("graphstore decode regions %s: %w", digest, err)
	}
	return out, true, nil
}

// Neighbors returns the stored neighbor list of id, or (nil, false) when the
// graph has no such region.
func (s *Store) Neighbors(ctx context.Context, digest string, id model.RegionID) ([]model.RegionID, bool, error) {
	got, err := s.MGetNeighbors(ctx, digest, []model.RegionID{id})
	if err != nil {
		return nil, false, err
	}
	ns, ok := got[id]
	return ns, ok, nil
}

// MGetNeighbors fetches several regions in one round trip. Unknown ids are
// absent from the result.
func (s *Store) MGetNeighbors(ctx context.Context, digest string, ids []model.RegionID) (map[model.RegionID][]model.RegionID, error) {
	if len(ids) == 0 {
		return map[model.RegionID][]model.RegionID{}, nil
	}
	ks := make([]string, len(ids))
	for i, id := range ids {
		ks[i] = keys.NeighborsKey(digest, id)
	}
	raw, err := s.cli.MGet(ctx, ks)
	if err != nil {
		return nil, fmt.Errorf("graphstore MGET %d regions: %w", len(ks), err)
	}

	out := make(map[model.RegionID][]model.RegionID, len(raw))
	for i, id := range ids {
		b, ok := raw[ks[i]]
		if !ok {
			continue
		}
		var ns []model.RegionID
		if err := json.Unmarshal(b, &ns); err != nil {
			return nil, fmt.Errorf("graphstore decode %q: %w", id, err)
		}
		out[id] = ns
	}
	observability.AddCacheHits(len(out))
	observability.AddCacheMisses(len(ids) - len(out))
	return out, nil
}

// Drop deletes every key of one published graph. The latest pointer is left
// alone.
func (s *Store) Drop(ctx context.Context, digest string) (int, error) {
	ks, err := s.cli.ScanPrefix(ctx, keys.Prefix(digest))
	if err != nil {
		return 0, fmt.Errorf("graphstore drop %s: %w", digest, err)
	}
	if err := s.cli.Del(ctx, ks...); err != nil {
		return 0, fmt.Errorf("graphstore drop %s: %w", digest, err)
	}
	return len(ks), nil
}
