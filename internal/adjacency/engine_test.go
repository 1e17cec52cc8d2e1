package adjacency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"testing"

	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/ingest"
	"github.com/mohammed-shakir/region-adjacency/internal/intern"
	"github.com/mohammed-shakir/region-adjacency/internal/quantize"
)

type fixture struct {
	in  *intern.Interner
	idx *ingest.PointIndex
}

func newFixture() *fixture {
	return &fixture{in: intern.New(), idx: ingest.NewPointIndex()}
}

// square adds the four corners of the unit square at (x, y) to region id.
func (f *fixture) square(id string, x, y int32) {
	iid := f.in.Intern(id)
	for _, p := range []quantize.Point{{Lon: x, Lat: y}, {Lon: x + 1, Lat: y}, {Lon: x + 1, Lat: y + 1}, {Lon: x, Lat: y + 1}} {
		f.idx.Add(p, iid)
	}
}

func quietEngine(opts Options) *Engine {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts)
}

func compute(t *testing.T, f *fixture, opts Options) *Graph {
	t.Helper()
	g, _, err := quietEngine(opts).Compute(f.idx, f.in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return g
}

func neighbors(t *testing.T, g *Graph, id model.RegionID) []model.RegionID {
	t.Helper()
	ns, ok := g.Neighbors(id)
	if !ok {
		t.Fatalf("region %s has no entry", id)
	}
	return ns
}

func TestCompute_TwoSquaresSharingAnEdge(t *testing.T) {
	f := newFixture()
	f.square("A", 0, 0)
	f.square("B", 1, 0)

	g := compute(t, f, Options{})
	if got := neighbors(t, g, "A"); !slices.Equal(got, []model.RegionID{"B"}) {
		t.Fatalf("A neighbors=%v want [B]", got)
	}
	if got := neighbors(t, g, "B"); !slices.Equal(got, []model.RegionID{"A"}) {
		t.Fatalf("B neighbors=%v want [A]", got)
	}
	if g.PairCount() != 2 {
		t.Fatalf("pairs=%d want 2", g.PairCount())
	}
}

func TestCompute_ThreeRegionsMeetingAtOneCorner(t *testing.T) {
	f := newFixture()
	// triangles fanning out from the origin, touching only at (0,0)
	for i, id := range []string{"A", "B", "C"} {
		iid := f.in.Intern(id)
		base := int32(10 * (i + 1))
		for _, p := range []quantize.Point{{Lon: 0, Lat: 0}, {Lon: base, Lat: 1}, {Lon: base + 1, Lat: 2}} {
			f.idx.Add(p, iid)
		}
	}

	g, stats, err := quietEngine(Options{}).Compute(f.idx, f.in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want := map[model.RegionID][]model.RegionID{
		"A": {"B", "C"},
		"B": {"A", "C"},
		"C": {"A", "B"},
	}
	for id, w := range want {
		if got := neighbors(t, g, id); !slices.Equal(got, w) {
			t.Fatalf("%s neighbors=%v want %v", id, got, w)
		}
	}
	if stats.SharedPoints != 1 || stats.PairsEmitted != 6 {
		t.Fatalf("stats=%+v want 1 shared point, 6 pairs", stats)
	}
}

func TestCompute_IsolatedRegionHasNoEntry(t *testing.T) {
	f := newFixture()
	f.square("A", 0, 0)
	f.square("B", 1, 0)
	f.square("LONELY", 50, 50)

	g := compute(t, f, Options{})
	if _, ok := g.Neighbors("LONELY"); ok {
		t.Fatalf("isolated region must be absent from the graph")
	}
	if g.Len() != 2 || slices.Contains(g.Regions(), "LONELY") {
		t.Fatalf("regions=%v", g.Regions())
	}
	for p := range g.Pairs() {
		if p.Region == "LONELY" || p.Neighbor == "LONELY" {
			t.Fatalf("isolated region appears in pair %+v", p)
		}
	}
}

func gridFixture(n int, seed int64) *fixture {
	type cell struct{ i, j int }
	cells := make([]cell, 0, n*n)
	for i := range n {
		for j := range n {
			cells = append(cells, cell{i, j})
		}
	}
	rand.New(rand.NewSource(seed)).Shuffle(len(cells), func(a, b int) { cells[a], cells[b] = cells[b], cells[a] })

	f := newFixture()
	for _, c := range cells {
		f.square(fmt.Sprintf("r%02d_%02d", c.i, c.j), int32(c.i), int32(c.j))
	}
	return f
}

func TestCompute_GridMatchesEightNeighborhood(t *testing.T) {
	const n = 12
	g := compute(t, gridFixture(n, 1), Options{Workers: 4, Partitioner: ChunkPartitioner{Size: 5}})

	for i := range n {
		for j := range n {
			var want []model.RegionID
			for di := -1; di <= 1; di++ {
				for dj := -1; dj <= 1; dj++ {
					ii, jj := i+di, j+dj
					if (di == 0 && dj == 0) || ii < 0 || jj < 0 || ii >= n || jj >= n {
						continue
					}
					want = append(want, model.RegionID(fmt.Sprintf("r%02d_%02d", ii, jj)))
				}
			}
			slices.Sort(want)
			id := model.RegionID(fmt.Sprintf("r%02d_%02d", i, j))
			if got := neighbors(t, g, id); !slices.Equal(got, want) {
				t.Fatalf("%s neighbors=%v want %v", id, got, want)
			}
		}
	}
}

func TestCompute_SymmetricWithoutSelfLoops(t *testing.T) {
	g := compute(t, gridFixture(9, 7), Options{Workers: 3})
	for p := range g.Pairs() {
		if p.Region == p.Neighbor {
			t.Fatalf("self adjacency %+v", p)
		}
		if !g.Adjacent(p.Neighbor, p.Region) {
			t.Fatalf("pair %+v has no mirror", p)
		}
	}
}

func collectPairs(g *Graph) []model.Pair {
	var out []model.Pair
	for p := range g.Pairs() {
		out = append(out, p)
	}
	return out
}

func TestCompute_DeterministicAcrossWorkersAndPartitions(t *testing.T) {
	want := collectPairs(compute(t, gridFixture(10, 3), Options{Workers: 1}))
	if len(want) == 0 {
		t.Fatalf("expected pairs")
	}
	for _, workers := range []int{1, 2, 3, 8, 32} {
		for _, size := range []int{1, 7, 64, 4096} {
			// a fresh fixture with another insertion order each time
			f := gridFixture(10, int64(workers*1000+size))
			got := collectPairs(compute(t, f, Options{Workers: workers, Partitioner: ChunkPartitioner{Size: size}}))
			if !slices.Equal(got, want) {
				t.Fatalf("workers=%d size=%d: output differs", workers, size)
			}
		}
	}
}

func TestCompute_EmptySource(t *testing.T) {
	f := newFixture()
	g, stats, err := quietEngine(Options{Workers: 4}).Compute(f.idx, f.in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if g.Len() != 0 || stats.Points != 0 || stats.Batches != 0 || stats.Workers != 1 {
		t.Fatalf("graph len=%d stats=%+v", g.Len(), stats)
	}
}

type stubSource []Unit

func (s stubSource) Len() int { return len(s) }
func (s stubSource) Range(fn func(quantize.Point, []intern.ID) bool) {
	for _, u := range s {
		if !fn(u.Point, u.Owners) {
			return
		}
	}
}

func TestCompute_OrphanPointSkipped(t *testing.T) {
	in := intern.New()
	a, b := in.Intern("A"), in.Intern("B")
	src := stubSource{
		{Point: quantize.Point{Lon: 1, Lat: 1}, Owners: nil},
		{Point: quantize.Point{Lon: 2, Lat: 2}, Owners: []intern.ID{a, b}},
		{Point: quantize.Point{Lon: 3, Lat: 3}, Owners: []intern.ID{a}},
	}
	g, stats, err := quietEngine(Options{Workers: 2, Partitioner: ChunkPartitioner{Size: 1}}).Compute(src, in)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if stats.OrphanPoints != 1 || stats.SharedPoints != 1 || stats.PairsEmitted != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	if !g.Adjacent("A", "B") || !g.Adjacent("B", "A") {
		t.Fatalf("expected A<->B")
	}
}

func TestCompute_PanicAbortsWholeComputation(t *testing.T) {
	f := gridFixture(6, 11)
	e := quietEngine(Options{Workers: 4, Partitioner: ChunkPartitioner{Size: 3}})
	bad := quantize.Point{Lon: 3, Lat: 3}
	e.onUnit = func(u Unit) {
		if u.Point == bad {
			panic("unit exploded")
		}
	}
	g, _, err := e.Compute(f.idx, f.in)
	if !errors.Is(err, ErrWorkerPanic) {
		t.Fatalf("err=%v want ErrWorkerPanic", err)
	}
	if g != nil {
		t.Fatalf("partial graph returned after panic")
	}
}

func TestCompute_UnknownIDFails(t *testing.T) {
	src := stubSource{{Point: quantize.Point{}, Owners: []intern.ID{0, 9}}}
	in := intern.New()
	in.Intern("only-one")
	if _, _, err := quietEngine(Options{}).Compute(src, in); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("err=%v want ErrUnknownID", err)
	}
}

func TestChunkPartitioner_CoversEveryUnitOnce(t *testing.T) {
	units := make([]Unit, 23)
	for i := range units {
		units[i] = Unit{Point: quantize.Point{Lon: int32(i)}}
	}
	for _, size := range []int{-1, 0, 1, 5, 23, 100} {
		batches := ChunkPartitioner{Size: size}.Partition(units)
		seen := map[int32]int{}
		for _, b := range batches {
			if len(b) == 0 {
				t.Fatalf("size=%d: empty batch", size)
			}
			for _, u := range b {
				seen[u.Point.Lon]++
			}
		}
		if len(seen) != len(units) {
			t.Fatalf("size=%d: covered %d of %d", size, len(seen), len(units))
		}
		for lon, n := range seen {
			if n != 1 {
				t.Fatalf("size=%d: unit %d seen %d times", size, lon, n)
			}
		}
	}
}

func TestComputeContext_Canceled(t *testing.T) {
	f := gridFixture(4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g, _, err := quietEngine(Options{Workers: 2}).ComputeContext(ctx, f.idx, f.in)
	if !errors.Is(err, context.Canceled) || g != nil {
		t.Fatalf("graph=%v err=%v want context.Canceled", g, err)
	}
}
