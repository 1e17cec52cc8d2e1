package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/region-adjacency/internal/cache/graphstore"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/redisstore"
	"github.com/mohammed-shakir/region-adjacency/internal/core/config"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/publish/kafka"
)

const tractsCSV = "06075010100,06075010200\n" +
	"06075010200,06075010100\n" +
	"06075010200,06075010300\n" +
	"06075010300,06075010200\n"

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func engineCfg(workers int, partition string) config.EngineCfg {
	return config.EngineCfg{Workers: workers, Delimiter: ",", Partition: partition, ChunkSize: 2, H3Res: 7}
}

func writeInput(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.geojson")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return p
}

func TestRun_WritesAdjacencyFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "adjacency.csv")
	rep, err := Run(context.Background(), Options{
		Input:  "testdata/tracts.geojson",
		Output: out,
		Engine: engineCfg(2, config.PartitionChunk),
		Logger: quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(b) != tractsCSV {
		t.Fatalf("output=%q want %q", b, tractsCSV)
	}

	if rep.Features != 4 || rep.Regions != 4 || rep.Pairs != 4 || rep.Written != 4 {
		t.Fatalf("report=%+v", rep)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(rep.Digest) || rep.RunID == "" {
		t.Fatalf("digest=%q run=%q", rep.Digest, rep.RunID)
	}
	for _, ph := range []string{PhaseRead, PhaseIngest, PhaseCompute, PhaseWrite, PhasePublish} {
		if _, ok := rep.Durations[ph]; !ok {
			t.Fatalf("missing duration for %s: %v", ph, rep.Durations)
		}
	}

	// isolated tract is known to ingestion but has no graph entry
	if _, ok := rep.Graph.Neighbors("06075099900"); ok {
		t.Fatalf("isolated region has a graph entry")
	}
	if s, ok := rep.Ingest.Summary("06075010300"); !ok || s.Vertices != 7 {
		t.Fatalf("summary=%+v ok=%v", s, ok)
	}
}

func TestRun_ByteIdenticalAcrossWorkersAndPartitions(t *testing.T) {
	dir := t.TempDir()
	var outputs [][]byte
	for i, cfg := range []config.EngineCfg{
		engineCfg(1, config.PartitionChunk),
		engineCfg(8, config.PartitionChunk),
		engineCfg(3, config.PartitionH3),
	} {
		out := filepath.Join(dir, "out"+string(rune('a'+i))+".csv")
		if _, err := Run(context.Background(), Options{Input: "testdata/tracts.geojson", Output: out, Engine: cfg, Logger: quietLog()}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		b, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		outputs = append(outputs, b)
	}
	for i := 1; i < len(outputs); i++ {
		if !bytes.Equal(outputs[0], outputs[i]) {
			t.Fatalf("output %d differs:\n%s\nvs\n%s", i, outputs[i], outputs[0])
		}
	}
}

func TestRun_FailuresLeaveNoOutput(t *testing.T) {
	cases := []struct {
		name  string
		input string
		kind  string
	}{
		{"missing identifier", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"NAME":"x"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`, "MissingIdentifier"},
		{"not a collection", `{"type":"Feature","properties":{},"geometry":null}`, "UnsupportedInputShape"},
		{"out of range", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"GEOID10":"x"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[180,0],[1,1],[0,0]]]}}]}`, "CoordinateOutOfRange"},
		{"null geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"GEOID10":"x"},"geometry":null}]}`, "UnresolvableFeature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "adjacency.csv")
			_, err := Run(context.Background(), Options{
				Input:  writeInput(t, tc.input),
				Output: out,
				Engine: engineCfg(2, config.PartitionChunk),
				Logger: quietLog(),
			})
			if got := model.Kind(err); got != tc.kind {
				t.Fatalf("kind=%q want %q (err=%v)", got, tc.kind, err)
			}
			if ExitCode(err) == 0 {
				t.Fatalf("exit code 0 for %v", err)
			}
			if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
				t.Fatalf("output file created on failure")
			}
		})
	}
}

func TestRun_UnreadableInputAndBadOptions(t *testing.T) {
	_, err := Run(context.Background(), Options{Input: filepath.Join(t.TempDir(), "nope.geojson"), Logger: quietLog()})
	if !errors.Is(err, model.ErrInputReadFailed) || ExitCode(err) != 66 {
		t.Fatalf("err=%v code=%d", err, ExitCode(err))
	}

	bad := engineCfg(1, "quadtree")
	if _, err := Run(context.Background(), Options{Input: "testdata/tracts.geojson", Engine: bad, Logger: quietLog()}); err == nil {
		t.Fatalf("expected unknown partition error")
	}
	bad = engineCfg(1, config.PartitionChunk)
	bad.Delimiter = "\n"
	if _, err := Run(context.Background(), Options{Input: "testdata/tracts.geojson", Engine: bad, Logger: quietLog()}); err == nil {
		t.Fatalf("expected delimiter error")
	}
}

type recordingEvents struct {
	got []kafka.GraphEvent
	err error
}

func (r *recordingEvents) Publish(_ context.Context, ev kafka.GraphEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestRun_PublishesToStoreAndEvents(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	store := graphstore.New(cli, 0)
	events := &recordingEvents{}

	rep, err := Run(ctx, Options{
		Input:  "testdata/tracts.geojson",
		Engine: engineCfg(2, config.PartitionChunk),
		Store:  store,
		Events: events,
		Logger: quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Written != 0 {
		t.Fatalf("written=%d with no output path", rep.Written)
	}

	latest, ok, err := store.Latest(ctx)
	if err != nil || !ok || latest != rep.Digest {
		t.Fatalf("latest=%q ok=%v err=%v want %s", latest, ok, err, rep.Digest)
	}
	ns, ok, err := store.Neighbors(ctx, rep.Digest, "06075010200")
	if err != nil || !ok || !slices.Equal(ns, []model.RegionID{"06075010100", "06075010300"}) {
		t.Fatalf("neighbors=%v ok=%v err=%v", ns, ok, err)
	}
	if ns, ok, _ := store.Neighbors(ctx, rep.Digest, "06075099900"); !ok || len(ns) != 0 {
		t.Fatalf("isolated neighbors=%v ok=%v", ns, ok)
	}

	if len(events.got) != 1 {
		t.Fatalf("events=%d want 1", len(events.got))
	}
	ev := events.got[0]
	if ev.Digest != rep.Digest || ev.Regions != 4 || ev.Pairs != 4 || ev.RunID != rep.RunID {
		t.Fatalf("event=%+v", ev)
	}
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "adjacency.csv")
	events := &recordingEvents{err: errors.New("broker down")}
	if _, err := Run(context.Background(), Options{
		Input:  "testdata/tracts.geojson",
		Output: out,
		Engine: engineCfg(2, config.PartitionChunk),
		Events: events,
		Logger: quietLog(),
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events.got) != 1 {
		t.Fatalf("publisher not called")
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}
