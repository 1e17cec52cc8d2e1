// Package pipeline runs one processing pass from a GeoJSON input file to a
// committed adjacency file, with optional publication of the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mohammed-shakir/region-adjacency/internal/adjacency"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/graphstore"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/keys"
	"github.com/mohammed-shakir/region-adjacency/internal/core/config"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/core/observability"
	"github.com/mohammed-shakir/region-adjacency/internal/ingest"
	"github.com/mohammed-shakir/region-adjacency/internal/logger"
	h3mapper "github.com/mohammed-shakir/region-adjacency/internal/mapper/h3"
	"github.com/mohammed-shakir/region-adjacency/internal/publish/kafka"
	"github.com/mohammed-shakir/region-adjacency/internal/serializer"
)

const (
	PhaseRead    = "read"
	PhaseIngest  = "ingest"
	PhaseCompute = "compute"
	PhaseWrite   = "write"
	PhasePublish = "publish"
)

// GraphStore receives the computed graph after the output file is committed.
type GraphStore interface {
	Put(ctx context.Context, digest string, regions []model.RegionID, g graphstore.Graph) error
}

// EventPublisher announces a committed graph.
type EventPublisher interface {
	Publish(ctx context.Context, ev kafka.GraphEvent) error
}

type Options struct {
	Input  string
	Output string // empty skips the file commit
	Engine config.EngineCfg

	Store  GraphStore
	Events EventPublisher
	Logger *slog.Logger
}

type Report struct {
	RunID     string
	Digest    string
	Features  int
	Regions   int
	Points    int
	Pairs     int
	Written   int
	Stats     adjacency.Stats
	Durations map[string]time.Duration

	Graph  *adjacency.Graph
	Ingest *ingest.Result
}

// NewPartitioner builds the engine partitioner named by cfg.
func NewPartitioner(cfg config.EngineCfg) (adjacency.Partitioner, error) {
	switch cfg.Partition {
	case "", config.PartitionChunk:
		return adjacency.ChunkPartitioner{Size: cfg.ChunkSize}, nil
	case config.PartitionH3:
		return h3mapper.New(cfg.H3Res, 0)
	default:
		return nil, fmt.Errorf("unknown partition strategy %q", cfg.Partition)
	}
}

// Run executes one pass. Failures up to and including the file commit abort
// the run; store and event failures are logged and counted only.
func Run(ctx context.Context, opts Options) (rep *Report, err error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, "")
	}
	rep = &Report{RunID: logger.RunID(ctx), Durations: make(map[string]time.Duration, 5)}
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = model.Kind(err)
		}
		observability.ObserveRun(outcome)
	}()

	delim := opts.Engine.Delimiter
	if delim == "" {
		delim = serializer.DefaultDelimiter
	}
	if err := serializer.ValidateDelimiter(delim); err != nil {
		return nil, err
	}
	part, err := NewPartitioner(opts.Engine)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = rep.phase(PhaseRead, func() (err error) {
		data, err = os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", model.ErrInputReadFailed, opts.Input, err)
		}
		rep.Digest = keys.Digest(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "input read", "input", opts.Input, "bytes", len(data), "digest", rep.Digest)

	err = rep.phase(PhaseIngest, func() (err error) {
		rep.Ingest, err = ingest.NewLoader(log).Load(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", opts.Input, err)
	}
	data = nil
	rep.Features = rep.Ingest.Features
	rep.Regions = rep.Ingest.Interner.Len()
	rep.Points = rep.Ingest.Index.Len()

	err = rep.phase(PhaseCompute, func() (err error) {
		eng := adjacency.New(adjacency.Options{Workers: opts.Engine.Workers, Partitioner: part, Logger: log})
		rep.Graph, rep.Stats, err = eng.ComputeContext(ctx, rep.Ingest.Index, rep.Ingest.Interner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	rep.Pairs = rep.Graph.PairCount()
	observability.SetGraphSize(rep.Regions, rep.Points, rep.Pairs)

	if opts.Output != "" {
		err = rep.phase(PhaseWrite, func() (err error) {
			rep.Written, err = serializer.WriteFile(opts.Output, rep.Graph, delim)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", opts.Output, err)
		}
		log.InfoContext(ctx, "adjacency written", "output", opts.Output, "records", rep.Written)
	}

	_ = rep.phase(PhasePublish, func() error {
		publish(ctx, log, opts, rep)
		return nil
	})
	return rep, nil
}

func publish(ctx context.Context, log *slog.Logger, opts Options, rep *Report) {
	if opts.Store != nil {
		if err := opts.Store.Put(ctx, rep.Digest, rep.Ingest.Regions(), rep.Graph); err != nil {
			observability.IncSinkFailure("redis")
			log.WarnContext(ctx, "graph store publication failed", "digest", rep.Digest, "err", err)
		}
	}
	if opts.Events != nil {
		ev := kafka.GraphEvent{
			Version: kafka.EventVersion,
			Digest:  rep.Digest,
			Input:   opts.Input,
			Regions: rep.Regions,
			Pairs:   rep.Pairs,
			RunID:   rep.RunID,
			TS:      time.Now().UTC(),
		}
		if err := opts.Events.Publish(ctx, ev); err != nil {
			observability.IncSinkFailure("kafka")
			log.WarnContext(ctx, "graph event publication failed", "digest", rep.Digest, "err", err)
		}
	}
}

func (r *Report) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.Durations[name] = d
	observability.ObservePhase(name, d.Seconds())
	return err
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, model.ErrInputReadFailed):
		return 66
	case errors.Is(err, model.ErrOutputWriteFailed):
		return 73
	default:
		return 1
	}
}
