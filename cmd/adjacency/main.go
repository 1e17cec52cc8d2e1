package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/region-adjacency/internal/app/pipeline"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/graphstore"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/redisstore"
	"github.com/mohammed-shakir/region-adjacency/internal/core/config"
	"github.com/mohammed-shakir/region-adjacency/internal/core/model"
	"github.com/mohammed-shakir/region-adjacency/internal/logger"
	"github.com/mohammed-shakir/region-adjacency/internal/publish/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("adjacency", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: adjacency [flags] <input.geojson> <output>\n\n")
		fs.PrintDefaults()
	}
	envFile := fs.String("env", "", "optional .env file loaded before reading the environment")
	workers := fs.Int("workers", -1, "worker pool size (0 = GOMAXPROCS; default from ADJ_WORKERS)")
	delimiter := fs.String("delimiter", "", "field delimiter (default from ADJ_DELIMITER)")
	partition := fs.String("partition", "", "work partitioning: chunk | h3 (default from ADJ_PARTITION)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}

	if *envFile != "" {
		config.LoadDotEnv(*envFile)
	} else {
		config.LoadDotEnv()
	}
	cfg := config.FromEnv()
	if *workers >= 0 {
		cfg.Engine.Workers = *workers
	}
	if *delimiter != "" {
		cfg.Engine.Delimiter = *delimiter
	}
	if p := strings.TrimSpace(*partition); p != "" {
		cfg.Engine.Partition = strings.ToLower(p)
	}

	// stdout is never used; diagnostics go to stderr only
	zl := logger.Build(logger.Config{
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
		SampleN:   cfg.Log.SampleN,
		Component: "adjacency",
	}, stderr)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRunID(ctx, "")

	opts := pipeline.Options{
		Input:  fs.Arg(0),
		Output: fs.Arg(1),
		Engine: cfg.Engine,
		Logger: appLog,
	}
	closers := wireSinks(ctx, cfg, appLog, &opts)
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	appLog.InfoContext(ctx, "starting adjacency run",
		"version", Version,
		"input", opts.Input,
		"output", opts.Output,
		"workers", cfg.Engine.Workers,
		"partition", cfg.Engine.Partition)

	rep, err := pipeline.Run(ctx, opts)
	if err != nil {
		appLog.ErrorContext(ctx, "adjacency run failed", "kind", model.Kind(err), "err", err)
		fmt.Fprintf(stderr, "adjacency: %s: %v\n", model.Kind(err), err)
		return pipeline.ExitCode(err)
	}
	appLog.InfoContext(ctx, "adjacency run complete",
		"digest", rep.Digest,
		"features", rep.Features,
		"regions", rep.Regions,
		"points", rep.Points,
		"pairs", rep.Pairs,
		"shared_points", rep.Stats.SharedPoints,
		"ingest", rep.Durations[pipeline.PhaseIngest],
		"compute", rep.Durations[pipeline.PhaseCompute],
		"write", rep.Durations[pipeline.PhaseWrite])
	return 0
}

// wireSinks attaches the optional Redis and Kafka publication. A sink that
// cannot be reached is skipped; the run itself does not depend on it.
func wireSinks(ctx context.Context, cfg config.Config, log *slog.Logger, opts *pipeline.Options) []func() error {
	var closers []func() error
	if cfg.Redis.Enabled {
		// one pipelined MSET carries the whole graph
		bulk := cfg.Redis.OpTimeout * 8
		rctx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		cli, err := redisstore.New(rctx, cfg.Redis.Addr,
			redisstore.WithPoolSize(cfg.Redis.PoolSize),
			redisstore.WithDialTimeout(cfg.Redis.DialTimeout),
			redisstore.WithReadTimeout(bulk),
			redisstore.WithWriteTimeout(bulk))
		cancel()
		if err != nil {
			log.WarnContext(ctx, "redis unavailable; graph will not be published", "addr", cfg.Redis.Addr, "err", err)
		} else {
			opts.Store = graphstore.New(cli, cfg.Redis.TTL)
			closers = append(closers, cli.Close)
		}
	}
	if cfg.Kafka.Enabled {
		pub, err := kafka.New(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		if err != nil {
			log.WarnContext(ctx, "kafka unavailable; no graph event will be sent", "brokers", cfg.Kafka.Brokers, "err", err)
		} else {
			opts.Events = pub
			closers = append(closers, pub.Close)
		}
	}
	return closers
}
