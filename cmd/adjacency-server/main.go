package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/region-adjacency/internal/app/pipeline"
	"github.com/mohammed-shakir/region-adjacency/internal/app/regions"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/graphstore"
	"github.com/mohammed-shakir/region-adjacency/internal/cache/redisstore"
	"github.com/mohammed-shakir/region-adjacency/internal/core/config"
	"github.com/mohammed-shakir/region-adjacency/internal/core/router"
	"github.com/mohammed-shakir/region-adjacency/internal/core/server"
	"github.com/mohammed-shakir/region-adjacency/internal/logger"
	"github.com/mohammed-shakir/region-adjacency/internal/metrics"
	"github.com/mohammed-shakir/region-adjacency/internal/publish/kafka"
)

var Version = "dev"

const pollInterval = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", "", "optional .env file loaded before reading the environment")
	input := flag.String("input", "", "GeoJSON input to compute at startup (overrides ADJ_INPUT)")
	flag.Parse()

	if *envFile != "" {
		config.LoadDotEnv(*envFile)
	} else {
		config.LoadDotEnv()
	}
	cfg := config.FromEnv()
	if *input != "" {
		cfg.Input = *input
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
		SampleN:   cfg.Log.SampleN,
		Component: "adjacency-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if cfg.Input == "" && !cfg.Redis.Enabled {
		appLog.Error("nothing to serve: set ADJ_INPUT or REDIS_ENABLED")
		return 2
	}

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting adjacency server",
		"addr", cfg.Addr,
		"version", Version,
		"input", cfg.Input,
		"redis", cfg.Redis.Enabled)

	var store *graphstore.Store
	if cfg.Redis.Enabled {
		rctx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		cli, err := redisstore.New(rctx, cfg.Redis.Addr,
			redisstore.WithPoolSize(cfg.Redis.PoolSize),
			redisstore.WithDialTimeout(cfg.Redis.DialTimeout),
			redisstore.WithReadTimeout(cfg.Redis.OpTimeout),
			redisstore.WithWriteTimeout(cfg.Redis.OpTimeout))
		cancel()
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.Redis.Addr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		store = graphstore.New(cli, cfg.Redis.TTL)
	}

	var events *kafka.Publisher
	if cfg.Kafka.Enabled && cfg.Input != "" {
		pub, err := kafka.New(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, appLog)
		if err != nil {
			appLog.Warn("kafka unavailable; no graph event will be sent", "err", err)
		} else {
			events = pub
			defer func() { _ = pub.Close() }()
		}
	}

	holder := &router.Holder{}
	go load(ctx, cfg, appLog, holder, store, events)
	if cfg.Kafka.Enabled && cfg.Input == "" {
		go follow(ctx, cfg, appLog, holder, store)
	}

	if p.SeparateListener(cfg.Addr) {
		go serveMetrics(ctx, p, appLog)
	}

	if err := server.Run(ctx, cfg, appLog, server.NewHandler(cfg, appLog, holder, p.Handler())); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// load fills holder either by computing cfg.Input or by following the latest
// graph published to Redis. The server stays not-ready until it succeeds.
func load(ctx context.Context, cfg config.Config, log *slog.Logger, holder *router.Holder, store *graphstore.Store, events *kafka.Publisher) {
	ctx = logger.WithRunID(ctx, "")
	if cfg.Input != "" {
		opts := pipeline.Options{Input: cfg.Input, Engine: cfg.Engine, Logger: log}
		if store != nil {
			opts.Store = store
		}
		if events != nil {
			opts.Events = events
		}
		rep, err := pipeline.Run(ctx, opts)
		if err != nil {
			log.ErrorContext(ctx, "startup computation failed", "input", cfg.Input, "err", err)
			return
		}
		holder.Set(regions.NewMemory(rep.Digest, rep.Graph, rep.Ingest))
		log.InfoContext(ctx, "graph loaded", "digest", rep.Digest, "regions", rep.Regions, "pairs", rep.Pairs)
		return
	}

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if _, ok := holder.Get(); ok {
			return
		}
		src, err := regions.NewStore(ctx, store, "", cfg.LRUSize, cfg.Redis.OpTimeout)
		switch {
		case err == nil:
			// the follower may already have bound a newer graph
			if holder.SetIfEmpty(src) {
				log.InfoContext(ctx, "serving published graph", "digest", src.Digest())
			}
			return
		case errors.Is(err, regions.ErrNoPublishedGraph):
			log.DebugContext(ctx, "no published graph yet")
		default:
			log.WarnContext(ctx, "published graph lookup failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// follow swaps in each graph announced on the event topic once it can be
// read back from Redis.
func follow(ctx context.Context, cfg config.Config, log *slog.Logger, holder *router.Holder, store *graphstore.Store) {
	f := kafka.NewFollower(kafka.FollowerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, log, func(ctx context.Context, ev kafka.GraphEvent) error {
		src, err := regions.NewStore(ctx, store, ev.Digest, cfg.LRUSize, cfg.Redis.OpTimeout)
		if err != nil {
			return err
		}
		holder.Set(src)
		return nil
	})
	if err := f.Start(ctx); err != nil {
		log.Warn("graph event follower stopped", "err", err)
	}
}

func serveMetrics(ctx context.Context, p *metrics.Provider, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(p.Path(), p.Handler())
	srv := &http.Server{
		Addr:              p.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown error", "err", err)
		}
	}()
	log.Info("metrics listening", "addr", p.Addr(), "path", p.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server exited", "err", err)
	}
}
