package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/region-adjacency/internal/core/observability"
)

type FollowerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

func (c FollowerConfig) withDefaults() FollowerConfig {
	if c.GroupID == "" {
		c.GroupID = "adjacency-server"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	return c
}

// ApplyFunc switches the caller over to the graph named by ev.
type ApplyFunc func(ctx context.Context, ev GraphEvent) error

// Follower consumes graph events and applies each new graph once, in event
// time order.
type Follower struct {
	cfg    FollowerConfig
	log    *slog.Logger
	apply  ApplyFunc
	seen   *digestDedupe
	newest atomic.Int64
}

func NewFollower(cfg FollowerConfig, log *slog.Logger, apply ApplyFunc) *Follower {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Follower{
		cfg:   cfg,
		log:   log,
		apply: apply,
		seen:  newDigestDedupe(cfg.DedupeSize),
	}
}

// Start blocks consuming cfg.Topic until ctx is done.
func (f *Follower) Start(ctx context.Context) error {
	if f.apply == nil {
		return errors.New("kafka: follower has no apply func")
	}
	if len(f.cfg.Brokers) == 0 || f.cfg.Topic == "" {
		return errors.New("kafka: follower needs brokers and a topic")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.ClientID = "region-adjacency"
	cfg.Consumer.Group.Session.Timeout = f.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = f.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = f.cfg.RebalanceTimeout
	if f.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(f.cfg.Brokers, f.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("kafka: create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: f.ProcessOne}
	f.log.Info("graph event follower starting",
		"brokers", f.cfg.Brokers, "topic", f.cfg.Topic, "group", f.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{f.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			f.log.Error("graph event consume failed", "topic", f.cfg.Topic, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			f.log.Info("graph event follower shutting down")
			return nil
		}
	}
}

// ProcessOne applies one message. Undecodable events are logged and skipped;
// only a failed apply is returned so the message is retried.
func (f *Follower) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ev, err := DecodeEvent(msg.Value)
	if err != nil {
		obs.IncGraphEvent("invalid")
		f.log.WarnContext(ctx, "skipping graph event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	ts := ev.TS.UnixNano()
	if ts < f.newest.Load() {
		obs.IncGraphEvent("stale")
		f.log.DebugContext(ctx, "stale graph event", "digest", ev.Digest, "ts", ev.TS)
		return nil
	}
	if !f.seen.shouldApply(ev.Digest, ts) {
		obs.IncGraphEvent("duplicate")
		f.log.DebugContext(ctx, "duplicate graph event", "digest", ev.Digest)
		return nil
	}

	if err := f.apply(ctx, ev); err != nil {
		f.seen.forget(ev.Digest)
		obs.IncGraphEvent("error")
		return fmt.Errorf("apply graph %s: %w", ev.Digest, err)
	}
	for {
		cur := f.newest.Load()
		if ts <= cur || f.newest.CompareAndSwap(cur, ts) {
			break
		}
	}
	obs.IncGraphEvent("applied")
	f.log.InfoContext(ctx, "graph event applied",
		"digest", ev.Digest, "regions", ev.Regions, "pairs", ev.Pairs, "run_id", ev.RunID)
	return nil
}
