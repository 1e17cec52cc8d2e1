// Package kafka publishes a GraphEvent after each successful run and lets a
// server follow those events to swap in newly published graphs.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

type Publisher struct {
	topic string
	prod  sarama.SyncProducer
	log   *slog.Logger
}

func saramaConfig(timeout time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.ClientID = "region-adjacency"
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	if timeout > 0 {
		cfg.Net.DialTimeout = timeout
		cfg.Producer.Timeout = timeout
	}
	return cfg
}

func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("kafka: create sync producer: %w", err)
	}
	return NewWithProducer(prod, cfg.Topic, log)
}

// NewWithProducer wraps an existing producer; the Publisher owns it from now on.
func NewWithProducer(prod sarama.SyncProducer, topic string, log *slog.Logger) (*Publisher, error) {
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{topic: topic, prod: prod, log: log}, nil
}

// Publish sends ev keyed by its digest so every event about one input lands on
// the same partition.
func (p *Publisher) Publish(ctx context.Context, ev GraphEvent) error {
	if ev.Version == 0 {
		ev.Version = EventVersion
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", ev.Digest, err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	partition, offset, err := p.prod.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Digest),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("kafka: send to %s: %w", p.topic, err)
	}
	p.log.InfoContext(ctx, "graph event published",
		"topic", p.topic, "partition", partition, "offset", offset, "digest", ev.Digest)
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafka: close producer: %w", err)
	}
	return nil
}
