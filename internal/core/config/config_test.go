package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "ADJ_WORKERS", "ADJ_DELIMITER", "ADJ_PARTITION", "ADJ_H3_RES", "KAFKA_BROKERS", "REDIS_TTL"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8091" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.Engine.Workers != 0 || cfg.Engine.Delimiter != "," || cfg.Engine.Partition != PartitionChunk {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Engine.ChunkSize != 4096 || cfg.Engine.H3Res != 5 {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Redis.TTL != 0 || cfg.Redis.OpTimeout != 250*time.Millisecond ||
		cfg.Redis.DialTimeout != 2*time.Second || cfg.Redis.PoolSize != 16 {
		t.Fatalf("redis=%+v", cfg.Redis)
	}
	if !slices.Equal(cfg.Kafka.Brokers, []string{"localhost:9092"}) || cfg.Kafka.Topic != "region-adjacency" || cfg.Kafka.GroupID != "adjacency-server" {
		t.Fatalf("kafka=%+v", cfg.Kafka)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADJ_WORKERS", "6")
	t.Setenv("ADJ_DELIMITER", "\t")
	t.Setenv("ADJ_PARTITION", " H3 ")
	t.Setenv("ADJ_H3_RES", "22")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("REDIS_TTL", "10m")
	t.Setenv("REDIS_POOL_SIZE", "4")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("LOG_CONSOLE", "1")

	cfg := FromEnv()
	if cfg.Engine.Workers != 6 || cfg.Engine.Delimiter != "\t" || cfg.Engine.Partition != PartitionH3 {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Engine.H3Res != 15 {
		t.Fatalf("h3 res=%d want clamped 15", cfg.Engine.H3Res)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != 10*time.Minute || cfg.Redis.PoolSize != 4 {
		t.Fatalf("redis=%+v", cfg.Redis)
	}
	if !slices.Equal(cfg.Kafka.Brokers, []string{"a:9092", "b:9092"}) {
		t.Fatalf("brokers=%v", cfg.Kafka.Brokers)
	}
	if !cfg.Log.Console {
		t.Fatalf("console logging not enabled")
	}
}

func TestFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("ADJ_WORKERS", "-3")
	t.Setenv("ADJ_CHUNK_SIZE", "lots")
	t.Setenv("ADJ_PARTITION", "quadtree")
	t.Setenv("REDIS_TTL", "forever")

	cfg := FromEnv()
	if cfg.Engine.Workers != 0 || cfg.Engine.ChunkSize != 4096 || cfg.Engine.Partition != PartitionChunk {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Redis.TTL != 0 {
		t.Fatalf("ttl=%v", cfg.Redis.TTL)
	}
}

func TestLoadDotEnv_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "test.env")
	if err := os.WriteFile(f, []byte("ADJ_TEST_FROM_FILE=file\nADJ_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ADJ_TEST_PRESET", "env")
	t.Setenv("ADJ_TEST_FROM_FILE", "")
	os.Unsetenv("ADJ_TEST_FROM_FILE")

	LoadDotEnv(f, filepath.Join(dir, "missing.env"))

	if got := os.Getenv("ADJ_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("from file=%q", got)
	}
	if got := os.Getenv("ADJ_TEST_PRESET"); got != "env" {
		t.Fatalf("preset=%q want env", got)
	}
}
