package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PartitionChunk = "chunk"
	PartitionH3    = "h3"
)

type LogCfg struct {
	Level   string
	Console bool
	SampleN int
}

type EngineCfg struct {
	Workers   int
	Delimiter string
	Partition string
	ChunkSize int
	H3Res     int
}

type RedisCfg struct {
	Enabled   bool
	Addr      string
	TTL         time.Duration
	OpTimeout   time.Duration
	DialTimeout time.Duration
	PoolSize    int
}

type KafkaCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr    string
	Input   string
	LRUSize int
	Log     LogCfg
	Engine  EngineCfg
	Redis   RedisCfg
	Kafka   KafkaCfg
	Metrics MetricsCfg
}

// LoadDotEnv loads the given .env files, or ./.env when none are named.
// Variables already set in the environment win; missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func FromEnv() Config {
	res := getint("ADJ_H3_RES", 5)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	partition := strings.ToLower(strings.TrimSpace(getenv("ADJ_PARTITION", PartitionChunk)))
	if partition != PartitionH3 {
		partition = PartitionChunk
	}

	return Config{
		Addr:    getenv("ADDR", ":8091"),
		Input:   getenv("ADJ_INPUT", ""),
		LRUSize: getint("LRU_SIZE", 4096),
		Log: LogCfg{
			Level:   getenv("LOG_LEVEL", "info"),
			Console: getbool("LOG_CONSOLE", false),
			SampleN: getint("LOG_SAMPLE_N", 0),
		},
		Engine: EngineCfg{
			Workers:   max(getint("ADJ_WORKERS", 0), 0),
			Delimiter: getenvRaw("ADJ_DELIMITER", ","),
			Partition: partition,
			ChunkSize: getint("ADJ_CHUNK_SIZE", 4096),
			H3Res:     res,
		},
		Redis: RedisCfg{
			Enabled:     getbool("REDIS_ENABLED", false),
			Addr:        getenv("REDIS_ADDR", "localhost:6379"),
			TTL:         getduration("REDIS_TTL", 0),
			OpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			DialTimeout: positive(getduration("REDIS_DIAL_TIMEOUT", 2*time.Second), 2*time.Second),
			PoolSize:    getint("REDIS_POOL_SIZE", 16),
		},
		Kafka: KafkaCfg{
			Enabled: getbool("KAFKA_ENABLED", false),
			Brokers: split(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "region-adjacency"),
			GroupID: getenv("KAFKA_GROUP_ID", "adjacency-server"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ":9091"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// whitespace delimiters such as a tab must survive
func getenvRaw(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
