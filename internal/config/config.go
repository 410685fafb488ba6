package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Graph backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the global ~/.huddle/config.toml.
type Config struct {
	DefaultProfile string            `toml:"default_profile"`
	Alias          string            `toml:"alias"`
	Graph          GraphConfig       `toml:"graph"`
	Replication    ReplicationConfig `toml:"replication"`
	Sweep          SweepConfig       `toml:"sweep"`
	Metrics        MetricsConfig     `toml:"metrics"`
}

// GraphConfig selects the shared graph store.
type GraphConfig struct {
	Backend  string `toml:"backend"`
	RedisURL string `toml:"redis_url"`
	Prefix   string `toml:"prefix"`
}

// ReplicationConfig tunes the replication engine. Durations are milliseconds.
type ReplicationConfig struct {
	PageSize      int `toml:"page_size"`
	SettlePollMS  int `toml:"settle_poll_ms"`
	SettleQuietMS int `toml:"settle_quiet_ms"`
	AckTimeoutMS  int `toml:"ack_timeout_ms"`
	NameTimeoutMS int `toml:"name_timeout_ms"`
	// PublishRate caps background publishes per second; 0 disables the cap.
	PublishRate  float64 `toml:"publish_rate"`
	PublishBurst int     `toml:"publish_burst"`
}

type SweepConfig struct {
	Cron string `toml:"cron"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Graph: GraphConfig{
			Backend:  BackendRedis,
			RedisURL: "redis://localhost:6379/0",
			Prefix:   "huddle:",
		},
		Replication: ReplicationConfig{
			PageSize:      20,
			SettlePollMS:  500,
			SettleQuietMS: 2000,
			AckTimeoutMS:  10000,
			NameTimeoutMS: 3000,
			PublishRate:   50,
			PublishBurst:  10,
		},
		Sweep: SweepConfig{Cron: "*/10 * * * *"},
	}
}

// Load reads config from the given path over the defaults. Returns the
// defaults and an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as empty.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment overrides.
const (
	EnvAlias        = "HUDDLE_ALIAS"
	EnvRedisURL     = "HUDDLE_REDIS_URL"
	EnvGraphBackend = "HUDDLE_GRAPH_BACKEND"
	EnvMetricsAddr  = "HUDDLE_METRICS_ADDR"
)

// LoadEnv loads envPath into the process environment, if it exists, without
// replacing variables that are already set.
func LoadEnv(envPath string) error {
	err := godotenv.Load(envPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides file values with HUDDLE_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAlias); v != "" {
		c.Alias = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Graph.RedisURL = v
	}
	if v := os.Getenv(EnvGraphBackend); v != "" {
		c.Graph.Backend = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
}
