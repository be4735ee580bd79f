// Package config loads modelsync configuration: defaults, then a YAML file,
// then MODELSYNC_* environment overrides, then validation.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("modelsync.yaml").
//	    Load()
package config

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/modelsync/criteria"
	"xdao.co/modelsync/storage/registry"
)

type Config struct {
	Cache    CacheConfig    `yaml:"cache" env:"CACHE"`
	State    StateConfig    `yaml:"state" env:"STATE"`
	Sync     SyncConfig     `yaml:"sync" env:"SYNC"`
	Eviction EvictionConfig `yaml:"eviction" env:"EVICTION"`
	Oracle   OracleConfig   `yaml:"oracle" env:"ORACLE"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Metrics  MetricsConfig  `yaml:"metrics" env:"METRICS"`

	// Remote lists the artifact registries; it is file-only.
	Remote registry.Config `yaml:"remote"`

	// Criteria overrides the built-in eligibility table when non-empty.
	Criteria []criteria.Tier `yaml:"criteria"`
}

type CacheConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

type StateConfig struct {
	// Path is the tracker snapshot file.
	Path string `yaml:"path" env:"PATH"`
}

type SyncConfig struct {
	Interval    time.Duration `yaml:"interval" env:"INTERVAL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
	// Publishers pins the population. Empty means every publisher the
	// oracle lists.
	Publishers []string `yaml:"publishers" env:"PUBLISHERS"`
}

type EvictionConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// Grace protects entries written within this window of a sweep.
	Grace time.Duration `yaml:"grace" env:"GRACE"`
}

type OracleConfig struct {
	// Backend is one of "memory", "sqlite", "redis".
	Backend string      `yaml:"backend" env:"BACKEND"`
	Path    string      `yaml:"path" env:"PATH"`
	Redis   RedisConfig `yaml:"redis" env:"REDIS"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{Dir: "data/cache"},
		State: StateConfig{Path: "data/tracker.json"},
		Sync: SyncConfig{
			Interval:    5 * time.Minute,
			Timeout:     2 * time.Minute,
			Concurrency: 4,
		},
		Eviction: EvictionConfig{
			Interval: time.Hour,
			Grace:    30 * time.Minute,
		},
		Oracle: OracleConfig{
			Backend: "sqlite",
			Path:    "data/ledger.db",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9108",
			Namespace: "modelsync",
		},
		Remote: registry.Config{
			Backends: []registry.BackendConfig{
				{Name: "dir", Config: map[string]string{"dir": "data/registry"}},
			},
		},
	}
}

// CriteriaTable returns the configured eligibility table, or the built-in
// one when none is configured.
func (c *Config) CriteriaTable() (criteria.Table, error) {
	if len(c.Criteria) == 0 {
		return criteria.Default(), nil
	}
	return criteria.NewTable(c.Criteria...)
}

func (c *Config) Validate() error {
	var errs []string

	if c.Cache.Dir == "" {
		errs = append(errs, "cache.dir is required")
	}
	if c.State.Path == "" {
		errs = append(errs, "state.path is required")
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, "sync.interval must be positive")
	}
	if c.Sync.Timeout < 0 {
		errs = append(errs, "sync.timeout must not be negative")
	}
	if c.Sync.Concurrency <= 0 {
		errs = append(errs, "sync.concurrency must be positive")
	}
	if c.Eviction.Interval <= 0 {
		errs = append(errs, "eviction.interval must be positive")
	}
	if c.Eviction.Grace < 0 {
		errs = append(errs, "eviction.grace must not be negative")
	}
	switch c.Oracle.Backend {
	case "memory":
	case "sqlite":
		if c.Oracle.Path == "" {
			errs = append(errs, "oracle.path is required for sqlite")
		}
	case "redis":
		if c.Oracle.Redis.Addr == "" {
			errs = append(errs, "oracle.redis.addr is required for redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown oracle.backend %q", c.Oracle.Backend))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}
	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.CriteriaTable(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
