// Package orchestrator drives a simulation replicate through time steps:
// for each substep it shards the replicate's entities across a worker
// pool, runs handler resolution and the expression machine against each
// locked entity, then freezes at the substep boundary so the next substep
// reads this one's writes as prior values.
package orchestrator

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config carries the orchestrator's tunables. LoadConfig fills any key
// that the file, environment and flags leave unset from DefaultConfig;
// Validate rejects a zero Workers or LockTimeout.
type Config struct {
	// Steps is the number of time steps to simulate.
	Steps int `mapstructure:"steps"`
	// Workers bounds the goroutines processing patch shards per substep.
	Workers int `mapstructure:"workers"`
	// LockTimeout bounds each entity lock acquisition before the attempt
	// surfaces contention.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// CacheShards is the external resource cache's shard count.
	CacheShards int `mapstructure:"cache_shards"`
	// Strict halts the replicate on the first handler error instead of
	// recording it and moving to the next attribute.
	Strict bool `mapstructure:"strict"`
	// Verbose logs every handler execution with timing.
	Verbose bool `mapstructure:"verbose"`
	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address from the CLI.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// SnapshotDir, when non-empty, exports end-of-step snapshots there.
	SnapshotDir string `mapstructure:"snapshot_dir"`
	// SnapshotFormat selects the exporter: "json" or "yaml".
	SnapshotFormat string `mapstructure:"snapshot_format"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Steps:          10,
		Workers:        runtime.NumCPU(),
		LockTimeout:    5 * time.Second,
		CacheShards:    16,
		SnapshotFormat: "json",
	}
}

// LoadConfig reads configuration from an optional YAML file, overlaid by
// JOSH_-prefixed environment variables, overlaid by any flags the caller
// already bound to v. Passing a nil viper builds a fresh one.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	defaults := DefaultConfig()
	v.SetDefault("steps", defaults.Steps)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("lock_timeout", defaults.LockTimeout)
	v.SetDefault("cache_shards", defaults.CacheShards)
	v.SetDefault("strict", defaults.Strict)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("snapshot_format", defaults.SnapshotFormat)

	v.SetEnvPrefix("JOSH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the runner cannot honor.
func (c Config) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("steps must be >= 0, have %d", c.Steps)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, have %d", c.Workers)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, have %s", c.LockTimeout)
	}
	switch c.SnapshotFormat {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("snapshot_format must be json or yaml, have %q", c.SnapshotFormat)
	}
	return nil
}
