package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ad3staker/internal/publish"
)

// EngineConfig identifies the simulated engine and its environment.
type EngineConfig struct {
	Address    string
	Governance string
	StartTime  uint64
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Engine       EngineConfig
	In           string
	EventsOut    string
	ResultsOut   string
	SnapshotFile string
	SnapshotName string
	PGDSN        string
	Strict       bool
	Redis        publish.Options
	LogLevel     string
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Engine          EngineConfig
	Listen          string
	Seed            string
	EventsOut       string
	SnapshotFile    string
	ShutdownTimeout time.Duration
	Redis           publish.Options
	LogLevel        string
}

func engineDefaults() map[string]interface{} {
	return map[string]interface{}{
		"engine-address": "0x00000000000000000000000000000000000ad3ad",
		"governance":     "0x000000000000000000000000000000000000900d",
		"start-time":     uint64(1_700_000_000),
		"redis-stream":   "ad3staker:events",
		"redis-maxlen":   int64(publish.DefaultStreamMaxLen),
		"redis-timeout":  2 * time.Second,
		"log-level":      "info",
	}
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	defaults := engineDefaults()
	defaults["events-out"] = "./data/sim_events.jsonl"
	defaults["results-out"] = "./data/sim_results.jsonl"
	defaults["snapshot-name"] = "default"
	defaults["strict"] = false

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Engine:       engineConfig(v),
		In:           v.GetString("in"),
		EventsOut:    v.GetString("events-out"),
		ResultsOut:   v.GetString("results-out"),
		SnapshotFile: v.GetString("snapshot-file"),
		SnapshotName: v.GetString("snapshot-name"),
		PGDSN:        v.GetString("pg-dsn"),
		Strict:       v.GetBool("strict"),
		Redis:        redisOptions(v),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := engineDefaults()
	defaults["listen"] = ":8080"
	defaults["shutdown-timeout"] = 10 * time.Second

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Engine:          engineConfig(v),
		Listen:          v.GetString("listen"),
		Seed:            v.GetString("seed"),
		EventsOut:       v.GetString("events-out"),
		SnapshotFile:    v.GetString("snapshot-file"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Redis:           redisOptions(v),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

func engineConfig(v *viper.Viper) EngineConfig {
	return EngineConfig{
		Address:    v.GetString("engine-address"),
		Governance: v.GetString("governance"),
		StartTime:  v.GetUint64("start-time"),
	}
}

// redisOptions returns options with an empty Addr when publishing is disabled.
func redisOptions(v *viper.Viper) publish.Options {
	return publish.Options{
		Addr:     v.GetString("redis-addr"),
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
		Stream:   v.GetString("redis-stream"),
		MaxLen:   v.GetInt64("redis-maxlen"),
		Timeout:  v.GetDuration("redis-timeout"),
	}
}
