package config

import (
	"time"

	"github.com/spf13/pflag"
)

// InspectConfig holds configuration for the inspect command.
type InspectConfig struct {
	RPCURL          string
	StakeManager    string
	Factory         string
	PositionManager string
	BlockNumber     uint64
	RewardToken     string
	Pool            string
	StartTime       uint64
	EndTime         uint64
	TokenID         uint64
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   3,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return InspectConfig{}, err
	}

	cfg := InspectConfig{
		RPCURL:          v.GetString("rpc"),
		StakeManager:    v.GetString("stake-manager"),
		Factory:         v.GetString("factory"),
		PositionManager: v.GetString("position-manager"),
		BlockNumber:     v.GetUint64("block"),
		RewardToken:     v.GetString("reward-token"),
		Pool:            v.GetString("pool"),
		StartTime:       v.GetUint64("start-time"),
		EndTime:         v.GetUint64("end-time"),
		TokenID:         v.GetUint64("token-id"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
