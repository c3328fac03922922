package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ad3staker/internal/chain"
	"ad3staker/internal/config"
	"ad3staker/internal/model"
	"ad3staker/internal/retry"
	"ad3staker/internal/stakemanager"
	"ad3staker/internal/staker"
)

func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String("reward-token", "", "incentive reward token")
	cmd.Flags().String("pool", "", "incentive pool")
	cmd.Flags().Uint64("start-time", 0, "incentive start time")
	cmd.Flags().Uint64("end-time", 0, "incentive end time")
}

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Recompute a deployed stake's reward and compare it with the contract",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("rpc", "", "RPC URL")
	inspectCmd.Flags().String("stake-manager", "", "stake manager address")
	inspectCmd.Flags().String("factory", "", "pool factory address, read from the stake manager when empty")
	inspectCmd.Flags().String("position-manager", "", "position manager address, read from the stake manager when empty")
	inspectCmd.Flags().Uint64("block", 0, "block number to read at, 0 means latest")
	addKeyFlags(inspectCmd)
	inspectCmd.Flags().Uint64("token-id", 0, "position token id")
	inspectCmd.Flags().Int("max-retries", 3, "maximum retry attempts per call")
	inspectCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return inspectCmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	stakeManager, err := parseOptionalAddress("stake manager", cfg.StakeManager)
	if err != nil {
		return err
	}
	factory, err := parseOptionalAddress("factory", cfg.Factory)
	if err != nil {
		return err
	}
	positionManager, err := parseOptionalAddress("position manager", cfg.PositionManager)
	if err != nil {
		return err
	}
	key, err := staker.KeyFromRecord(model.IncentiveKeyRecord{
		RewardToken: cfg.RewardToken,
		Pool:        cfg.Pool,
		StartTime:   cfg.StartTime,
		EndTime:     cfg.EndTime,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	caller := stakemanager.WithRetry(chainClient, retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff}, logger)
	reader, err := stakemanager.NewReader(ctx, caller, stakemanager.ReaderConfig{
		StakeManager:    stakeManager,
		Factory:         factory,
		PositionManager: positionManager,
		BlockNumber:     cfg.BlockNumber,
		Blocks:          chainClient,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	logger.Info("inspect start",
		zap.String("stake_manager", stakeManager.Hex()),
		zap.String("incentive_id", key.ID().Hex()),
		zap.Uint64("token_id", cfg.TokenID),
		zap.Uint64("block", cfg.BlockNumber),
	)

	report, err := reader.Inspect(ctx, key, cfg.TokenID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func newIncentiveIDCmd() *cobra.Command {
	idCmd := &cobra.Command{
		Use:   "incentive-id",
		Short: "Print the incentive id of a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var record model.IncentiveKeyRecord
			record.RewardToken, _ = cmd.Flags().GetString("reward-token")
			record.Pool, _ = cmd.Flags().GetString("pool")
			record.StartTime, _ = cmd.Flags().GetUint64("start-time")
			record.EndTime, _ = cmd.Flags().GetUint64("end-time")

			key, err := staker.KeyFromRecord(record)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key.ID().Hex())
			return err
		},
	}

	addKeyFlags(idCmd)
	return idCmd
}

func parseOptionalAddress(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, value)
	}
	return common.HexToAddress(value), nil
}
