package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ad3staker/internal/config"
	"ad3staker/internal/scenario"
	"ad3staker/internal/storage"
	"ad3staker/internal/storage/postgres"
)

func newSimulateCmd() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario against a simulated engine",
		RunE:  runSimulate,
	}

	addEngineFlags(simulateCmd, "./data/sim_events.jsonl")
	simulateCmd.Flags().String("in", "", "scenario operations JSONL")
	simulateCmd.Flags().String("results-out", "./data/sim_results.jsonl", "operation results JSONL")
	simulateCmd.Flags().Bool("strict", false, "stop at the first operation whose outcome differs from expect_error")
	simulateCmd.Flags().String("pg-dsn", "", "persist the snapshot and events to Postgres")
	simulateCmd.Flags().String("snapshot-name", "default", "snapshot name in Postgres")

	return simulateCmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	ops, err := scenario.ReadOperations(inputFile)
	inputFile.Close()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	s, err := newSimulation(ctx, cfg.Engine, cfg.EventsOut, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info("simulate start",
		zap.String("in", cfg.In),
		zap.Int("operations", len(ops)),
		zap.String("engine", s.engine.Address().Hex()),
		zap.Bool("strict", cfg.Strict),
	)

	executor := scenario.NewExecutor(s.env, s.engine, logger)
	results, runErr := executor.Run(ctx, ops, cfg.Strict)
	if runErr != nil && !errors.Is(runErr, scenario.ErrExpectation) {
		return runErr
	}

	if cfg.ResultsOut != "" {
		writer, err := storage.NewJSONLWriter(cfg.ResultsOut, false)
		if err != nil {
			return err
		}
		for _, result := range results {
			if err := writer.Write(result); err != nil {
				writer.Close()
				return err
			}
		}
		if err := writer.Close(); err != nil {
			return err
		}
	}

	if err := s.saveSnapshotFile(cfg.SnapshotFile); err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}
		if err := store.SaveSnapshot(ctx, cfg.SnapshotName, s.engine.Snapshot()); err != nil {
			return err
		}
		if err := store.InsertEvents(ctx, s.engine.Address().Hex(), s.recorder.Records()); err != nil {
			return err
		}
	}

	var failed int
	for i, result := range results {
		if !scenario.Matches(ops[i], result) {
			failed++
		}
	}
	logger.Info("simulate complete",
		zap.Int("applied", len(results)),
		zap.Int("unexpected", failed),
		zap.Int("events", len(s.recorder.Records())),
	)

	return runErr
}
