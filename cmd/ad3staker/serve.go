package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ad3staker/internal/api"
	"ad3staker/internal/config"
	"ad3staker/internal/scenario"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a simulated engine over HTTP",
		RunE:  runServe,
	}

	addEngineFlags(serveCmd, "")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("seed", "", "scenario operations JSONL applied before serving")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")

	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	s, err := newSimulation(ctx, cfg.Engine, cfg.EventsOut, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	controller := api.NewController(s.engine, s.env, logger)

	if cfg.Seed != "" {
		seedFile, err := os.Open(cfg.Seed)
		if err != nil {
			return fmt.Errorf("open seed: %w", err)
		}
		ops, err := scenario.ReadOperations(seedFile)
		seedFile.Close()
		if err != nil {
			return err
		}
		if _, err := controller.Executor.Run(ctx, ops, true); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		logger.Info("seed applied", zap.Int("operations", len(ops)))
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           controller.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("engine", s.engine.Address().Hex()),
		zap.Uint64("start_time", cfg.Engine.StartTime),
	)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}

	if err := s.saveSnapshotFile(cfg.SnapshotFile); err != nil {
		return err
	}
	return nil
}
