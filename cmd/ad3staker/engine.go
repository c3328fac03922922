package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ad3staker/internal/config"
	"ad3staker/internal/events"
	"ad3staker/internal/publish"
	"ad3staker/internal/sim"
	"ad3staker/internal/staker"
	"ad3staker/internal/storage"
)

func addEngineFlags(cmd *cobra.Command, eventsOut string) {
	cmd.Flags().String("engine-address", "0x00000000000000000000000000000000000ad3ad", "custody address of the simulated engine")
	cmd.Flags().String("governance", "0x000000000000000000000000000000000000900d", "governance address")
	cmd.Flags().Uint64("start-time", 1_700_000_000, "initial simulated block timestamp")
	cmd.Flags().String("events-out", eventsOut, "engine event journal JSONL")
	cmd.Flags().String("snapshot-file", "", "ledger snapshot JSON path")
	cmd.Flags().String("redis-addr", "", "publish events to this Redis server")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("redis-stream", "ad3staker:events", "Redis stream key")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// simulation is a simulated environment, its engine and the event sinks attached to it.
type simulation struct {
	env      *sim.Environment
	engine   *staker.Engine
	recorder *events.Recorder
	closers  []func()
}

func newSimulation(ctx context.Context, cfg config.EngineConfig, eventsOut string, redisOpts publish.Options, logger *zap.Logger) (*simulation, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid engine address: %q", cfg.Address)
	}
	if !common.IsHexAddress(cfg.Governance) {
		return nil, fmt.Errorf("invalid governance address: %q", cfg.Governance)
	}

	s := &simulation{recorder: events.NewRecorder()}
	emitters := events.Fanout{s.recorder}

	if eventsOut != "" {
		journal, err := storage.NewEventJournal(eventsOut, false, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := journal.Close(); err != nil {
				logger.Warn("close journal", zap.Error(err))
			}
		})
		emitters = append(emitters, journal)
	}

	if redisOpts.Addr != "" {
		client, err := publish.Connect(ctx, redisOpts, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		publisher, err := publish.NewPublisher(client, redisOpts, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		emitters = append(emitters, publisher)
		logger.Info("publishing events", zap.String("stream", publisher.Stream()))
	}

	s.env = sim.NewEnvironment(cfg.StartTime)
	engine, err := s.env.NewEngine(common.HexToAddress(cfg.Address), common.HexToAddress(cfg.Governance), emitters, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Close releases the event sinks in reverse order.
func (s *simulation) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *simulation) saveSnapshotFile(path string) error {
	if path == "" {
		return nil
	}
	return storage.NewSnapshotFile(path).SaveSnapshot(s.engine.Snapshot())
}
