package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ad3staker/internal/model"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for snapshots, events and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.StakerWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO staker_window_metrics (
				chain_id, contract, window_size_seconds, window_start_ts, window_end_ts,
				incentives_created, incentives_ended, deposits, stakes, unstakes, withdrawals, claims,
				reward_funded, reward_refunded, reward_claimed, liquidity_staked,
				first_block, last_block, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (chain_id, contract, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				incentives_created = EXCLUDED.incentives_created,
				incentives_ended = EXCLUDED.incentives_ended,
				deposits = EXCLUDED.deposits,
				stakes = EXCLUDED.stakes,
				unstakes = EXCLUDED.unstakes,
				withdrawals = EXCLUDED.withdrawals,
				claims = EXCLUDED.claims,
				reward_funded = EXCLUDED.reward_funded,
				reward_refunded = EXCLUDED.reward_refunded,
				reward_claimed = EXCLUDED.reward_claimed,
				liquidity_staked = EXCLUDED.liquidity_staked,
				first_block = LEAST(staker_window_metrics.first_block, EXCLUDED.first_block),
				last_block = GREATEST(staker_window_metrics.last_block, EXCLUDED.last_block),
				updated_at = now()
		`,
			int64(m.ChainID),
			m.Contract,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.IncentivesCreated),
			int64(m.IncentivesEnded),
			int64(m.Deposits),
			int64(m.Stakes),
			int64(m.Unstakes),
			int64(m.Withdrawals),
			int64(m.Claims),
			m.RewardFunded,
			m.RewardRefunded,
			m.RewardClaimed,
			m.LiquidityStaked,
			int64(m.FirstBlock),
			int64(m.LastBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvents stores engine events, ignoring sequences already present.
func (s *Store) InsertEvents(ctx context.Context, engine string, records []model.StakingEvent) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		attributes, err := json.Marshal(record.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		batch.Queue(`
			INSERT INTO staking_events (engine, sequence, event_type, event_ts, attributes, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (engine, sequence) DO NOTHING
		`,
			engine,
			int64(record.Sequence),
			record.Type,
			int64(record.Timestamp),
			attributes,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot upserts the ledger snapshot stored under name.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.LedgerSnapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_snapshots (name, engine, taken_at, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET engine = EXCLUDED.engine, taken_at = EXCLUDED.taken_at, snapshot = EXCLUDED.snapshot, updated_at = now()
	`, name, snap.Engine, int64(snap.TakenAt), data)
	return err
}

// LoadSnapshot returns the snapshot stored under name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.LedgerSnapshot, bool, error) {
	if name == "" {
		return model.LedgerSnapshot{}, false, fmt.Errorf("snapshot name required")
	}
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM ledger_snapshots WHERE name=$1`, name)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, err
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
