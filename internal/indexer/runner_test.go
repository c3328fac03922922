package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"ad3staker/internal/model"
	"ad3staker/internal/stakemanager"
)

type fakeLogClient struct {
	chainID     int64
	latest      uint64
	logs        []types.Log
	filterFails int
	ranges      []BlockRange
	topics      []common.Hash
}

func (f *fakeLogClient) GetChainID(context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeLogClient) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeLogClient) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func (f *fakeLogClient) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, topics []common.Hash) ([]types.Log, error) {
	if f.filterFails > 0 {
		f.filterFails--
		return nil, errors.New("rate limited")
	}
	f.ranges = append(f.ranges, BlockRange{From: from, To: to})
	f.topics = topics
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type memStorage struct {
	records []model.LogRecord
}

func (m *memStorage) PutLogBatch(logs []model.LogRecord) error {
	m.records = append(m.records, logs...)
	return nil
}

func testLog(block uint64, index uint) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{common.HexToHash("0x01")},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func TestRunnerIndexesBatchesAndCheckpoints(t *testing.T) {
	client := &fakeLogClient{
		chainID:     56,
		latest:      105,
		filterFails: 1,
		logs: []types.Log{
			testLog(100, 0),
			testLog(100, 0),
			testLog(103, 1),
			{BlockNumber: 104, Removed: true},
		},
	}
	sink := &memStorage{}
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	cfg := RunConfig{
		FromBlock:         100,
		Addresses:         []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")},
		BatchSize:         3,
		CheckpointPath:    checkpointPath,
		CheckpointEnabled: true,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
	}
	if err := NewRunner(cfg, client, sink, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sink.records))
	}
	if sink.records[1].Timestamp != 1_700_000_103 || sink.records[1].ChainID != 56 {
		t.Fatalf("record mismatch: %+v", sink.records[1])
	}
	if len(client.ranges) != 2 {
		t.Fatalf("expected 2 batches, got %+v", client.ranges)
	}

	defaults, err := stakemanager.EventTopics()
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(client.topics) != len(defaults) {
		t.Fatalf("expected default stake manager topics, got %d", len(client.topics))
	}

	cp, ok, err := NewCheckpointStore(checkpointPath, true).Load()
	if err != nil || !ok {
		t.Fatalf("load checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastProcessedBlock != 105 || cp.ChainID != 56 || len(cp.Contracts) != 1 {
		t.Fatalf("checkpoint mismatch: %+v", cp)
	}

	client.latest = 107
	client.ranges = nil
	if err := NewRunner(cfg, client, sink, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(client.ranges) != 1 || client.ranges[0].From != 106 {
		t.Fatalf("expected resume from 106, got %+v", client.ranges)
	}
}

func TestRunnerRejectsForeignCheckpoint(t *testing.T) {
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := NewCheckpointStore(checkpointPath, true).Save(1, nil, 10); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg := RunConfig{
		Addresses:         []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")},
		BatchSize:         10,
		CheckpointPath:    checkpointPath,
		CheckpointEnabled: true,
	}
	err := NewRunner(cfg, &fakeLogClient{chainID: 56, latest: 20}, &memStorage{}, nil).Run(context.Background())
	if err == nil {
		t.Fatalf("expected chain mismatch error")
	}
}

func TestRunnerRejectsCheckpointForOtherContracts(t *testing.T) {
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	other := []common.Address{common.HexToAddress("0x2222222222222222222222222222222222222222")}
	if err := NewCheckpointStore(checkpointPath, true).Save(56, other, 10); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg := RunConfig{
		Addresses:         []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")},
		BatchSize:         10,
		CheckpointPath:    checkpointPath,
		CheckpointEnabled: true,
	}
	err := NewRunner(cfg, &fakeLogClient{chainID: 56, latest: 20}, &memStorage{}, nil).Run(context.Background())
	if err == nil {
		t.Fatalf("expected contract mismatch error")
	}

	cfg.Addresses = append(cfg.Addresses, other[0], other[0])
	cp := Checkpoint{ChainID: 56, Contracts: contractSet(cfg.Addresses)}
	if err := cp.Matches(56, []common.Address{other[0], cfg.Addresses[0]}); err != nil {
		t.Fatalf("expected order-insensitive match: %v", err)
	}
}

func TestRunnerRequiresAddresses(t *testing.T) {
	err := NewRunner(RunConfig{BatchSize: 1}, &fakeLogClient{}, &memStorage{}, nil).Run(context.Background())
	if err == nil {
		t.Fatalf("expected missing address error")
	}
}

func TestParseTopic0(t *testing.T) {
	topics, err := ParseTopic0([]string{"", " 0x" + common.Bytes2Hex(make([]byte, 32)) + " "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(topics))
	}
	if _, err := ParseTopic0([]string{"0x01"}); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := ParseAddresses([]string{"not-an-address"}); err == nil {
		t.Fatalf("expected address error")
	}
}
