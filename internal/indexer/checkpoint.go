package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint records how far the indexer got for one chain and stake manager set.
type Checkpoint struct {
	ChainID            uint64   `json:"chain_id,omitempty"`
	Contracts          []string `json:"contracts,omitempty"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
	UpdatedAt          string   `json:"updated_at"`
}

// Matches reports whether cp was written for chainID and contracts. Checkpoints written without
// that information match anything.
func (cp Checkpoint) Matches(chainID uint64, contracts []common.Address) error {
	if cp.ChainID != 0 && cp.ChainID != chainID {
		return fmt.Errorf("checkpoint belongs to chain %d, connected to %d", cp.ChainID, chainID)
	}
	if len(cp.Contracts) == 0 {
		return nil
	}
	want := contractSet(contracts)
	if strings.Join(cp.Contracts, ",") != strings.Join(want, ",") {
		return fmt.Errorf("checkpoint covers contracts %v, configured %v", cp.Contracts, want)
	}
	return nil
}

// CheckpointStore persists checkpoints to disk. A disabled store never loads nor saves.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return cp, true, nil
}

// Save records lastProcessed for chainID and contracts, replacing the file atomically.
func (c *CheckpointStore) Save(chainID uint64, contracts []common.Address, lastProcessed uint64) error {
	if !c.enabled {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(Checkpoint{
		ChainID:            chainID,
		Contracts:          contractSet(contracts),
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

// contractSet returns the sorted, de-duplicated lower-case hex form of contracts.
func contractSet(contracts []common.Address) []string {
	seen := make(map[string]struct{}, len(contracts))
	out := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		hex := strings.ToLower(contract.Hex())
		if _, ok := seen[hex]; ok {
			continue
		}
		seen[hex] = struct{}{}
		out = append(out, hex)
	}
	sort.Strings(out)
	return out
}
