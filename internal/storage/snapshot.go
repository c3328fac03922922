package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"ad3staker/internal/model"
)

// SnapshotFile stores a ledger snapshot as a JSON document.
type SnapshotFile struct {
	path string
}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// SaveSnapshot writes snap atomically through a temporary file.
func (s *SnapshotFile) SaveSnapshot(snap model.LedgerSnapshot) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot; ok is false when no file exists yet.
func (s *SnapshotFile) LoadSnapshot() (model.LedgerSnapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
