package storage

import "ad3staker/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// SnapshotStore persists engine ledger snapshots.
type SnapshotStore interface {
	SaveSnapshot(snap model.LedgerSnapshot) error
	LoadSnapshot() (model.LedgerSnapshot, bool, error)
}
