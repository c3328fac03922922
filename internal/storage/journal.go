package storage

import (
	"go.uber.org/zap"

	"ad3staker/internal/events"
)

// EventJournal appends engine events to a JSONL file.
type EventJournal struct {
	writer *JSONLWriter
	logger *zap.Logger
}

// NewEventJournal opens a journal at path.
func NewEventJournal(path string, appendMode bool, logger *zap.Logger) (*EventJournal, error) {
	writer, err := NewJSONLWriter(path, appendMode)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventJournal{writer: writer, logger: logger}, nil
}

// Emit implements events.Emitter. Write failures are logged, never returned to the engine.
func (j *EventJournal) Emit(event events.Event) {
	record := events.ToRecord(event)
	if err := j.writer.Write(record); err != nil {
		j.logger.Warn("journal write failed", zap.String("type", record.Type), zap.Uint64("sequence", record.Sequence), zap.Error(err))
	}
}

// Close flushes and closes the journal.
func (j *EventJournal) Close() error {
	return j.writer.Close()
}
