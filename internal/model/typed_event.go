package model

import (
	"encoding/json"
	"fmt"
)

// TypedEvent is a decoded stake manager event as written by the decoder.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Contract    string      `json:"contract"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// TypedEventRecord is a TypedEvent read back from JSONL with the payload left undecoded.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Contract    string          `json:"contract"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodeInto unmarshals the event payload into v.
func (r TypedEventRecord) DecodeInto(v interface{}) error {
	if len(r.Decoded) == 0 {
		return fmt.Errorf("%s at block %d has no payload", r.EventName, r.BlockNumber)
	}
	if err := json.Unmarshal(r.Decoded, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return nil
}

// RawLogRef keeps the raw topic0 and data of the source log.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
