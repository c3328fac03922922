package model

// DecodeError records a log the decoder could not turn into a typed event. Line, the 1-based
// position among non-blank input lines, is set for lines that are not valid log records.
type DecodeError struct {
	Line        int    `json:"line,omitempty"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Contract    string `json:"contract,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Error       string `json:"error"`
}
