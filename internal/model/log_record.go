package model

import "fmt"

// LogEvent is a decoded contract log. It is not mutated after retrieval.
type LogEvent struct {
	Name        string `json:"name"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Args        Args   `json:"args"`
	DecodeErr   string `json:"decode_error,omitempty"`
}

// ID identifies the log across overlapping queries.
func (e LogEvent) ID() string {
	return fmt.Sprintf("%d:%s:%d", e.BlockNumber, e.TxHash, e.LogIndex)
}
