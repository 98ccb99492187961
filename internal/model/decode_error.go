package model

// DecodeError records a log that could not be decoded against its event ABI.
type DecodeError struct {
	Name        string `json:"name"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Error       string `json:"error"`
}

// NewDecodeError builds a DecodeError from an event that failed decoding.
func NewDecodeError(ev LogEvent) DecodeError {
	return DecodeError{
		Name:        ev.Name,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Address:     ev.Address,
		Error:       ev.DecodeErr,
	}
}
