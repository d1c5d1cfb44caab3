package model

// DecodeError records a decode failure for a log line.
type DecodeError struct {
	Round    uint64 `json:"round"`
	TxIndex  uint64 `json:"tx_index"`
	LogIndex uint64 `json:"log_index"`
	Address  string `json:"address"`
	Topic0   string `json:"topic0"`
	Error    string `json:"error"`
}
