package model

// LogRecord is the normalized representation of an engine event log.
type LogRecord struct {
	Round     uint64   `json:"round"`
	TxIndex   uint64   `json:"tx_index"`
	LogIndex  uint64   `json:"log_index"`
	Address   string   `json:"address"`
	Topics    []string `json:"topics"`
	Data      string   `json:"data"`
	Timestamp uint64   `json:"timestamp"`
}

// Topic0 returns the event signature topic, or "" for anonymous logs.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}
