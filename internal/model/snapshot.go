package model

// Snapshot is the complete persisted engine state.
type Snapshot struct {
	// LastAppliedSeq is the last operation the state reflects. Set by the
	// replay runner; the engine ignores it.
	LastAppliedSeq uint64 `json:"last_applied_seq,omitempty"`

	Round     uint64 `json:"round"`
	Timestamp uint64 `json:"timestamp"`
	TxIndex   uint64 `json:"tx_index"`

	Balances []BalanceEntry `json:"balances"`
	Supplies []BalanceEntry `json:"supplies"`

	FeeTo       string        `json:"fee_to"`
	FeeToSetter string        `json:"fee_to_setter"`
	Pools       []PoolState   `json:"pools"`
	Shares      []ShareState  `json:"shares"`
	RouterOwner string        `json:"router_owner"`
	RouterPause bool          `json:"router_paused"`
	Markets     []MarketState `json:"markets"`

	GraduationOwner     string            `json:"graduation_owner"`
	GraduationThreshold string            `json:"graduation_threshold"`
	Graduations         []GraduationState `json:"graduations"`
}
