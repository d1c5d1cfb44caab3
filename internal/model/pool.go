package model

// PoolState is the persisted layout of one liquidity pool.
type PoolState struct {
	Address                   string `json:"address"`
	Token0                    string `json:"token0"`
	Token1                    string `json:"token1"`
	ShareToken                string `json:"share_token"`
	Index                     uint64 `json:"index"`
	Reserve0                  string `json:"reserve0"`
	Reserve1                  string `json:"reserve1"`
	TotalShares               string `json:"total_shares"`
	KLast                     string `json:"k_last"`
	LastPrice                 string `json:"last_price"`
	Paused                    bool   `json:"paused"`
	CircuitBreakerTriggered   bool   `json:"circuit_breaker_triggered"`
	CircuitBreakerTriggeredAt uint64 `json:"circuit_breaker_triggered_at"`
	VolumeInCurrentRound      string `json:"volume_in_current_round"`
	RoundID                   uint64 `json:"round_id"`
}

// ShareState is the persisted layout of a pool's share token.
type ShareState struct {
	Address     string         `json:"address"`
	Pool        string         `json:"pool"`
	TotalSupply string         `json:"total_supply"`
	Balances    []BalanceEntry `json:"balances"`
	Allowances  []Allowance    `json:"allowances"`
}

// Allowance is a single owner/spender allowance.
type Allowance struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// BalanceEntry is a single holder balance of one asset.
type BalanceEntry struct {
	Asset  string `json:"asset,omitempty"`
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}
