package model

// Amounts are carried as decimal strings so JSON consumers never lose precision.

// PairCreatedEventData is the decoded PairCreated event payload.
type PairCreatedEventData struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Pair   string `json:"pair"`
	Index  string `json:"index"`
}

// MintEventData is the decoded Mint event payload.
type MintEventData struct {
	Sender  string `json:"sender"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// BurnEventData is the decoded Burn event payload.
type BurnEventData struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// SwapEventData is the decoded Swap event payload.
type SwapEventData struct {
	Sender     string `json:"sender"`
	To         string `json:"to"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
}

// SyncEventData is the decoded Sync event payload.
type SyncEventData struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// TransferEventData is the decoded share Transfer event payload.
type TransferEventData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// ApprovalEventData is the decoded share Approval event payload.
type ApprovalEventData struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
}

// ThresholdUpdatedEventData is the decoded ThresholdUpdated event payload.
type ThresholdUpdatedEventData struct {
	OldThreshold string `json:"old_threshold"`
	NewThreshold string `json:"new_threshold"`
}

// GraduationExecutedEventData is the decoded GraduationExecuted event payload.
type GraduationExecutedEventData struct {
	Token         string `json:"token"`
	Pool          string `json:"pool"`
	CurrentSupply string `json:"current_supply"`
}

// AMMPoolCreatedEventData is the decoded AMMPoolCreated event payload.
type AMMPoolCreatedEventData struct {
	Token     string `json:"token"`
	BaseAsset string `json:"base_asset"`
	Pool      string `json:"pool"`
}

// LiquidityMigratedEventData is the decoded LiquidityMigrated event payload.
type LiquidityMigratedEventData struct {
	Token       string `json:"token"`
	Pool        string `json:"pool"`
	TokenAmount string `json:"token_amount"`
	BaseAmount  string `json:"base_amount"`
	Shares      string `json:"shares"`
}

// TokensBurnedEventData is the decoded BondingCurveTokensBurned event payload.
type TokensBurnedEventData struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// CircuitBreakerEventData is the decoded CircuitBreakerTriggered/Reset payload.
type CircuitBreakerEventData struct {
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

// PauseEventData is the decoded Paused/Unpaused payload.
type PauseEventData struct {
	Account string `json:"account"`
}

// OwnershipTransferredEventData is the decoded OwnershipTransferred payload.
type OwnershipTransferredEventData struct {
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
}

// FeeToUpdatedEventData is the decoded FeeToUpdated/FeeToSetterUpdated payload.
type FeeToUpdatedEventData struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// TokenLaunchedEventData is the decoded TokenLaunched payload.
type TokenLaunchedEventData struct {
	Token   string `json:"token"`
	Creator string `json:"creator"`
	Supply  string `json:"supply"`
}

// CurveTradeEventData is the decoded CurveTrade payload.
type CurveTradeEventData struct {
	Token       string `json:"token"`
	Trader      string `json:"trader"`
	IsBuy       bool   `json:"is_buy"`
	BaseAmount  string `json:"base_amount"`
	TokenAmount string `json:"token_amount"`
}

// EmergencyWithdrawEventData is the decoded EmergencyWithdraw payload.
type EmergencyWithdrawEventData struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
