package model

// Operation is one scripted engine call, replayed in file order.
// Field use depends on Op; unused fields are ignored.
type Operation struct {
	Seq       uint64 `json:"seq"`
	Round     uint64 `json:"round"`
	Timestamp uint64 `json:"timestamp"`
	Op        string `json:"op"`
	Caller    string `json:"caller"`

	Token  string   `json:"token,omitempty"`
	TokenA string   `json:"token_a,omitempty"`
	TokenB string   `json:"token_b,omitempty"`
	To     string   `json:"to,omitempty"`
	Path   []string `json:"path,omitempty"`

	Amount     string `json:"amount,omitempty"`
	AmountA    string `json:"amount_a,omitempty"`
	AmountB    string `json:"amount_b,omitempty"`
	AmountAMin string `json:"amount_a_min,omitempty"`
	AmountBMin string `json:"amount_b_min,omitempty"`
	Limit      string `json:"limit,omitempty"`
	Deadline   uint64 `json:"deadline,omitempty"`
}

// OpResult is the outcome of applying one Operation.
type OpResult struct {
	Seq       uint64   `json:"seq"`
	Op        string   `json:"op"`
	OK        bool     `json:"ok"`
	Outputs   []string `json:"outputs,omitempty"`
	Codespace string   `json:"codespace,omitempty"`
	Code      uint32   `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
}
