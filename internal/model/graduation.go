package model

// GraduationState is the persisted graduation record of a bonding-curve token.
type GraduationState struct {
	Token       string `json:"token"`
	IsGraduated bool   `json:"is_graduated"`
	Pool        string `json:"pool,omitempty"`
}

// MarketState is the persisted layout of a bonding-curve market.
type MarketState struct {
	Token        string `json:"token"`
	Creator      string `json:"creator"`
	Supply       string `json:"supply"`
	VirtualBase  string `json:"virtual_base"`
	VirtualToken string `json:"virtual_token"`
	RealBase     string `json:"real_base"`
	Sold         string `json:"sold"`
	Closed       bool   `json:"closed"`
}
