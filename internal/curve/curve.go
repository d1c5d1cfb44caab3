// Package curve implements the bonding-curve market a token trades on
// before it graduates to a constant-product pool.
package curve

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/amm"
	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

// Params are the virtual reserves every market starts from. The virtual
// base reserve sets the opening price; a zero VirtualToken means the full
// launched supply, and a larger one than the supply is rejected.
type Params struct {
	VirtualBase  *big.Int
	VirtualToken *big.Int
}

// Options configures a Curve.
type Options struct {
	Address   common.Address
	BaseAsset common.Address
	// Migrator is the only account allowed to drain a market into a pool.
	Migrator common.Address
	Params   Params
	Logger   *zap.Logger
}

type market struct {
	token        common.Address
	creator      common.Address
	supply       *big.Int
	virtualBase  *big.Int
	virtualToken *big.Int
	realBase     *big.Int
	sold         *big.Int
	closed       bool
}

// Curve holds the launched token inventory and the base asset paid into it.
type Curve struct {
	address   common.Address
	baseAsset common.Address
	migrator  common.Address
	params    Params
	ledger    *ledger.Ledger
	logger    *zap.Logger

	markets map[common.Address]*market
}

// New builds a curve on l.
func New(l *ledger.Ledger, opts Options) *Curve {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Curve{
		address:   opts.Address,
		baseAsset: opts.BaseAsset,
		migrator:  opts.Migrator,
		params:    opts.Params,
		ledger:    l,
		logger:    logger,
		markets:   make(map[common.Address]*market),
	}
}

// Address returns the account holding curve inventory.
func (c *Curve) Address() common.Address { return c.address }

// BaseAsset returns the asset markets are priced in.
func (c *Curve) BaseAsset() common.Address { return c.baseAsset }

// Launch mints supply of token into the curve and opens its market.
func (c *Curve) Launch(caller, token common.Address, supply *big.Int) error {
	return c.ledger.Update(func(tx *ledger.Tx) error {
		if token == (common.Address{}) || caller == (common.Address{}) {
			return types.ErrZeroAddress.Wrap("launch")
		}
		if token == c.baseAsset {
			return types.ErrIdenticalAddresses.Wrap("token is the base asset")
		}
		if supply == nil || supply.Sign() <= 0 {
			return types.ErrZeroAmount.Wrapf("supply %v", supply)
		}
		if _, ok := c.markets[token]; ok {
			return types.ErrTokenExists.Wrapf("%s", token.Hex())
		}
		if tx.TotalSupply(token).Sign() != 0 {
			return types.ErrTokenExists.Wrapf("%s already has a supply", token.Hex())
		}

		virtualToken := c.params.VirtualToken
		if virtualToken == nil || virtualToken.Sign() == 0 {
			virtualToken = supply
		}
		// Migration prices tokens off the virtual reserve; a reserve above
		// the real inventory could move all of it and leave nothing to burn.
		if virtualToken.Cmp(supply) > 0 {
			return types.ErrInvalidAmount.Wrapf("virtual token reserve %s exceeds supply %s", virtualToken, supply)
		}
		virtualBase := c.params.VirtualBase
		if virtualBase == nil || virtualBase.Sign() <= 0 {
			return types.ErrInvalidAmount.Wrap("curve virtual base reserve is not configured")
		}

		m := &market{
			token:        token,
			creator:      caller,
			supply:       new(big.Int).Set(supply),
			virtualBase:  new(big.Int).Set(virtualBase),
			virtualToken: new(big.Int).Set(virtualToken),
			realBase:     new(big.Int),
			sold:         new(big.Int),
		}
		if err := tx.Mint(token, c.address, supply); err != nil {
			return err
		}
		if err := ledger.SetKey(tx, c.markets, token, m); err != nil {
			return err
		}
		if err := amm.Emit(tx, c.address, dex.EventTokenLaunched, token, caller, supply); err != nil {
			return err
		}
		tx.OnCommit(func() {
			c.logger.Info("token launched",
				zap.String("token", token.Hex()),
				zap.String("creator", caller.Hex()),
				zap.String("supply", supply.String()),
			)
		})
		return nil
	})
}

// Buy spends baseIn of the base asset on token and returns the amount bought.
func (c *Curve) Buy(caller, token common.Address, baseIn, minTokensOut *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.ledger.Update(func(tx *ledger.Tx) error {
		m, err := c.open(token)
		if err != nil {
			return err
		}
		if baseIn == nil || baseIn.Sign() <= 0 {
			return types.ErrZeroAmount.Wrap("base in")
		}

		tokensOut := constantProductOut(baseIn, m.virtualBase, m.virtualToken)
		if inventory := m.inventory(); tokensOut.Cmp(inventory) > 0 {
			return types.ErrInsufficientLiquidity.Wrapf("buy of %s exceeds inventory %s", tokensOut, inventory)
		}
		if tokensOut.Sign() == 0 || tokensOut.Cmp(zeroIfNil(minTokensOut)) < 0 {
			return types.ErrInsufficientOutputAmount.Wrapf("out %s, min %v", tokensOut, minTokensOut)
		}

		if err := tx.Transfer(c.baseAsset, caller, c.address, baseIn); err != nil {
			return err
		}
		if err := tx.Transfer(token, c.address, caller, tokensOut); err != nil {
			return err
		}
		if err := c.settle(tx, m, new(big.Int).Add(m.virtualBase, baseIn), new(big.Int).Sub(m.virtualToken, tokensOut),
			new(big.Int).Add(m.realBase, baseIn), new(big.Int).Add(m.sold, tokensOut)); err != nil {
			return err
		}
		out = tokensOut
		return amm.Emit(tx, c.address, dex.EventCurveTrade, token, caller, true, baseIn, tokensOut)
	})
	return out, err
}

// Sell returns tokensIn of token to the curve for base asset.
func (c *Curve) Sell(caller, token common.Address, tokensIn, minBaseOut *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.ledger.Update(func(tx *ledger.Tx) error {
		m, err := c.open(token)
		if err != nil {
			return err
		}
		if tokensIn == nil || tokensIn.Sign() <= 0 {
			return types.ErrZeroAmount.Wrap("tokens in")
		}

		baseOut := constantProductOut(tokensIn, m.virtualToken, m.virtualBase)
		if baseOut.Cmp(m.realBase) > 0 {
			baseOut = new(big.Int).Set(m.realBase)
		}
		if baseOut.Sign() == 0 || baseOut.Cmp(zeroIfNil(minBaseOut)) < 0 {
			return types.ErrInsufficientOutputAmount.Wrapf("out %s, min %v", baseOut, minBaseOut)
		}

		if err := tx.Transfer(token, caller, c.address, tokensIn); err != nil {
			return err
		}
		if err := tx.Transfer(c.baseAsset, c.address, caller, baseOut); err != nil {
			return err
		}
		sold := new(big.Int).Sub(m.sold, tokensIn)
		if sold.Sign() < 0 {
			sold.SetInt64(0)
		}
		if err := c.settle(tx, m, new(big.Int).Sub(m.virtualBase, baseOut), new(big.Int).Add(m.virtualToken, tokensIn),
			new(big.Int).Sub(m.realBase, baseOut), sold); err != nil {
			return err
		}
		out = baseOut
		return amm.Emit(tx, c.address, dex.EventCurveTrade, token, caller, false, baseOut, tokensIn)
	})
	return out, err
}

// QuoteBuy returns the tokens baseIn would buy right now.
func (c *Curve) QuoteBuy(token common.Address, baseIn *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.ledger.View(func(*ledger.Tx) error {
		m, err := c.open(token)
		if err != nil {
			return err
		}
		if baseIn == nil || baseIn.Sign() <= 0 {
			return types.ErrZeroAmount.Wrap("base in")
		}
		out = constantProductOut(baseIn, m.virtualBase, m.virtualToken)
		return nil
	})
	return out, err
}

// CurrentSupply returns the amount of token sold off the curve, the metric
// graduation is measured against.
func (c *Curve) CurrentSupply(token common.Address) (*big.Int, error) {
	var out *big.Int
	err := c.ledger.View(func(tx *ledger.Tx) error {
		var err error
		out, err = c.CurrentSupplyTx(tx, token)
		return err
	})
	return out, err
}

// CurrentSupplyTx is CurrentSupply inside an open transaction.
func (c *Curve) CurrentSupplyTx(_ *ledger.Tx, token common.Address) (*big.Int, error) {
	m, ok := c.markets[token]
	if !ok {
		return nil, types.ErrTokenNotFound.Wrapf("%s", token.Hex())
	}
	return new(big.Int).Set(m.sold), nil
}

// Market returns the persisted view of a market.
func (c *Curve) Market(token common.Address) (model.MarketState, bool) {
	var out model.MarketState
	var ok bool
	_ = c.ledger.View(func(*ledger.Tx) error {
		var m *market
		if m, ok = c.markets[token]; ok {
			out = m.state()
		}
		return nil
	})
	return out, ok
}

// MigrateTx closes the market and moves its collected base asset, plus the
// token amount matching the closing price, to pool. Only the migrator may
// call it.
func (c *Curve) MigrateTx(tx *ledger.Tx, caller, token, pool common.Address) (tokenAmount, baseAmount *big.Int, err error) {
	if caller != c.migrator {
		return nil, nil, types.ErrForbidden.Wrapf("FORBIDDEN: %s is not the migrator", caller.Hex())
	}
	m, err := c.open(token)
	if err != nil {
		return nil, nil, err
	}

	baseAmount = new(big.Int).Set(m.realBase)
	tokenAmount = new(big.Int).Mul(baseAmount, m.virtualToken)
	tokenAmount.Quo(tokenAmount, m.virtualBase)
	if inventory := m.inventory(); tokenAmount.Cmp(inventory) > 0 {
		tokenAmount = inventory
	}

	if err := ledger.Set(tx, &m.closed, true); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(c.baseAsset, c.address, pool, baseAmount); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(token, c.address, pool, tokenAmount); err != nil {
		return nil, nil, err
	}
	if err := ledger.Set(tx, &m.realBase, new(big.Int)); err != nil {
		return nil, nil, err
	}
	return tokenAmount, baseAmount, nil
}

// BurnInventoryTx destroys whatever token inventory the closed market still
// holds and returns the amount burned.
func (c *Curve) BurnInventoryTx(tx *ledger.Tx, caller, token common.Address) (*big.Int, error) {
	if caller != c.migrator {
		return nil, types.ErrForbidden.Wrapf("FORBIDDEN: %s is not the migrator", caller.Hex())
	}
	m, ok := c.markets[token]
	if !ok {
		return nil, types.ErrTokenNotFound.Wrapf("%s", token.Hex())
	}
	if !m.closed {
		return nil, types.ErrTokenNotGraduated.Wrapf("market %s still trading", token.Hex())
	}
	remaining := tx.BalanceOf(token, c.address)
	if remaining.Sign() == 0 {
		return remaining, nil
	}
	if err := tx.Burn(token, c.address, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

// ExportState returns every market sorted by token.
func (c *Curve) ExportState() []model.MarketState {
	var out []model.MarketState
	_ = c.ledger.View(func(*ledger.Tx) error {
		for _, m := range c.markets {
			out = append(out, m.state())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// RestoreState loads markets from a snapshot.
func (c *Curve) RestoreState(states []model.MarketState) error {
	return c.ledger.View(func(*ledger.Tx) error {
		for _, s := range states {
			m := &market{
				token:   common.HexToAddress(s.Token),
				creator: common.HexToAddress(s.Creator),
				closed:  s.Closed,
			}
			for _, field := range []struct {
				dst **big.Int
				src string
			}{
				{&m.supply, s.Supply},
				{&m.virtualBase, s.VirtualBase},
				{&m.virtualToken, s.VirtualToken},
				{&m.realBase, s.RealBase},
				{&m.sold, s.Sold},
			} {
				v, ok := new(big.Int).SetString(orZero(field.src), 10)
				if !ok || v.Sign() < 0 {
					return types.ErrInvalidAmount.Wrapf("market %s: %q", s.Token, field.src)
				}
				*field.dst = v
			}
			c.markets[m.token] = m
		}
		return nil
	})
}

func (c *Curve) open(token common.Address) (*market, error) {
	m, ok := c.markets[token]
	if !ok {
		return nil, types.ErrTokenNotFound.Wrapf("%s", token.Hex())
	}
	if m.closed {
		return nil, types.ErrMarketClosed.Wrapf("%s has graduated", token.Hex())
	}
	return m, nil
}

func (c *Curve) settle(tx *ledger.Tx, m *market, virtualBase, virtualToken, realBase, sold *big.Int) error {
	if err := ledger.Set(tx, &m.virtualBase, virtualBase); err != nil {
		return err
	}
	if err := ledger.Set(tx, &m.virtualToken, virtualToken); err != nil {
		return err
	}
	if err := ledger.Set(tx, &m.realBase, realBase); err != nil {
		return err
	}
	return ledger.Set(tx, &m.sold, sold)
}

func (m *market) inventory() *big.Int {
	return new(big.Int).Sub(m.supply, m.sold)
}

func (m *market) state() model.MarketState {
	return model.MarketState{
		Token:        m.token.Hex(),
		Creator:      m.creator.Hex(),
		Supply:       m.supply.String(),
		VirtualBase:  m.virtualBase.String(),
		VirtualToken: m.virtualToken.String(),
		RealBase:     m.realBase.String(),
		Sold:         m.sold.String(),
		Closed:       m.closed,
	}
}

// constantProductOut prices a fee-free trade against virtual reserves.
func constantProductOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	numerator := new(big.Int).Mul(amountIn, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountIn)
	return numerator.Quo(numerator, denominator)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
