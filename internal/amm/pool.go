package amm

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

// PoolParams are the safety limits applied by every pool of a registry.
type PoolParams struct {
	// MaxPriceChangeBps bounds the spot-price move of a single swap. Zero disables the check.
	MaxPriceChangeBps uint64
	// MaxVolumePerRound caps summed swap input per settlement round. Nil or zero disables the cap.
	MaxVolumePerRound *big.Int
	// CircuitBreakerCooldown is the minimum time between a trip and its reset.
	CircuitBreakerCooldown time.Duration
}

// DefaultPoolParams returns a 50% price band, no volume cap and a one hour cooldown.
func DefaultPoolParams() PoolParams {
	return PoolParams{
		MaxPriceChangeBps:      5000,
		CircuitBreakerCooldown: time.Hour,
	}
}

// PoolStatus is the trading state of a pool.
type PoolStatus string

const (
	StatusActive        PoolStatus = "active"
	StatusPaused        PoolStatus = "paused"
	StatusCircuitBroken PoolStatus = "circuit_broken"
)

// Pool is a constant-product pair holding reserves of two assets.
type Pool struct {
	address  common.Address
	registry *Registry
	ledger   *ledger.Ledger
	token0   common.Address
	token1   common.Address
	share    *ShareToken
	index    uint64
	params   PoolParams
	logger   *zap.Logger
	metrics  *Metrics

	reserve0  *big.Int
	reserve1  *big.Int
	kLast     *big.Int
	lastPrice *big.Int
	volume    *big.Int
	roundID   uint64

	paused             bool
	breakerTriggered   bool
	breakerTriggeredAt time.Time
}

// Address returns the pool handle.
func (p *Pool) Address() common.Address { return p.address }

// Token0 returns the lower asset of the pair.
func (p *Pool) Token0() common.Address { return p.token0 }

// Token1 returns the higher asset of the pair.
func (p *Pool) Token1() common.Address { return p.token1 }

// ShareToken returns the pool's share token.
func (p *Pool) ShareToken() *ShareToken { return p.share }

// GetReserves returns the pool's tracked reserves.
func (p *Pool) GetReserves() (*big.Int, *big.Int) {
	var r0, r1 *big.Int
	_ = p.ledger.View(func(*ledger.Tx) error {
		r0, r1 = new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
		return nil
	})
	return r0, r1
}

// Status reports whether the pool trades.
func (p *Pool) Status() PoolStatus {
	var status PoolStatus
	_ = p.ledger.View(func(*ledger.Tx) error {
		status = p.status()
		return nil
	})
	return status
}

// State returns the persisted layout of the pool.
func (p *Pool) State() model.PoolState {
	var state model.PoolState
	_ = p.ledger.View(func(*ledger.Tx) error {
		state = p.state()
		return nil
	})
	return state
}

// Mint issues shares to to for the assets transferred into the pool since
// the last reserve update.
func (p *Pool) Mint(caller, to common.Address) (*big.Int, error) {
	var shares *big.Int
	err := p.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		shares, err = p.mint(tx, caller, to)
		return err
	})
	return shares, err
}

// MintTx is Mint inside an open transaction.
func (p *Pool) MintTx(tx *ledger.Tx, caller, to common.Address) (*big.Int, error) {
	return p.mint(tx, caller, to)
}

// Burn redeems the shares held by the pool itself and pays both assets to to.
func (p *Pool) Burn(caller, to common.Address) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		amount0, amount1, err = p.burn(tx, caller, to)
		return err
	})
	return amount0, amount1, err
}

// Swap pays out the requested amounts once the input already transferred
// into the pool satisfies the fee-adjusted constant product.
func (p *Pool) Swap(caller common.Address, amount0Out, amount1Out *big.Int, to common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.swap(tx, caller, amount0Out, amount1Out, to)
	})
}

// Skim sends balances above the reserves to to.
func (p *Pool) Skim(to common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		for _, leg := range []struct {
			token   common.Address
			reserve *big.Int
		}{{p.token0, p.reserve0}, {p.token1, p.reserve1}} {
			excess := tx.BalanceOf(leg.token, p.address)
			excess.Sub(excess, leg.reserve)
			if excess.Sign() <= 0 {
				continue
			}
			if err := tx.Transfer(leg.token, p.address, to, excess); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sync forces the reserves to match the pool's balances.
func (p *Pool) Sync() error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.update(tx, tx.BalanceOf(p.token0, p.address), tx.BalanceOf(p.token1, p.address))
	})
}

func (p *Pool) mint(tx *ledger.Tx, sender, to common.Address) (*big.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, types.ErrZeroAddress.Wrap("mint to")
	}

	reserve0, reserve1 := p.reserve0, p.reserve1
	balance0 := tx.BalanceOf(p.token0, p.address)
	balance1 := tx.BalanceOf(p.token1, p.address)
	amount0 := new(big.Int).Sub(balance0, reserve0)
	amount1 := new(big.Int).Sub(balance1, reserve1)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, types.ErrInsufficientLiquidityMinted.Wrapf("deposits %s/%s", amount0, amount1)
	}

	feeOn, err := p.mintFee(tx, reserve0, reserve1)
	if err != nil {
		return nil, err
	}

	total := p.share.totalSupply
	var shares *big.Int
	if total.Sign() == 0 {
		shares = new(big.Int).Mul(amount0, amount1)
		shares.Sqrt(shares)
	} else {
		if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
			return nil, types.ErrInsufficientLiquidityMinted.Wrap("pool has shares but no reserves")
		}
		by0 := new(big.Int).Mul(amount0, total)
		by0.Quo(by0, reserve0)
		by1 := new(big.Int).Mul(amount1, total)
		by1.Quo(by1, reserve1)
		shares = minBig(by0, by1)
	}
	if shares.Sign() <= 0 {
		return nil, types.ErrInsufficientLiquidityMinted.Wrapf("deposits %s/%s", amount0, amount1)
	}

	if err := p.share.mint(tx, p.address, to, shares); err != nil {
		return nil, err
	}
	if err := p.update(tx, balance0, balance1); err != nil {
		return nil, err
	}
	if feeOn {
		if err := ledger.Set(tx, &p.kLast, new(big.Int).Mul(p.reserve0, p.reserve1)); err != nil {
			return nil, err
		}
	}
	if err := Emit(tx, p.address, dex.EventMint, sender, amount0, amount1); err != nil {
		return nil, err
	}

	tx.OnCommit(func() { p.metrics.liquidity(p.address.Hex(), "mint") })
	p.logger.Debug("pool mint",
		zap.String("pool", p.address.Hex()),
		zap.String("to", to.Hex()),
		zap.String("shares", shares.String()),
	)
	return shares, nil
}

func (p *Pool) burn(tx *ledger.Tx, sender, to common.Address) (*big.Int, *big.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, nil, err
	}
	if to == (common.Address{}) {
		return nil, nil, types.ErrZeroAddress.Wrap("burn to")
	}

	reserve0, reserve1 := p.reserve0, p.reserve1
	shares := p.share.balanceOf(p.address)

	feeOn, err := p.mintFee(tx, reserve0, reserve1)
	if err != nil {
		return nil, nil, err
	}

	total := p.share.totalSupply
	if total.Sign() == 0 || shares.Sign() == 0 {
		return nil, nil, types.ErrInsufficientLiquidityBurned.Wrapf("shares %s of %s", shares, total)
	}
	amount0 := new(big.Int).Mul(shares, reserve0)
	amount0.Quo(amount0, total)
	amount1 := new(big.Int).Mul(shares, reserve1)
	amount1.Quo(amount1, total)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, nil, types.ErrInsufficientLiquidityBurned.Wrapf("redeems %s/%s", amount0, amount1)
	}

	if err := p.share.burn(tx, p.address, p.address, shares); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(p.token0, p.address, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(p.token1, p.address, to, amount1); err != nil {
		return nil, nil, err
	}

	newReserve0 := new(big.Int).Sub(reserve0, amount0)
	newReserve1 := new(big.Int).Sub(reserve1, amount1)
	if err := p.update(tx, newReserve0, newReserve1); err != nil {
		return nil, nil, err
	}
	if feeOn {
		if err := ledger.Set(tx, &p.kLast, new(big.Int).Mul(p.reserve0, p.reserve1)); err != nil {
			return nil, nil, err
		}
	}
	if err := Emit(tx, p.address, dex.EventBurn, sender, amount0, amount1, to); err != nil {
		return nil, nil, err
	}

	tx.OnCommit(func() { p.metrics.liquidity(p.address.Hex(), "burn") })
	return amount0, amount1, nil
}

func (p *Pool) swap(tx *ledger.Tx, sender common.Address, amount0Out, amount1Out *big.Int, to common.Address) (err error) {
	defer func() {
		if err != nil {
			p.metrics.swap(p.address.Hex(), "rejected")
		}
	}()
	if err := p.whenNotPaused(); err != nil {
		return err
	}
	amount0Out, amount1Out = zeroIfNil(amount0Out), zeroIfNil(amount1Out)
	if amount0Out.Sign() < 0 || amount1Out.Sign() < 0 {
		return types.ErrInvalidAmount.Wrapf("outputs %s/%s", amount0Out, amount1Out)
	}
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return types.ErrInsufficientOutputAmount.Wrap("no output requested")
	}
	reserve0, reserve1 := p.reserve0, p.reserve1
	if amount0Out.Cmp(reserve0) >= 0 || amount1Out.Cmp(reserve1) >= 0 {
		return types.ErrInsufficientLiquidity.Wrapf("outputs %s/%s against reserves %s/%s", amount0Out, amount1Out, reserve0, reserve1)
	}
	if to == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("swap to")
	}
	if to == p.token0 || to == p.token1 {
		return types.ErrInvalidTo.Wrapf("%s", to.Hex())
	}

	// Balances as they will stand once the outputs are paid.
	balance0 := tx.BalanceOf(p.token0, p.address)
	balance0.Sub(balance0, amount0Out)
	balance1 := tx.BalanceOf(p.token1, p.address)
	balance1.Sub(balance1, amount1Out)

	amount0In := inputAmount(balance0, reserve0, amount0Out)
	amount1In := inputAmount(balance1, reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return types.ErrInsufficientInputAmount.Wrap("no input received")
	}

	adjusted0 := new(big.Int).Mul(balance0, feeDen)
	adjusted0.Sub(adjusted0, new(big.Int).Mul(amount0In, feeTaken))
	adjusted1 := new(big.Int).Mul(balance1, feeDen)
	adjusted1.Sub(adjusted1, new(big.Int).Mul(amount1In, feeTaken))
	kAfter := new(big.Int).Mul(adjusted0, adjusted1)
	kBefore := new(big.Int).Mul(reserve0, reserve1)
	kBefore.Mul(kBefore, new(big.Int).Mul(feeDen, feeDen))
	if kAfter.Cmp(kBefore) < 0 {
		return types.ErrK.Wrapf("k %s < %s", kAfter, kBefore)
	}

	if err := p.checkPriceImpact(reserve0, reserve1, balance0, balance1); err != nil {
		return err
	}
	if err := p.recordVolume(tx, new(big.Int).Add(amount0In, amount1In)); err != nil {
		return err
	}

	if amount0Out.Sign() > 0 {
		if err := tx.Transfer(p.token0, p.address, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := tx.Transfer(p.token1, p.address, to, amount1Out); err != nil {
			return err
		}
	}
	if err := p.update(tx, balance0, balance1); err != nil {
		return err
	}
	if err := Emit(tx, p.address, dex.EventSwap, sender, amount0In, amount1In, amount0Out, amount1Out, to); err != nil {
		return err
	}

	tx.OnCommit(func() {
		pool := p.address.Hex()
		p.metrics.swap(pool, "ok")
		p.metrics.volume(pool, p.token0.Hex(), amount0In)
		p.metrics.volume(pool, p.token1.Hex(), amount1In)
	})
	return nil
}

func inputAmount(balance, reserve, out *big.Int) *big.Int {
	remaining := new(big.Int).Sub(reserve, out)
	if balance.Cmp(remaining) <= 0 {
		return new(big.Int)
	}
	return remaining.Sub(balance, remaining)
}

func (p *Pool) checkPriceImpact(reserve0, reserve1, balance0, balance1 *big.Int) error {
	if p.params.MaxPriceChangeBps == 0 {
		return nil
	}
	before := p.lastPrice
	if before == nil || before.Sign() == 0 {
		before = spotPrice(reserve0, reserve1)
	}
	change := priceChangeBps(before, spotPrice(balance0, balance1))
	if change.Cmp(new(big.Int).SetUint64(p.params.MaxPriceChangeBps)) > 0 {
		return types.ErrExcessivePriceChange.Wrapf("price moves %s bps, limit %d", change, p.params.MaxPriceChangeBps)
	}
	return nil
}

func (p *Pool) recordVolume(tx *ledger.Tx, amount *big.Int) error {
	volume := new(big.Int)
	if tx.Round() == p.roundID && p.volume != nil {
		volume.Set(p.volume)
	}
	volume.Add(volume, amount)
	if limit := p.params.MaxVolumePerRound; positive(limit) && volume.Cmp(limit) > 0 {
		return types.ErrVolumeLimitExceeded.Wrapf("round %d volume %s exceeds %s", tx.Round(), volume, limit)
	}
	if err := ledger.Set(tx, &p.roundID, tx.Round()); err != nil {
		return err
	}
	return ledger.Set(tx, &p.volume, volume)
}

// update records new reserves and samples the spot price.
func (p *Pool) update(tx *ledger.Tx, balance0, balance1 *big.Int) error {
	reserve0, reserve1 := new(big.Int).Set(balance0), new(big.Int).Set(balance1)
	if err := ledger.Set(tx, &p.reserve0, reserve0); err != nil {
		return err
	}
	if err := ledger.Set(tx, &p.reserve1, reserve1); err != nil {
		return err
	}
	if err := ledger.Set(tx, &p.lastPrice, spotPrice(reserve0, reserve1)); err != nil {
		return err
	}
	tx.OnCommit(func() {
		p.metrics.reserves(p.address.Hex(), p.token0.Hex(), p.token1.Hex(), reserve0, reserve1)
	})
	return Emit(tx, p.address, dex.EventSync, reserve0, reserve1)
}

// mintFee credits the protocol with one sixth of the growth in sqrt(k)
// since the last liquidity event, when a fee recipient is set.
func (p *Pool) mintFee(tx *ledger.Tx, reserve0, reserve1 *big.Int) (bool, error) {
	feeTo := p.registry.feeTo
	feeOn := feeTo != (common.Address{})
	if !feeOn {
		if p.kLast.Sign() != 0 {
			return false, ledger.Set(tx, &p.kLast, new(big.Int))
		}
		return false, nil
	}
	if p.kLast.Sign() == 0 {
		return true, nil
	}

	rootK := new(big.Int).Mul(reserve0, reserve1)
	rootK.Sqrt(rootK)
	rootKLast := new(big.Int).Sqrt(p.kLast)
	if rootK.Cmp(rootKLast) <= 0 {
		return true, nil
	}
	numerator := new(big.Int).Sub(rootK, rootKLast)
	numerator.Mul(numerator, p.share.totalSupply)
	denominator := new(big.Int).Mul(rootK, big.NewInt(5))
	denominator.Add(denominator, rootKLast)
	liquidity := numerator.Quo(numerator, denominator)
	if liquidity.Sign() > 0 {
		if err := p.share.mint(tx, p.address, feeTo, liquidity); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (p *Pool) state() model.PoolState {
	var triggeredAt uint64
	if !p.breakerTriggeredAt.IsZero() {
		triggeredAt = uint64(p.breakerTriggeredAt.Unix())
	}
	return model.PoolState{
		Address:                   p.address.Hex(),
		Token0:                    p.token0.Hex(),
		Token1:                    p.token1.Hex(),
		ShareToken:                p.share.address.Hex(),
		Index:                     p.index,
		Reserve0:                  p.reserve0.String(),
		Reserve1:                  p.reserve1.String(),
		TotalShares:               p.share.totalSupply.String(),
		KLast:                     p.kLast.String(),
		LastPrice:                 zeroIfNil(p.lastPrice).String(),
		Paused:                    p.paused,
		CircuitBreakerTriggered:   p.breakerTriggered,
		CircuitBreakerTriggeredAt: triggeredAt,
		VolumeInCurrentRound:      zeroIfNil(p.volume).String(),
		RoundID:                   p.roundID,
	}
}

func (p *Pool) restore(state model.PoolState) error {
	var err error
	if p.reserve0, err = parseAmount(state.Reserve0); err != nil {
		return err
	}
	if p.reserve1, err = parseAmount(state.Reserve1); err != nil {
		return err
	}
	if p.kLast, err = parseAmount(state.KLast); err != nil {
		return err
	}
	if p.lastPrice, err = parseAmount(state.LastPrice); err != nil {
		return err
	}
	if p.volume, err = parseAmount(state.VolumeInCurrentRound); err != nil {
		return err
	}
	p.roundID = state.RoundID
	p.paused = state.Paused
	p.breakerTriggered = state.CircuitBreakerTriggered
	if state.CircuitBreakerTriggeredAt > 0 {
		p.breakerTriggeredAt = time.Unix(int64(state.CircuitBreakerTriggeredAt), 0).UTC()
	}
	return nil
}
