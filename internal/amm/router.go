package amm

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/types"
)

// Router executes multi-hop swaps and liquidity changes against a registry.
// Every call runs in one ledger transaction, so a failing hop unwinds the
// earlier ones.
type Router struct {
	Ownable

	address  common.Address
	ledger   *ledger.Ledger
	registry *Registry
	logger   *zap.Logger
	metrics  *Metrics
	paused   bool
}

// NewRouter builds a router at address owned by owner.
func NewRouter(l *ledger.Ledger, registry *Registry, address, owner common.Address, logger *zap.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		Ownable:  NewOwnable(address, owner),
		address:  address,
		ledger:   l,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Address returns the router handle.
func (r *Router) Address() common.Address { return r.address }

// Registry returns the registry the router trades against.
func (r *Router) Registry() *Registry { return r.registry }

// Owner returns the router owner.
func (r *Router) Owner() common.Address {
	var out common.Address
	_ = r.ledger.View(func(*ledger.Tx) error {
		out = r.OwnerUnsafe()
		return nil
	})
	return out
}

// IsPaused reports whether the router rejects trades.
func (r *Router) IsPaused() bool {
	var out bool
	_ = r.ledger.View(func(*ledger.Tx) error {
		out = r.paused
		return nil
	})
	return out
}

// Quote returns the amount of B equivalent to amountA at the reserve ratio.
func (r *Router) Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	return Quote(amountA, reserveA, reserveB)
}

// GetAmountsOut returns the amount at every step of path for an exact input.
func (r *Router) GetAmountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var amounts []*big.Int
	err := r.ledger.View(func(*ledger.Tx) error {
		var err error
		amounts, err = r.amountsOut(amountIn, path)
		return err
	})
	return amounts, err
}

// GetAmountsIn returns the amount at every step of path for an exact output.
func (r *Router) GetAmountsIn(amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	var amounts []*big.Int
	err := r.ledger.View(func(*ledger.Tx) error {
		var err error
		amounts, err = r.amountsIn(amountOut, path)
		return err
	})
	return amounts, err
}

// SwapExactTokensForTokens sells exactly amountIn of path[0] for at least
// amountOutMin of the last asset of path.
func (r *Router) SwapExactTokensForTokens(caller common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) ([]*big.Int, error) {
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.guard(tx, deadline); err != nil {
			return err
		}
		var err error
		if amounts, err = r.amountsOut(amountIn, path); err != nil {
			return err
		}
		if out := amounts[len(amounts)-1]; out.Cmp(zeroIfNil(amountOutMin)) < 0 {
			return types.ErrInsufficientOutputAmount.Wrapf("out %s < min %s", out, amountOutMin)
		}
		return r.executeSwap(tx, caller, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the last asset of path
// spending at most amountInMax of path[0].
func (r *Router) SwapTokensForExactTokens(caller common.Address, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline time.Time) ([]*big.Int, error) {
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.guard(tx, deadline); err != nil {
			return err
		}
		var err error
		if amounts, err = r.amountsIn(amountOut, path); err != nil {
			return err
		}
		if in := amounts[0]; amountInMax == nil || in.Cmp(amountInMax) > 0 {
			return types.ErrExcessiveInputAmount.Wrapf("in %s > max %v", in, amountInMax)
		}
		return r.executeSwap(tx, caller, amounts, path, to)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// AddLiquidityRequest describes a deposit into the pool of TokenA/TokenB.
type AddLiquidityRequest struct {
	TokenA         common.Address
	TokenB         common.Address
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	To             common.Address
	Deadline       time.Time
}

// AddLiquidity deposits at the current ratio, creating the pool if needed,
// and mints shares to req.To.
func (r *Router) AddLiquidity(caller common.Address, req AddLiquidityRequest) (amountA, amountB, shares *big.Int, err error) {
	err = r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.guard(tx, req.Deadline); err != nil {
			return err
		}
		var err error
		amountA, amountB, shares, err = r.addLiquidity(tx, caller, req)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, shares, nil
}

func (r *Router) addLiquidity(tx *ledger.Tx, caller common.Address, req AddLiquidityRequest) (*big.Int, *big.Int, *big.Int, error) {
	if !positive(req.AmountADesired) || !positive(req.AmountBDesired) {
		return nil, nil, nil, types.ErrZeroAmount.Wrapf("desired %v/%v", req.AmountADesired, req.AmountBDesired)
	}
	minA, minB := zeroIfNil(req.AmountAMin), zeroIfNil(req.AmountBMin)

	pool := r.registry.PairUnsafe(req.TokenA, req.TokenB)
	if pool == nil {
		var err error
		if pool, err = r.registry.CreatePairTx(tx, req.TokenA, req.TokenB); err != nil {
			return nil, nil, nil, err
		}
	}

	reserveA, reserveB := pool.reserve0, pool.reserve1
	if req.TokenA != pool.token0 {
		reserveA, reserveB = reserveB, reserveA
	}

	amountA, amountB := req.AmountADesired, req.AmountBDesired
	if reserveA.Sign() != 0 || reserveB.Sign() != 0 {
		optimalB, err := Quote(req.AmountADesired, reserveA, reserveB)
		if err != nil {
			return nil, nil, nil, err
		}
		if optimalB.Cmp(req.AmountBDesired) <= 0 {
			if optimalB.Cmp(minB) < 0 {
				return nil, nil, nil, types.ErrInsufficientBAmount.Wrapf("%s < min %s", optimalB, minB)
			}
			amountB = optimalB
		} else {
			optimalA, err := Quote(req.AmountBDesired, reserveB, reserveA)
			if err != nil {
				return nil, nil, nil, err
			}
			if optimalA.Cmp(req.AmountADesired) > 0 || optimalA.Cmp(minA) < 0 {
				return nil, nil, nil, types.ErrInsufficientAAmount.Wrapf("%s, min %s", optimalA, minA)
			}
			amountA = optimalA
		}
	}

	if err := tx.Transfer(req.TokenA, caller, pool.address, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := tx.Transfer(req.TokenB, caller, pool.address, amountB); err != nil {
		return nil, nil, nil, err
	}
	shares, err := pool.mint(tx, r.address, req.To)
	if err != nil {
		return nil, nil, nil, err
	}
	return new(big.Int).Set(amountA), new(big.Int).Set(amountB), shares, nil
}

// RemoveLiquidityRequest describes a withdrawal from the pool of TokenA/TokenB.
type RemoveLiquidityRequest struct {
	TokenA     common.Address
	TokenB     common.Address
	Shares     *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	To         common.Address
	Deadline   time.Time
}

// RemoveLiquidity redeems the caller's shares and pays both assets to req.To.
func (r *Router) RemoveLiquidity(caller common.Address, req RemoveLiquidityRequest) (amountA, amountB *big.Int, err error) {
	err = r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.guard(tx, req.Deadline); err != nil {
			return err
		}
		pool := r.registry.PairUnsafe(req.TokenA, req.TokenB)
		if pool == nil {
			return types.ErrPoolNotFound.Wrapf("%s/%s", req.TokenA.Hex(), req.TokenB.Hex())
		}
		if !positive(req.Shares) {
			return types.ErrZeroAmount.Wrap("shares")
		}
		if err := pool.share.transfer(tx, caller, pool.address, req.Shares); err != nil {
			return err
		}
		amount0, amount1, err := pool.burn(tx, r.address, req.To)
		if err != nil {
			return err
		}
		amountA, amountB = amount0, amount1
		if req.TokenA != pool.token0 {
			amountA, amountB = amount1, amount0
		}
		if minA := zeroIfNil(req.AmountAMin); amountA.Cmp(minA) < 0 {
			return types.ErrInsufficientAAmount.Wrapf("%s < min %s", amountA, minA)
		}
		if minB := zeroIfNil(req.AmountBMin); amountB.Cmp(minB) < 0 {
			return types.ErrInsufficientBAmount.Wrapf("%s < min %s", amountB, minB)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// EmergencyWithdraw sends assets stuck at the router to its owner.
func (r *Router) EmergencyWithdraw(caller, asset common.Address, amount *big.Int) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.CheckOwner(caller); err != nil {
			return err
		}
		if !positive(amount) {
			return types.ErrZeroAmount.Wrap("withdraw amount")
		}
		owner := r.OwnerUnsafe()
		if err := tx.Transfer(asset, r.address, owner, amount); err != nil {
			return err
		}
		if err := Emit(tx, r.address, dex.EventEmergencyWithdraw, asset, owner, amount); err != nil {
			return err
		}
		tx.OnCommit(func() {
			r.logger.Warn("emergency withdraw",
				zap.String("asset", asset.Hex()),
				zap.String("to", owner.Hex()),
				zap.String("amount", amount.String()),
			)
		})
		return nil
	})
}

// Pause stops all router trading. Owner only.
func (r *Router) Pause(caller common.Address) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.CheckOwner(caller); err != nil {
			return err
		}
		if r.paused {
			return types.ErrPaused.Wrap("router")
		}
		if err := ledger.Set(tx, &r.paused, true); err != nil {
			return err
		}
		return Emit(tx, r.address, dex.EventPaused, caller)
	})
}

// Unpause resumes router trading. Owner only.
func (r *Router) Unpause(caller common.Address) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.CheckOwner(caller); err != nil {
			return err
		}
		if !r.paused {
			return types.ErrNotPaused.Wrap("router")
		}
		if err := ledger.Set(tx, &r.paused, false); err != nil {
			return err
		}
		return Emit(tx, r.address, dex.EventUnpaused, caller)
	})
}

// TransferOwnership hands the router to newOwner.
func (r *Router) TransferOwnership(caller, newOwner common.Address) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		return r.Ownable.TransferOwnership(tx, caller, newOwner)
	})
}

// RestoreState loads owner and pause flag from a snapshot.
func (r *Router) RestoreState(owner common.Address, paused bool) {
	_ = r.ledger.View(func(*ledger.Tx) error {
		r.owner = owner
		r.paused = paused
		return nil
	})
}

func (r *Router) guard(tx *ledger.Tx, deadline time.Time) error {
	if tx.Now().After(deadline) {
		return types.ErrExpired.Wrapf("deadline %s passed at %s", deadline.UTC().Format(time.RFC3339), tx.Now().UTC().Format(time.RFC3339))
	}
	if r.paused {
		return types.ErrPaused.Wrap("router")
	}
	return nil
}

func (r *Router) executeSwap(tx *ledger.Tx, caller common.Address, amounts []*big.Int, path []common.Address, to common.Address) error {
	first := r.registry.PairUnsafe(path[0], path[1])
	if err := tx.Transfer(path[0], caller, first.address, amounts[0]); err != nil {
		return err
	}
	for i := 0; i < len(path)-1; i++ {
		pool := r.registry.PairUnsafe(path[i], path[i+1])
		out := amounts[i+1]
		amount0Out, amount1Out := new(big.Int), out
		if path[i] != pool.token0 {
			amount0Out, amount1Out = out, new(big.Int)
		}
		recipient := to
		if i < len(path)-2 {
			recipient = r.registry.PairUnsafe(path[i+1], path[i+2]).address
		}
		if err := pool.swap(tx, r.address, amount0Out, amount1Out, recipient); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) amountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, types.ErrInvalidPath.Wrapf("path of %d assets", len(path))
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = amountIn
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := r.reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if amounts[i+1], err = GetAmountOut(amounts[i], reserveIn, reserveOut); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

func (r *Router) amountsIn(amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, types.ErrInvalidPath.Wrapf("path of %d assets", len(path))
	}
	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = amountOut
	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, err := r.reserves(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		if amounts[i-1], err = GetAmountIn(amounts[i], reserveIn, reserveOut); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// reserves returns the reserves of the tokenIn/tokenOut pool in hop order.
func (r *Router) reserves(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	if _, _, err := SortTokens(tokenIn, tokenOut); err != nil {
		return nil, nil, err
	}
	pool := r.registry.PairUnsafe(tokenIn, tokenOut)
	if pool == nil {
		return nil, nil, types.ErrPoolNotFound.Wrapf("%s/%s", tokenIn.Hex(), tokenOut.Hex())
	}
	if tokenIn == pool.token0 {
		return pool.reserve0, pool.reserve1, nil
	}
	return pool.reserve1, pool.reserve0, nil
}
