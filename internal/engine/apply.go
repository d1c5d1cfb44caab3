package engine

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/amm"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

// Operation names accepted by Apply.
const (
	OpDeposit         = "deposit"
	OpTransfer        = "transfer"
	OpCreatePair      = "create_pair"
	OpSetFeeTo        = "set_fee_to"
	OpSetFeeToSetter  = "set_fee_to_setter"
	OpPoolMint        = "pool_mint"
	OpPoolBurn        = "pool_burn"
	OpPoolSwap        = "pool_swap"
	OpPoolSkim        = "pool_skim"
	OpPoolSync        = "pool_sync"
	OpPausePool       = "pause_pool"
	OpUnpausePool     = "unpause_pool"
	OpTripBreaker     = "trigger_circuit_breaker"
	OpResetBreaker    = "reset_circuit_breaker"
	OpShareTransfer   = "share_transfer"
	OpShareApprove    = "share_approve"
	OpSwapExactIn     = "swap_exact_tokens_for_tokens"
	OpSwapExactOut    = "swap_tokens_for_exact_tokens"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpEmergency       = "emergency_withdraw"
	OpPauseRouter     = "pause_router"
	OpUnpauseRouter   = "unpause_router"
	OpRouterOwner     = "transfer_router_ownership"
	OpLaunch          = "launch"
	OpBuy             = "buy"
	OpSell            = "sell"
	OpSetThreshold    = "set_graduation_threshold"
	OpCheckAndGrad    = "check_and_graduate"
	OpExecuteGrad     = "execute_graduation"
	OpGradOwner       = "transfer_graduation_ownership"
	OpRenounceGrad    = "renounce_graduation_ownership"
)

// Apply runs one scripted operation. Replayed operations advance a manual
// clock to their round and timestamp first. Failures are reported in the
// result, never returned.
func (e *Engine) Apply(op model.Operation) model.OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mc, ok := e.clock.(*ledger.ManualClock); ok && op.Timestamp > 0 {
		mc.Set(unixTime(op.Timestamp), op.Round)
	}

	result := model.OpResult{Seq: op.Seq, Op: op.Op}
	outputs, err := e.dispatch(op)
	if err != nil {
		codespace, code, log := errorsmod.ABCIInfo(err, false)
		result.Codespace, result.Code, result.Error = codespace, code, log
		e.metrics.Reject(op.Op, codespace+"/"+strconv.FormatUint(uint64(code), 10))
		e.logger.Debug("operation rejected",
			zap.Uint64("seq", op.Seq),
			zap.String("op", op.Op),
			zap.Error(err),
		)
		return result
	}
	result.OK = true
	for _, v := range outputs {
		result.Outputs = append(result.Outputs, fmt.Sprint(v))
	}
	return result
}

func (e *Engine) dispatch(op model.Operation) ([]interface{}, error) {
	p := parser{op: op}
	caller := p.addr("caller", op.Caller)

	switch op.Op {
	case OpDeposit:
		token, to, amount := p.addr("token", op.Token), p.addr("to", op.To), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Ledger.Deposit(token, to, amount)

	case OpTransfer:
		token, to, amount := p.addr("token", op.Token), p.addr("to", op.To), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Ledger.Transfer(caller, token, to, amount)

	case OpCreatePair:
		a, b := p.addr("token_a", op.TokenA), p.addr("token_b", op.TokenB)
		if p.err != nil {
			return nil, p.err
		}
		pool, err := e.Registry.CreatePair(a, b)
		if err != nil {
			return nil, err
		}
		return []interface{}{pool.Address().Hex()}, nil

	case OpSetFeeTo:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Registry.SetFeeTo(caller, to)

	case OpSetFeeToSetter:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Registry.SetFeeToSetter(caller, to)

	case OpPoolMint, OpPoolBurn, OpPoolSwap, OpPoolSkim, OpPoolSync,
		OpPausePool, OpUnpausePool, OpTripBreaker, OpResetBreaker,
		OpShareTransfer, OpShareApprove:
		return e.applyPool(&p, caller)

	case OpSwapExactIn, OpSwapExactOut:
		amount, limit := p.amount("amount", op.Amount), p.amount("limit", op.Limit)
		path, to := p.path(op.Path), p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		var amounts []*big.Int
		var err error
		if op.Op == OpSwapExactIn {
			amounts, err = e.Router.SwapExactTokensForTokens(caller, amount, limit, path, to, unixTime(op.Deadline))
		} else {
			amounts, err = e.Router.SwapTokensForExactTokens(caller, amount, limit, path, to, unixTime(op.Deadline))
		}
		return bigs(amounts...), err

	case OpAddLiquidity:
		req := amm.AddLiquidityRequest{
			TokenA:         p.addr("token_a", op.TokenA),
			TokenB:         p.addr("token_b", op.TokenB),
			AmountADesired: p.amount("amount_a", op.AmountA),
			AmountBDesired: p.amount("amount_b", op.AmountB),
			AmountAMin:     p.amount("amount_a_min", op.AmountAMin),
			AmountBMin:     p.amount("amount_b_min", op.AmountBMin),
			To:             p.addr("to", op.To),
			Deadline:       unixTime(op.Deadline),
		}
		if p.err != nil {
			return nil, p.err
		}
		amountA, amountB, shares, err := e.Router.AddLiquidity(caller, req)
		return bigs(amountA, amountB, shares), err

	case OpRemoveLiquidity:
		req := amm.RemoveLiquidityRequest{
			TokenA:     p.addr("token_a", op.TokenA),
			TokenB:     p.addr("token_b", op.TokenB),
			Shares:     p.amount("amount", op.Amount),
			AmountAMin: p.amount("amount_a_min", op.AmountAMin),
			AmountBMin: p.amount("amount_b_min", op.AmountBMin),
			To:         p.addr("to", op.To),
			Deadline:   unixTime(op.Deadline),
		}
		if p.err != nil {
			return nil, p.err
		}
		amountA, amountB, err := e.Router.RemoveLiquidity(caller, req)
		return bigs(amountA, amountB), err

	case OpEmergency:
		token, amount := p.addr("token", op.Token), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Router.EmergencyWithdraw(caller, token, amount)

	case OpPauseRouter:
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Router.Pause(caller)

	case OpUnpauseRouter:
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Router.Unpause(caller)

	case OpRouterOwner:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Router.TransferOwnership(caller, to)

	case OpLaunch:
		token, supply := p.addr("token", op.Token), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Curve.Launch(caller, token, supply)

	case OpBuy, OpSell:
		token, amount, limit := p.addr("token", op.Token), p.amount("amount", op.Amount), p.amount("limit", op.Limit)
		if p.err != nil {
			return nil, p.err
		}
		var out *big.Int
		var err error
		if op.Op == OpBuy {
			out, err = e.Curve.Buy(caller, token, amount, limit)
		} else {
			out, err = e.Curve.Sell(caller, token, amount, limit)
		}
		return bigs(out), err

	case OpSetThreshold:
		value := p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Graduation.SetGraduationThreshold(caller, value)

	case OpCheckAndGrad, OpExecuteGrad:
		token := p.addr("token", op.Token)
		if p.err != nil {
			return nil, p.err
		}
		var pool common.Address
		var err error
		if op.Op == OpCheckAndGrad {
			pool, err = e.Graduation.CheckAndGraduate(caller, token)
		} else {
			pool, err = e.Graduation.ExecuteGraduation(caller, token)
		}
		if err != nil {
			return nil, err
		}
		return []interface{}{pool.Hex()}, nil

	case OpGradOwner:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Graduation.TransferOwnership(caller, to)

	case OpRenounceGrad:
		if p.err != nil {
			return nil, p.err
		}
		return nil, e.Graduation.RenounceOwnership(caller)

	default:
		return nil, types.ErrUnknownOperation.Wrapf("%q", op.Op)
	}
}

func (e *Engine) applyPool(p *parser, caller common.Address) ([]interface{}, error) {
	op := p.op
	a, b := p.addr("token_a", op.TokenA), p.addr("token_b", op.TokenB)
	if p.err != nil {
		return nil, p.err
	}
	pool, err := e.pool(a, b)
	if err != nil {
		return nil, err
	}

	switch op.Op {
	case OpPoolMint:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		shares, err := pool.Mint(caller, to)
		return bigs(shares), err
	case OpPoolBurn:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		amount0, amount1, err := pool.Burn(caller, to)
		return bigs(amount0, amount1), err
	case OpPoolSwap:
		out0, out1, to := p.amount("amount_a", op.AmountA), p.amount("amount_b", op.AmountB), p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, pool.Swap(caller, out0, out1, to)
	case OpPoolSkim:
		to := p.addr("to", op.To)
		if p.err != nil {
			return nil, p.err
		}
		return nil, pool.Skim(to)
	case OpPoolSync:
		return nil, pool.Sync()
	case OpPausePool:
		return nil, pool.Pause(caller)
	case OpUnpausePool:
		return nil, pool.Unpause(caller)
	case OpTripBreaker:
		return nil, pool.TriggerCircuitBreaker(caller)
	case OpResetBreaker:
		return nil, pool.ResetCircuitBreaker(caller)
	case OpShareTransfer:
		to, amount := p.addr("to", op.To), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, pool.ShareToken().Transfer(caller, to, amount)
	case OpShareApprove:
		to, amount := p.addr("to", op.To), p.amount("amount", op.Amount)
		if p.err != nil {
			return nil, p.err
		}
		return nil, pool.ShareToken().Approve(caller, to, amount)
	}
	return nil, types.ErrUnknownOperation.Wrapf("pool operation %q", op.Op)
}

func (e *Engine) pool(a, b common.Address) (*amm.Pool, error) {
	pool, ok := e.Registry.GetPair(a, b)
	if !ok {
		return nil, errPoolNotFound(a, b)
	}
	return pool, nil
}

func bigs(values ...*big.Int) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, v.String())
		}
	}
	return out
}

func unixTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
