package amm

import (
	"math/big"
	"time"

	"launchpool/internal/types"
)

// Swap fee is 0.3%, applied to the input side.
const (
	FeeNumerator   = 997
	FeeDenominator = 1000
)

var (
	feeNum   = big.NewInt(FeeNumerator)
	feeDen   = big.NewInt(FeeDenominator)
	feeTaken = big.NewInt(FeeDenominator - FeeNumerator)
	bpsDen   = big.NewInt(10_000)
	priceOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// GetAmountOut returns the output a pool with the given reserves pays for
// amountIn: reserveOut*amountIn*997 / (reserveIn*1000 + amountIn*997).
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !positive(amountIn) {
		return nil, types.ErrInsufficientInputAmount.Wrapf("amount in %v", amountIn)
	}
	if !positive(reserveIn) || !positive(reserveOut) {
		return nil, types.ErrInsufficientLiquidity.Wrapf("reserves %v/%v", reserveIn, reserveOut)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, feeNum)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDen)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Quo(numerator, denominator), nil
}

// GetAmountIn returns the smallest input that yields amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !positive(amountOut) {
		return nil, types.ErrInsufficientOutputAmount.Wrapf("amount out %v", amountOut)
	}
	if !positive(reserveIn) || !positive(reserveOut) {
		return nil, types.ErrInsufficientLiquidity.Wrapf("reserves %v/%v", reserveIn, reserveOut)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, types.ErrInsufficientLiquidity.Wrapf("amount out %s exceeds reserve %s", amountOut, reserveOut)
	}
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDen)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNum)
	amountIn := numerator.Quo(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// Quote returns the amount of B equivalent to amountA at the reserve ratio.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if !positive(amountA) {
		return nil, types.ErrInsufficientInputAmount.Wrapf("amount %v", amountA)
	}
	if !positive(reserveA) || !positive(reserveB) {
		return nil, types.ErrInsufficientLiquidity.Wrapf("reserves %v/%v", reserveA, reserveB)
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Quo(out, reserveA), nil
}

// spotPrice is reserve1/reserve0 scaled by 1e18; zero for an empty pool.
func spotPrice(reserve0, reserve1 *big.Int) *big.Int {
	if reserve0.Sign() == 0 {
		return new(big.Int)
	}
	price := new(big.Int).Mul(reserve1, priceOne)
	return price.Quo(price, reserve0)
}

// priceChangeBps is |after-before|/before in basis points.
func priceChangeBps(before, after *big.Int) *big.Int {
	if before.Sign() == 0 {
		return new(big.Int)
	}
	diff := new(big.Int).Sub(after, before)
	diff.Abs(diff)
	diff.Mul(diff, bpsDen)
	return diff.Quo(diff, before)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func unixBig(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}
