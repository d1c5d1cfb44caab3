package amm

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"launchpool/internal/types"
)

func TestRouterRejectsExpiredDeadline(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 1000)
	past := start.Add(-time.Second)

	_, err := f.router.SwapExactTokensForTokens(alice, bigInt(100), nil, []common.Address{tokenA, tokenB}, bob, past)
	require.ErrorIs(t, err, types.ErrExpired)

	// Fails the same way even when every other argument is invalid.
	_, err = f.router.SwapExactTokensForTokens(alice, nil, nil, nil, common.Address{}, past)
	require.ErrorIs(t, err, types.ErrExpired)

	_, err = f.router.SwapExactTokensForTokens(alice, bigInt(100), nil, []common.Address{tokenA, tokenB}, bob, start)
	require.NoError(t, err, "a deadline equal to now is still valid")
}

func TestMultiHopMatchesPairwiseQuotes(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 1000)
	f.seed(tokenB, tokenC, 1000, 2000)
	path := []common.Address{tokenA, tokenB, tokenC}

	quoted, err := f.router.GetAmountsOut(bigInt(100), path)
	require.NoError(t, err)

	hop1, err := GetAmountOut(bigInt(100), bigInt(1000), bigInt(1000))
	require.NoError(t, err)
	hop2, err := GetAmountOut(hop1, bigInt(1000), bigInt(2000))
	require.NoError(t, err)
	require.Equal(t, []string{"100", hop1.String(), hop2.String()}, amounts(quoted...))

	got, err := f.router.SwapExactTokensForTokens(alice, bigInt(100), hop2, path, bob, start.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, amounts(quoted...), amounts(got...))
	require.Equal(t, hop2.String(), f.balance(tokenC, bob))
	require.Equal(t, "0", f.balance(tokenB, f.router.Address()))
}

func TestMultiHopRollsBackEarlierHops(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	ab := f.seed(tokenA, tokenB, 1000, 1000)
	bc := f.seed(tokenB, tokenC, 1000, 2000)
	require.NoError(t, bc.Pause(setter))
	aliceA := f.balance(tokenA, alice)
	f.ledger.Drain()

	_, err := f.router.SwapExactTokensForTokens(alice, bigInt(100), nil, []common.Address{tokenA, tokenB, tokenC}, bob, start)
	require.ErrorIs(t, err, types.ErrPaused)

	require.Equal(t, aliceA, f.balance(tokenA, alice))
	r0, r1 := ab.GetReserves()
	require.Equal(t, []string{"1000", "1000"}, amounts(r0, r1))
	require.Equal(t, "1000", f.balance(tokenA, ab.Address()))
	require.Empty(t, f.ledger.Drain())
}

func TestSwapMinimumOutput(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 1000)

	_, err := f.router.SwapExactTokensForTokens(alice, bigInt(100), bigInt(91), []common.Address{tokenA, tokenB}, bob, start)
	require.ErrorIs(t, err, types.ErrInsufficientOutputAmount)

	_, err = f.router.SwapExactTokensForTokens(alice, bigInt(100), nil, []common.Address{tokenA}, bob, start)
	require.ErrorIs(t, err, types.ErrInvalidPath)

	_, err = f.router.SwapExactTokensForTokens(alice, bigInt(100), nil, []common.Address{tokenA, tokenC}, bob, start)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestSwapTokensForExactTokens(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 1000)
	path := []common.Address{tokenA, tokenB}

	_, err := f.router.SwapTokensForExactTokens(alice, bigInt(90), nil, path, bob, start)
	require.ErrorIs(t, err, types.ErrExcessiveInputAmount)
	_, err = f.router.SwapTokensForExactTokens(alice, bigInt(90), bigInt(99), path, bob, start)
	require.ErrorIs(t, err, types.ErrExcessiveInputAmount)

	got, err := f.router.SwapTokensForExactTokens(alice, bigInt(90), bigInt(100), path, bob, start)
	require.NoError(t, err)
	require.Equal(t, []string{"100", "90"}, amounts(got...))
	require.Equal(t, "90", f.balance(tokenB, bob))
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	beforeA, beforeB := f.balance(tokenA, alice), f.balance(tokenB, alice)

	amountA, amountB, shares, err := f.router.AddLiquidity(alice, AddLiquidityRequest{
		TokenA:         tokenB,
		TokenB:         tokenA,
		AmountADesired: bigInt(4000),
		AmountBDesired: bigInt(1000),
		To:             alice,
		Deadline:       start,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"4000", "1000", "2000"}, amounts(amountA, amountB, shares))
	require.Equal(t, uint64(1), f.registry.AllPairsLength())

	amountA, amountB, shares, err = f.router.AddLiquidity(alice, AddLiquidityRequest{
		TokenA:         tokenA,
		TokenB:         tokenB,
		AmountADesired: bigInt(100),
		AmountBDesired: bigInt(1000),
		To:             alice,
		Deadline:       start,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"100", "400", "200"}, amounts(amountA, amountB, shares))

	pool, ok := f.registry.GetPair(tokenA, tokenB)
	require.True(t, ok)
	held := pool.ShareToken().BalanceOf(alice)
	require.Equal(t, "2200", held.String())

	outA, outB, err := f.router.RemoveLiquidity(alice, RemoveLiquidityRequest{
		TokenA:   tokenA,
		TokenB:   tokenB,
		Shares:   held,
		To:       alice,
		Deadline: start,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"1100", "4400"}, amounts(outA, outB))
	require.Equal(t, beforeA, f.balance(tokenA, alice))
	require.Equal(t, beforeB, f.balance(tokenB, alice))
	require.Equal(t, "0", pool.ShareToken().TotalSupply().String())
}

func TestAddLiquidityMinimums(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 4000)

	_, _, _, err := f.router.AddLiquidity(alice, AddLiquidityRequest{
		TokenA:         tokenA,
		TokenB:         tokenB,
		AmountADesired: bigInt(100),
		AmountBDesired: bigInt(1000),
		AmountBMin:     bigInt(500),
		To:             alice,
		Deadline:       start,
	})
	require.ErrorIs(t, err, types.ErrInsufficientBAmount)

	_, _, _, err = f.router.AddLiquidity(alice, AddLiquidityRequest{
		TokenA:         tokenA,
		TokenB:         tokenB,
		AmountADesired: bigInt(100),
		AmountBDesired: bigInt(200),
		AmountAMin:     bigInt(60),
		To:             alice,
		Deadline:       start,
	})
	require.ErrorIs(t, err, types.ErrInsufficientAAmount)
}

func TestRemoveLiquidityMinimums(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	pool := f.seed(tokenA, tokenB, 1000, 4000)

	_, _, err := f.router.RemoveLiquidity(alice, RemoveLiquidityRequest{
		TokenA:     tokenB,
		TokenB:     tokenA,
		Shares:     bigInt(1000),
		AmountAMin: bigInt(2001),
		To:         alice,
		Deadline:   start,
	})
	require.ErrorIs(t, err, types.ErrInsufficientAAmount)
	require.Equal(t, "2000", pool.ShareToken().BalanceOf(alice).String())
}

func TestRouterPause(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.seed(tokenA, tokenB, 1000, 1000)
	path := []common.Address{tokenA, tokenB}

	require.ErrorIs(t, f.router.Pause(alice), types.ErrNotOwner)
	require.NoError(t, f.router.Pause(owner))
	require.True(t, f.router.IsPaused())

	_, err := f.router.SwapExactTokensForTokens(alice, bigInt(10), nil, path, bob, start)
	require.ErrorIs(t, err, types.ErrPaused)
	_, err = f.router.SwapExactTokensForTokens(alice, bigInt(10), nil, path, bob, start.Add(-time.Second))
	require.ErrorIs(t, err, types.ErrExpired, "an expired deadline wins over the pause")

	require.NoError(t, f.router.Unpause(owner))
	require.ErrorIs(t, f.router.Unpause(owner), types.ErrNotPaused)
	_, err = f.router.SwapExactTokensForTokens(alice, bigInt(10), nil, path, bob, start)
	require.NoError(t, err)
}

func TestEmergencyWithdraw(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	f.fund(tokenA, f.router.Address(), 50)

	require.ErrorIs(t, f.router.EmergencyWithdraw(alice, tokenA, bigInt(50)), types.ErrNotOwner)
	require.ErrorIs(t, f.router.EmergencyWithdraw(owner, tokenA, bigInt(0)), types.ErrZeroAmount)
	require.ErrorIs(t, f.router.EmergencyWithdraw(owner, tokenA, bigInt(51)), types.ErrInsufficientBalance)

	require.NoError(t, f.router.EmergencyWithdraw(owner, tokenA, bigInt(50)))
	require.Equal(t, "50", f.balance(tokenA, owner))
	require.Equal(t, "0", f.balance(tokenA, f.router.Address()))
}

func TestRouterOwnership(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())

	require.ErrorIs(t, f.router.TransferOwnership(alice, alice), types.ErrNotOwner)
	require.ErrorIs(t, f.router.TransferOwnership(owner, common.Address{}), types.ErrZeroAddress)
	require.NoError(t, f.router.TransferOwnership(owner, bob))
	require.Equal(t, bob, f.router.Owner())
	require.ErrorIs(t, f.router.Pause(owner), types.ErrNotOwner)
}

func TestQuoteThroughRouter(t *testing.T) {
	f := newFixture(t, DefaultPoolParams())
	out, err := f.router.Quote(bigInt(10), bigInt(100), big.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, "30", out.String())

	f.seed(tokenA, tokenB, 1000, 1000)
	in, err := f.router.GetAmountsIn(bigInt(90), []common.Address{tokenA, tokenB})
	require.NoError(t, err)
	require.Equal(t, []string{"100", "90"}, amounts(in...))
}
