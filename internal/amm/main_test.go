package amm

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"launchpool/internal/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")

	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	setter   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

var start = time.Unix(1_700_000_000, 0).UTC()

type fixture struct {
	t        require.TestingT
	clock    *ledger.ManualClock
	ledger   *ledger.Ledger
	registry *Registry
	router   *Router
}

func newFixture(t require.TestingT, params PoolParams) *fixture {
	clock := ledger.NewManualClock(start, 1)
	l := ledger.New(clock, nil)
	registry := NewRegistry(l, RegistryOptions{
		Address:     ComponentAddress(deployer, RegistryNonce),
		FeeToSetter: setter,
		Params:      params,
	})
	router := NewRouter(l, registry, ComponentAddress(deployer, RouterNonce), owner, nil, nil)
	f := &fixture{t: t, clock: clock, ledger: l, registry: registry, router: router}
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		f.fund(token, alice, 1_000_000_000_000)
	}
	return f
}

func (f *fixture) fund(asset, holder common.Address, amount int64) {
	require.NoError(f.t, f.ledger.Deposit(asset, holder, big.NewInt(amount)))
}

func (f *fixture) balance(asset, holder common.Address) string {
	return f.ledger.BalanceOf(asset, holder).String()
}

// seed creates the a/b pool and adds the first liquidity from alice.
func (f *fixture) seed(a, b common.Address, amountA, amountB int64) *Pool {
	pool, ok := f.registry.GetPair(a, b)
	if !ok {
		var err error
		pool, err = f.registry.CreatePair(a, b)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, f.ledger.Transfer(alice, a, pool.Address(), big.NewInt(amountA)))
	require.NoError(f.t, f.ledger.Transfer(alice, b, pool.Address(), big.NewInt(amountB)))
	_, err := pool.Mint(alice, alice)
	require.NoError(f.t, err)
	return pool
}

// swapIn sends amountIn of tokenIn from alice and takes the quoted output,
// all in one transaction.
func (f *fixture) swapIn(pool *Pool, tokenIn common.Address, amountIn int64, to common.Address) (*big.Int, error) {
	var out *big.Int
	err := f.ledger.Update(func(tx *ledger.Tx) error {
		reserveIn, reserveOut := pool.reserve0, pool.reserve1
		if tokenIn != pool.token0 {
			reserveIn, reserveOut = reserveOut, reserveIn
		}
		var err error
		if out, err = GetAmountOut(big.NewInt(amountIn), reserveIn, reserveOut); err != nil {
			return err
		}
		if err := tx.Transfer(tokenIn, alice, pool.address, big.NewInt(amountIn)); err != nil {
			return err
		}
		amount0Out, amount1Out := new(big.Int), out
		if tokenIn != pool.token0 {
			amount0Out, amount1Out = out, new(big.Int)
		}
		return pool.swap(tx, alice, amount0Out, amount1Out, to)
	})
	return out, err
}

func noLimits() PoolParams {
	return PoolParams{CircuitBreakerCooldown: time.Hour}
}

func amounts(values ...*big.Int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}

func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}
