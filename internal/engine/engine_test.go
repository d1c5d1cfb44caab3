package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"launchpool/internal/amm"
	"launchpool/internal/curve"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	base     = common.HexToAddress("0x00000000000000000000000000000000000000ba")
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	meme     = common.HexToAddress("0x0000000000000000000000000000000000000070")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	start    = uint64(1_700_000_000)
)

type script struct {
	t      *testing.T
	engine *Engine
	seq    uint64
}

func testConfig() Config {
	return Config{
		Deployer:  deployer,
		BaseAsset: base,
		Threshold: big.NewInt(50_000),
		Pool:      amm.DefaultPoolParams(),
		Curve:     curve.Params{VirtualBase: big.NewInt(1000)},
	}
}

func newScript(t *testing.T, metrics *amm.Metrics) *script {
	e, err := New(testConfig(), ledger.NewManualClock(time.Unix(int64(start), 0), 1), nil, metrics)
	require.NoError(t, err)
	return &script{t: t, engine: e}
}

func (s *script) apply(op model.Operation) model.OpResult {
	s.seq++
	op.Seq = s.seq
	if op.Timestamp == 0 {
		op.Timestamp = start + s.seq
		op.Round = 1
	}
	return s.engine.Apply(op)
}

func (s *script) ok(op model.Operation) []string {
	result := s.apply(op)
	require.True(s.t, result.OK, "%s rejected: %s", op.Op, result.Error)
	return result.Outputs
}

// seedPool funds alice and adds 4000 A / 1000 B through the router.
func (s *script) seedPool() {
	s.ok(model.Operation{Op: OpDeposit, Token: tokenA.Hex(), To: alice.Hex(), Amount: "1000000"})
	s.ok(model.Operation{Op: OpDeposit, Token: tokenB.Hex(), To: alice.Hex(), Amount: "1000000"})
	out := s.ok(model.Operation{
		Op:       OpAddLiquidity,
		Caller:   alice.Hex(),
		TokenA:   tokenA.Hex(),
		TokenB:   tokenB.Hex(),
		AmountA:  "4000",
		AmountB:  "1000",
		To:       alice.Hex(),
		Deadline: start + 1000,
	})
	require.Equal(s.t, []string{"4000", "1000", "2000"}, out)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Deployer = common.Address{}
	_, err := New(cfg, nil, nil, nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.BaseAsset = common.Address{}
	_, err = New(cfg, nil, nil, nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Threshold = nil
	_, err = New(cfg, nil, nil, nil)
	require.ErrorIs(t, err, types.ErrZeroThreshold)
}

func TestNewDerivesComponentAddresses(t *testing.T) {
	s := newScript(t, nil)
	require.Equal(t, amm.ComponentAddress(deployer, amm.RegistryNonce), s.engine.Registry.Address())
	require.Equal(t, amm.ComponentAddress(deployer, amm.CurveNonce), s.engine.Curve.Address())
	require.Equal(t, amm.ComponentAddress(deployer, amm.GraduationNonce), s.engine.Graduation.Address())
	require.Equal(t, deployer, s.engine.Router.Owner())
	require.Equal(t, deployer, s.engine.Graduation.Owner())
	require.Equal(t, deployer, s.engine.Registry.FeeToSetter())
}

func TestNewWarnsWhenVolumeCapDisabled(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	_, err := New(testConfig(), nil, zap.New(core), nil)
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("per-round volume cap disabled").Len())
	require.Zero(t, logs.FilterMessage("per-swap price change bound disabled").Len())

	core, logs = observer.New(zap.WarnLevel)
	cfg := testConfig()
	cfg.Pool.MaxVolumePerRound = big.NewInt(1_000_000)
	_, err = New(cfg, nil, zap.New(core), nil)
	require.NoError(t, err)
	require.Zero(t, logs.Len())
}

func TestApplyLiquidityAndSwap(t *testing.T) {
	s := newScript(t, nil)
	s.seedPool()

	out := s.ok(model.Operation{
		Op:       OpSwapExactIn,
		Caller:   alice.Hex(),
		Path:     []string{tokenA.Hex(), tokenB.Hex()},
		Amount:   "100",
		Limit:    "1",
		To:       bob.Hex(),
		Deadline: start + 1000,
	})
	// 100*997*1000 / (4000*1000 + 100*997)
	require.Equal(t, []string{"100", "24"}, out)
	require.Equal(t, "24", s.engine.Ledger.BalanceOf(tokenB, bob).String())

	pool, ok := s.engine.Registry.GetPair(tokenA, tokenB)
	require.True(t, ok)
	out = s.ok(model.Operation{Op: OpShareTransfer, Caller: alice.Hex(), TokenA: tokenA.Hex(), TokenB: tokenB.Hex(), To: bob.Hex(), Amount: "500"})
	require.Empty(t, out)
	require.Equal(t, "500", pool.ShareToken().BalanceOf(bob).String())

	logs := s.engine.Drain()
	require.NotEmpty(t, logs)
	require.Empty(t, s.engine.Drain())
}

func TestSwapMetricsCountEachSwapOnce(t *testing.T) {
	metrics, err := amm.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := newScript(t, metrics)
	s.seedPool()
	pool, ok := s.engine.Registry.GetPair(tokenA, tokenB)
	require.True(t, ok)
	addr := pool.Address().Hex()

	s.ok(model.Operation{
		Op:       OpSwapExactIn,
		Caller:   alice.Hex(),
		Path:     []string{tokenA.Hex(), tokenB.Hex()},
		Amount:   "100",
		To:       bob.Hex(),
		Deadline: start + 1000,
	})
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.SwapsTotal.WithLabelValues(addr, "ok")))
	require.Equal(t, float64(100), testutil.ToFloat64(metrics.SwapVolume.WithLabelValues(addr, tokenA.Hex())))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.SwapVolume.WithLabelValues(addr, tokenB.Hex())))

	// Nothing was sent in, so the pool refuses to pay out.
	result := s.apply(model.Operation{
		Op:      OpPoolSwap,
		Caller:  alice.Hex(),
		TokenA:  tokenA.Hex(),
		TokenB:  tokenB.Hex(),
		AmountB: "10",
		To:      bob.Hex(),
	})
	require.False(t, result.OK)
	require.Equal(t, types.ErrInsufficientInputAmount.ABCICode(), result.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.SwapsTotal.WithLabelValues(addr, "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.SwapsTotal.WithLabelValues(addr, "rejected")))
}

func TestApplyReportsRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := amm.NewMetrics(reg)
	require.NoError(t, err)
	s := newScript(t, metrics)
	s.seedPool()

	tests := []struct {
		name string
		op   model.Operation
		err  interface{ ABCICode() uint32 }
	}{
		{
			name: "duplicate pair",
			op:   model.Operation{Op: OpCreatePair, TokenA: tokenB.Hex(), TokenB: tokenA.Hex()},
			err:  types.ErrPairExists,
		},
		{
			name: "bad amount",
			op:   model.Operation{Op: OpDeposit, Token: tokenA.Hex(), To: alice.Hex(), Amount: "ten"},
			err:  types.ErrInvalidAmount,
		},
		{
			name: "expired deadline",
			op: model.Operation{
				Op: OpSwapExactIn, Caller: alice.Hex(), Amount: "100",
				Path: []string{tokenA.Hex(), tokenB.Hex()}, To: alice.Hex(),
			},
			err: types.ErrExpired,
		},
		{
			name: "missing pool",
			op:   model.Operation{Op: OpPoolSync, TokenA: tokenA.Hex(), TokenB: base.Hex()},
			err:  types.ErrPoolNotFound,
		},
		{
			name: "router owner only",
			op:   model.Operation{Op: OpPauseRouter, Caller: alice.Hex()},
			err:  types.ErrNotOwner,
		},
		{
			name: "pool guardian only",
			op:   model.Operation{Op: OpPausePool, Caller: alice.Hex(), TokenA: tokenA.Hex(), TokenB: tokenB.Hex()},
			err:  types.ErrForbidden,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := s.apply(tc.op)
			require.False(t, result.OK)
			require.Equal(t, types.Codespace, result.Codespace)
			require.Equal(t, tc.err.ABCICode(), result.Code)
			require.NotEmpty(t, result.Error)
			require.Empty(t, result.Outputs)
		})
	}
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Rejections.WithLabelValues(OpCreatePair, "launchpool/20")))

	result := s.apply(model.Operation{Op: "warp_drive"})
	require.False(t, result.OK)
	require.Equal(t, types.ErrUnknownOperation.ABCICode(), result.Code)
	require.Contains(t, result.Error, "warp_drive")

	result = s.apply(model.Operation{Op: OpDeposit, Token: "nope", To: alice.Hex(), Amount: "1"})
	require.False(t, result.OK)
	require.Equal(t, types.ErrInvalidAddress.ABCICode(), result.Code)
}

func TestApplyAdvancesClock(t *testing.T) {
	s := newScript(t, nil)
	s.apply(model.Operation{Op: OpDeposit, Token: tokenA.Hex(), To: alice.Hex(), Amount: "1", Round: 7, Timestamp: start + 500})

	require.Equal(t, uint64(7), s.engine.clock.Round())
	require.Equal(t, int64(start+500), s.engine.clock.Now().Unix())
	logs := s.engine.Drain()
	require.Empty(t, logs)
}

func TestApplyLaunchBuyAndGraduate(t *testing.T) {
	s := newScript(t, nil)
	creator := bob.Hex()

	s.ok(model.Operation{Op: OpLaunch, Caller: creator, Token: meme.Hex(), Amount: "1000000"})
	s.ok(model.Operation{Op: OpDeposit, Token: base.Hex(), To: alice.Hex(), Amount: "1000"})

	result := s.apply(model.Operation{Op: OpBuy, Caller: alice.Hex(), Token: meme.Hex(), Amount: "100", Limit: "90910"})
	require.False(t, result.OK)
	require.Equal(t, types.ErrInsufficientOutputAmount.ABCICode(), result.Code)

	require.Equal(t, []string{"90909"}, s.ok(model.Operation{Op: OpBuy, Caller: alice.Hex(), Token: meme.Hex(), Amount: "100", Limit: "90909"}))

	result = s.apply(model.Operation{Op: OpExecuteGrad, Caller: alice.Hex(), Token: meme.Hex()})
	require.Equal(t, types.ErrNotOwner.ABCICode(), result.Code)

	out := s.ok(model.Operation{Op: OpCheckAndGrad, Caller: alice.Hex(), Token: meme.Hex()})
	want, err := amm.PairFor(s.engine.Registry.Address(), meme, base)
	require.NoError(t, err)
	require.Equal(t, []string{want.Hex()}, out)

	result = s.apply(model.Operation{Op: OpCheckAndGrad, Caller: alice.Hex(), Token: meme.Hex()})
	require.Equal(t, types.ErrAlreadyGraduated.ABCICode(), result.Code)

	result = s.apply(model.Operation{Op: OpSell, Caller: alice.Hex(), Token: meme.Hex(), Amount: "10"})
	require.Equal(t, types.ErrMarketClosed.ABCICode(), result.Code)
}

func TestApplyOwnershipOperations(t *testing.T) {
	s := newScript(t, nil)

	s.ok(model.Operation{Op: OpRouterOwner, Caller: deployer.Hex(), To: alice.Hex()})
	require.Equal(t, alice, s.engine.Router.Owner())
	s.ok(model.Operation{Op: OpPauseRouter, Caller: alice.Hex()})
	require.True(t, s.engine.Router.IsPaused())
	s.ok(model.Operation{Op: OpUnpauseRouter, Caller: alice.Hex()})

	s.ok(model.Operation{Op: OpSetThreshold, Caller: deployer.Hex(), Amount: "7"})
	require.Equal(t, "7", s.engine.Graduation.Threshold().String())

	s.ok(model.Operation{Op: OpGradOwner, Caller: deployer.Hex(), To: bob.Hex()})
	s.ok(model.Operation{Op: OpRenounceGrad, Caller: bob.Hex()})
	require.Equal(t, common.Address{}, s.engine.Graduation.Owner())

	s.ok(model.Operation{Op: OpSetFeeTo, Caller: deployer.Hex(), To: bob.Hex()})
	require.Equal(t, bob, s.engine.Registry.FeeTo())
	s.ok(model.Operation{Op: OpSetFeeToSetter, Caller: deployer.Hex(), To: bob.Hex()})
	require.Equal(t, bob, s.engine.Registry.FeeToSetter())
}

func TestSnapshotRestore(t *testing.T) {
	s := newScript(t, nil)
	s.seedPool()
	s.ok(model.Operation{Op: OpSetFeeTo, Caller: deployer.Hex(), To: bob.Hex()})
	s.ok(model.Operation{Op: OpShareApprove, Caller: alice.Hex(), TokenA: tokenA.Hex(), TokenB: tokenB.Hex(), To: bob.Hex(), Amount: "77"})
	s.ok(model.Operation{Op: OpLaunch, Caller: bob.Hex(), Token: meme.Hex(), Amount: "1000000"})
	s.ok(model.Operation{Op: OpDeposit, Token: base.Hex(), To: alice.Hex(), Amount: "1000"})
	s.ok(model.Operation{Op: OpBuy, Caller: alice.Hex(), Token: meme.Hex(), Amount: "100"})
	s.ok(model.Operation{Op: OpCheckAndGrad, Caller: alice.Hex(), Token: meme.Hex()})

	snap := s.engine.Snapshot()
	require.Len(t, snap.Pools, 2)
	require.Len(t, snap.Markets, 1)
	require.Len(t, snap.Graduations, 1)

	restored := newScript(t, nil)
	require.NoError(t, restored.engine.Restore(snap))
	require.Equal(t, snap, restored.engine.Snapshot())

	// Restored pools keep trading where the original left off.
	restored.seq = s.seq
	out := restored.ok(model.Operation{
		Op:       OpSwapExactIn,
		Caller:   alice.Hex(),
		Path:     []string{tokenA.Hex(), tokenB.Hex()},
		Amount:   "100",
		To:       alice.Hex(),
		Deadline: start + 1000,
	})
	require.Equal(t, []string{"100", "24"}, out)

	require.Error(t, restored.engine.Restore(snap), "restoring twice must fail")
}
