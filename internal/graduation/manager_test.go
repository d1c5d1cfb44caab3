package graduation

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"launchpool/internal/amm"
	"launchpool/internal/curve"
	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/types"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	setter   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	base     = common.HexToAddress("0x00000000000000000000000000000000000000ba")
	token    = common.HexToAddress("0x0000000000000000000000000000000000000070")
	trader   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

type harness struct {
	ledger   *ledger.Ledger
	registry *amm.Registry
	curve    *curve.Curve
	manager  *Manager
	metrics  *amm.Metrics
}

// newHarness launches token with a supply of one million and a virtual
// base reserve of 1000, so a buy of 100 sells 90909 tokens.
func newHarness(t *testing.T, threshold int64) *harness {
	l := ledger.New(ledger.NewManualClock(time.Unix(1_700_000_000, 0), 1), nil)
	metrics, err := amm.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	registry := amm.NewRegistry(l, amm.RegistryOptions{
		Address:     amm.ComponentAddress(deployer, amm.RegistryNonce),
		FeeToSetter: setter,
		Params:      amm.DefaultPoolParams(),
		Metrics:     metrics,
	})
	managerAt := amm.ComponentAddress(deployer, amm.GraduationNonce)
	bonding := curve.New(l, curve.Options{
		Address:   amm.ComponentAddress(deployer, amm.CurveNonce),
		BaseAsset: base,
		Migrator:  managerAt,
		Params:    curve.Params{VirtualBase: big.NewInt(1000)},
	})
	manager, err := NewManager(l, registry, bonding, Options{
		Address:   managerAt,
		Owner:     owner,
		Threshold: big.NewInt(threshold),
		Metrics:   metrics,
	})
	require.NoError(t, err)

	require.NoError(t, bonding.Launch(trader, token, big.NewInt(1_000_000)))
	require.NoError(t, l.Deposit(base, trader, big.NewInt(1_000_000)))
	return &harness{ledger: l, registry: registry, curve: bonding, manager: manager, metrics: metrics}
}

func (h *harness) buy(t *testing.T, baseIn int64) {
	_, err := h.curve.Buy(trader, token, big.NewInt(baseIn), nil)
	require.NoError(t, err)
}

// graduationEvents drains the ledger and returns the names of the pool
// creation and graduation events it emitted, in order.
func (h *harness) graduationEvents(t *testing.T) []string {
	decoder, err := dex.NewEventDecoder()
	require.NoError(t, err)
	watched := map[string]bool{
		dex.EventPairCreated:        true,
		dex.EventAMMPoolCreated:     true,
		dex.EventLiquidityMigrated:  true,
		dex.EventTokensBurned:       true,
		dex.EventGraduationExecuted: true,
	}
	var names []string
	for _, log := range h.ledger.Drain() {
		if !decoder.CanDecode(log.Topic0()) {
			continue
		}
		event, err := decoder.Decode(log)
		require.NoError(t, err)
		if watched[event.EventName] {
			names = append(names, event.EventName)
		}
	}
	return names
}

func TestNewManagerRequiresThreshold(t *testing.T) {
	l := ledger.New(nil, nil)
	_, err := NewManager(l, nil, nil, Options{})
	require.ErrorIs(t, err, types.ErrZeroThreshold)
	_, err = NewManager(l, nil, nil, Options{Threshold: big.NewInt(0)})
	require.ErrorIs(t, err, types.ErrZeroThreshold)
}

func TestThresholdIsStrict(t *testing.T) {
	h := newHarness(t, 90909)
	h.buy(t, 100)

	ok, err := h.manager.CheckGraduation(token)
	require.NoError(t, err)
	require.False(t, ok, "supply equal to the threshold does not qualify")

	_, err = h.manager.CheckAndGraduate(stranger, token)
	require.ErrorIs(t, err, types.ErrTokenNotGraduated)

	require.NoError(t, h.manager.SetGraduationThreshold(owner, big.NewInt(90908)))
	ok, err = h.manager.CheckGraduation(token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAndGraduate(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)
	h.ledger.Drain()

	can, err := h.manager.CanGraduate(token)
	require.NoError(t, err)
	require.True(t, can)

	pool, err := h.manager.CheckAndGraduate(stranger, token)
	require.NoError(t, err)
	want, err := amm.PairFor(h.registry.Address(), token, base)
	require.NoError(t, err)
	require.Equal(t, want, pool)

	p, ok := h.registry.Pool(pool)
	require.True(t, ok)
	rToken, rBase := p.GetReserves()
	if p.Token0() != token {
		rToken, rBase = rBase, rToken
	}
	require.Equal(t, "82644", rToken.String())
	require.Equal(t, "100", rBase.String())
	// floor(sqrt(82644*100)) locked at the dead address
	require.Equal(t, "2874", p.ShareToken().BalanceOf(amm.DeadAddress).String())
	require.Equal(t, "0", h.ledger.BalanceOf(token, h.curve.Address()).String())
	require.Equal(t, "173553", h.ledger.TotalSupply(token).String())

	status, err := h.manager.GetGraduationStatus(token)
	require.NoError(t, err)
	require.True(t, status.IsGraduated)
	require.Equal(t, pool, status.Pool)
	require.Equal(t, "90909", status.CurrentSupply.String())

	record, ok := h.manager.Record(token)
	require.True(t, ok)
	require.True(t, record.IsGraduated)
	require.Equal(t, pool.Hex(), record.Pool)

	require.Equal(t, []string{
		dex.EventPairCreated,
		dex.EventAMMPoolCreated,
		dex.EventLiquidityMigrated,
		dex.EventTokensBurned,
		dex.EventGraduationExecuted,
	}, h.graduationEvents(t))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Graduations))
}

func TestGraduationIsOneWay(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)

	pool, err := h.manager.CheckAndGraduate(stranger, token)
	require.NoError(t, err)

	_, err = h.manager.CheckAndGraduate(stranger, token)
	require.ErrorIs(t, err, types.ErrAlreadyGraduated)
	_, err = h.manager.ExecuteGraduation(owner, token)
	require.ErrorIs(t, err, types.ErrAlreadyGraduated)

	can, err := h.manager.CanGraduate(token)
	require.NoError(t, err)
	require.False(t, can)

	_, err = h.curve.Buy(trader, token, big.NewInt(10), nil)
	require.ErrorIs(t, err, types.ErrMarketClosed)

	status, err := h.manager.GetGraduationStatus(token)
	require.NoError(t, err)
	require.Equal(t, pool, status.Pool)
	require.Equal(t, uint64(1), h.registry.AllPairsLength())
}

func TestExecuteGraduationIsOwnerOnly(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)

	_, err := h.manager.ExecuteGraduation(stranger, token)
	require.ErrorIs(t, err, types.ErrNotOwner)

	_, err = h.manager.ExecuteGraduation(owner, token)
	require.NoError(t, err)
}

func TestExecuteGraduationStillNeedsThreshold(t *testing.T) {
	h := newHarness(t, 1_000_000)
	h.buy(t, 100)

	_, err := h.manager.ExecuteGraduation(owner, token)
	require.ErrorIs(t, err, types.ErrTokenNotGraduated)
}

func TestSupplyCanFallBackBelowThreshold(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)

	_, err := h.curve.Sell(trader, token, big.NewInt(50_000), nil)
	require.NoError(t, err)

	ok, err := h.manager.CheckGraduation(token)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = h.manager.CheckAndGraduate(stranger, token)
	require.ErrorIs(t, err, types.ErrTokenNotGraduated)
}

func TestGraduationReusesExistingPool(t *testing.T) {
	h := newHarness(t, 50_000)
	existing, err := h.registry.CreatePair(base, token)
	require.NoError(t, err)
	h.buy(t, 100)
	h.ledger.Drain()

	pool, err := h.manager.CheckAndGraduate(stranger, token)
	require.NoError(t, err)
	require.Equal(t, existing.Address(), pool)
	require.Equal(t, uint64(1), h.registry.AllPairsLength())
	require.Equal(t, []string{
		dex.EventLiquidityMigrated,
		dex.EventTokensBurned,
		dex.EventGraduationExecuted,
	}, h.graduationEvents(t))
}

func TestFailedGraduationRollsBack(t *testing.T) {
	h := newHarness(t, 50_000)
	existing, err := h.registry.CreatePair(token, base)
	require.NoError(t, err)
	require.NoError(t, existing.Pause(setter))
	h.buy(t, 100)
	h.ledger.Drain()

	_, err = h.manager.CheckAndGraduate(stranger, token)
	require.ErrorIs(t, err, types.ErrPaused)

	_, ok := h.manager.Record(token)
	require.False(t, ok)
	require.Equal(t, "909091", h.ledger.BalanceOf(token, h.curve.Address()).String())
	require.Empty(t, h.ledger.Drain())

	h.buy(t, 1)
}

func TestThresholdAdministration(t *testing.T) {
	h := newHarness(t, 100)

	require.ErrorIs(t, h.manager.SetGraduationThreshold(stranger, big.NewInt(5)), types.ErrNotOwner)
	require.ErrorIs(t, h.manager.SetGraduationThreshold(owner, big.NewInt(0)), types.ErrZeroThreshold)
	require.ErrorIs(t, h.manager.SetGraduationThreshold(owner, nil), types.ErrZeroThreshold)
	require.NoError(t, h.manager.SetGraduationThreshold(owner, big.NewInt(5)))
	require.Equal(t, "5", h.manager.Threshold().String())
}

func TestRenounceOwnership(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)

	require.ErrorIs(t, h.manager.RenounceOwnership(stranger), types.ErrNotOwner)
	require.NoError(t, h.manager.TransferOwnership(owner, stranger))
	require.NoError(t, h.manager.RenounceOwnership(stranger))
	require.Equal(t, common.Address{}, h.manager.Owner())

	_, err := h.manager.ExecuteGraduation(stranger, token)
	require.ErrorIs(t, err, types.ErrNotOwner)
	require.ErrorIs(t, h.manager.SetGraduationThreshold(stranger, big.NewInt(1)), types.ErrNotOwner)

	_, err = h.manager.CheckAndGraduate(trader, token)
	require.NoError(t, err)
}

func TestManagerStateRoundTrip(t *testing.T) {
	h := newHarness(t, 50_000)
	h.buy(t, 100)
	_, err := h.manager.CheckAndGraduate(stranger, token)
	require.NoError(t, err)

	state := h.manager.ExportState()
	fresh := newHarness(t, 1)
	require.NoError(t, fresh.manager.RestoreState(state))
	require.Equal(t, state, fresh.manager.ExportState())

	_, err = fresh.manager.CheckAndGraduate(stranger, token)
	require.ErrorIs(t, err, types.ErrAlreadyGraduated)
}
