// Package graduation moves bonding-curve tokens into constant-product pools
// once their sold supply crosses a configured threshold.
package graduation

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

// BondingCurve is the market a token trades on before graduation.
type BondingCurve interface {
	BaseAsset() common.Address
	CurrentSupplyTx(tx *ledger.Tx, token common.Address) (*big.Int, error)
	MigrateTx(tx *ledger.Tx, caller, token, pool common.Address) (tokenAmount, baseAmount *big.Int, err error)
	BurnInventoryTx(tx *ledger.Tx, caller, token common.Address) (*big.Int, error)
}

// Options configures a Manager.
type Options struct {
	Address   common.Address
	Owner     common.Address
	Threshold *big.Int
	Logger    *zap.Logger
	Metrics   *amm.Metrics
}

// Status is the read-only graduation view of one token.
type Status struct {
	IsGraduated   bool
	CurrentSupply *big.Int
	Threshold     *big.Int
	Pool          common.Address
}

type record struct {
	graduated bool
	pool      common.Address
}

// Manager owns the one-way graduation state of every curve token.
type Manager struct {
	amm.Ownable

	address   common.Address
	ledger    *ledger.Ledger
	registry  *amm.Registry
	curve     BondingCurve
	threshold *big.Int
	records   map[common.Address]*record
	logger    *zap.Logger
	metrics   *amm.Metrics
}

// NewManager builds a manager. The threshold has no default and must be positive.
func NewManager(l *ledger.Ledger, registry *amm.Registry, curve BondingCurve, opts Options) (*Manager, error) {
	if opts.Threshold == nil || opts.Threshold.Sign() <= 0 {
		return nil, types.ErrZeroThreshold.Wrapf("graduation threshold %v", opts.Threshold)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		Ownable:   amm.NewOwnable(opts.Address, opts.Owner),
		address:   opts.Address,
		ledger:    l,
		registry:  registry,
		curve:     curve,
		threshold: new(big.Int).Set(opts.Threshold),
		records:   make(map[common.Address]*record),
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Address returns the manager handle.
func (m *Manager) Address() common.Address { return m.address }

// Owner returns the current owner; zero once renounced.
func (m *Manager) Owner() common.Address {
	var out common.Address
	_ = m.ledger.View(func(*ledger.Tx) error {
		out = m.OwnerUnsafe()
		return nil
	})
	return out
}

// Threshold returns the graduation threshold.
func (m *Manager) Threshold() *big.Int {
	var out *big.Int
	_ = m.ledger.View(func(*ledger.Tx) error {
		out = new(big.Int).Set(m.threshold)
		return nil
	})
	return out
}

// SetGraduationThreshold changes the threshold. Owner only.
func (m *Manager) SetGraduationThreshold(caller common.Address, value *big.Int) error {
	return m.ledger.Update(func(tx *ledger.Tx) error {
		if err := m.CheckOwner(caller); err != nil {
			return err
		}
		if value == nil || value.Sign() <= 0 {
			return types.ErrZeroThreshold.Wrapf("threshold %v", value)
		}
		old := m.threshold
		if err := ledger.Set(tx, &m.threshold, new(big.Int).Set(value)); err != nil {
			return err
		}
		return amm.Emit(tx, m.address, dex.EventThresholdUpdated, old, value)
	})
}

// CheckGraduation reports whether token's sold supply is strictly above the threshold.
func (m *Manager) CheckGraduation(token common.Address) (bool, error) {
	var out bool
	err := m.ledger.View(func(tx *ledger.Tx) error {
		var err error
		out, err = m.checkGraduation(tx, token)
		return err
	})
	return out, err
}

// CanGraduate reports whether a CheckAndGraduate call for token would succeed.
func (m *Manager) CanGraduate(token common.Address) (bool, error) {
	var out bool
	err := m.ledger.View(func(tx *ledger.Tx) error {
		if r, ok := m.records[token]; ok && r.graduated {
			return nil
		}
		var err error
		out, err = m.checkGraduation(tx, token)
		return err
	})
	return out, err
}

// ExecuteGraduation graduates token on the owner's behalf. The threshold
// still applies.
func (m *Manager) ExecuteGraduation(caller, token common.Address) (common.Address, error) {
	var pool common.Address
	err := m.ledger.Update(func(tx *ledger.Tx) error {
		if err := m.CheckOwner(caller); err != nil {
			return err
		}
		var err error
		pool, err = m.graduate(tx, caller, token)
		return err
	})
	return pool, err
}

// CheckAndGraduate graduates token if it qualifies. Anyone may call it.
func (m *Manager) CheckAndGraduate(caller, token common.Address) (common.Address, error) {
	var pool common.Address
	err := m.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		pool, err = m.graduate(tx, caller, token)
		return err
	})
	return pool, err
}

// GetGraduationStatus returns the graduation view of token.
func (m *Manager) GetGraduationStatus(token common.Address) (Status, error) {
	var out Status
	err := m.ledger.View(func(tx *ledger.Tx) error {
		supply, err := m.curve.CurrentSupplyTx(tx, token)
		if err != nil {
			return err
		}
		out = Status{CurrentSupply: supply, Threshold: new(big.Int).Set(m.threshold)}
		if r, ok := m.records[token]; ok {
			out.IsGraduated, out.Pool = r.graduated, r.pool
		}
		return nil
	})
	return out, err
}

// Record returns the persisted graduation record of token.
func (m *Manager) Record(token common.Address) (model.GraduationState, bool) {
	var out model.GraduationState
	var ok bool
	_ = m.ledger.View(func(*ledger.Tx) error {
		var r *record
		if r, ok = m.records[token]; ok {
			out = r.state(token)
		}
		return nil
	})
	return out, ok
}

// TransferOwnership hands the manager to newOwner.
func (m *Manager) TransferOwnership(caller, newOwner common.Address) error {
	return m.ledger.Update(func(tx *ledger.Tx) error {
		return m.Ownable.TransferOwnership(tx, caller, newOwner)
	})
}

// RenounceOwnership leaves the manager ownerless for good.
func (m *Manager) RenounceOwnership(caller common.Address) error {
	return m.ledger.Update(func(tx *ledger.Tx) error {
		return m.Ownable.RenounceOwnership(tx, caller)
	})
}

func (m *Manager) checkGraduation(tx *ledger.Tx, token common.Address) (bool, error) {
	supply, err := m.curve.CurrentSupplyTx(tx, token)
	if err != nil {
		return false, err
	}
	return supply.Cmp(m.threshold) > 0, nil
}

func (m *Manager) graduate(tx *ledger.Tx, caller, token common.Address) (common.Address, error) {
	if r, ok := m.records[token]; ok && r.graduated {
		return common.Address{}, types.ErrAlreadyGraduated.Wrapf("%s into %s", token.Hex(), r.pool.Hex())
	}
	supply, err := m.curve.CurrentSupplyTx(tx, token)
	if err != nil {
		return common.Address{}, err
	}
	if supply.Cmp(m.threshold) <= 0 {
		return common.Address{}, types.ErrTokenNotGraduated.Wrapf("supply %s, threshold %s", supply, m.threshold)
	}

	base := m.curve.BaseAsset()
	pool := m.registry.PairUnsafe(token, base)
	if pool == nil {
		if pool, err = m.registry.CreatePairTx(tx, token, base); err != nil {
			return common.Address{}, err
		}
		if err := amm.Emit(tx, m.address, dex.EventAMMPoolCreated, token, base, pool.Address()); err != nil {
			return common.Address{}, err
		}
	}

	tokenAmount, baseAmount, err := m.curve.MigrateTx(tx, m.address, token, pool.Address())
	if err != nil {
		return common.Address{}, err
	}
	shares, err := pool.MintTx(tx, m.address, amm.DeadAddress)
	if err != nil {
		return common.Address{}, err
	}
	if err := amm.Emit(tx, m.address, dex.EventLiquidityMigrated, token, pool.Address(), tokenAmount, baseAmount, shares); err != nil {
		return common.Address{}, err
	}

	burned, err := m.curve.BurnInventoryTx(tx, m.address, token)
	if err != nil {
		return common.Address{}, err
	}
	if burned.Sign() == 0 {
		return common.Address{}, types.ErrInvalidAmount.Wrapf("graduating %s burns no inventory", token.Hex())
	}
	if err := amm.Emit(tx, m.address, dex.EventTokensBurned, token, burned); err != nil {
		return common.Address{}, err
	}

	if err := ledger.SetKey(tx, m.records, token, &record{graduated: true, pool: pool.Address()}); err != nil {
		return common.Address{}, err
	}
	if err := amm.Emit(tx, m.address, dex.EventGraduationExecuted, token, pool.Address(), supply); err != nil {
		return common.Address{}, err
	}

	poolAddress := pool.Address()
	tx.OnCommit(func() {
		m.metrics.Graduated()
		m.logger.Info("token graduated",
			zap.String("token", token.Hex()),
			zap.String("pool", poolAddress.Hex()),
			zap.String("by", caller.Hex()),
			zap.String("supply", supply.String()),
			zap.String("migrated_token", tokenAmount.String()),
			zap.String("migrated_base", baseAmount.String()),
			zap.String("burned", burned.String()),
		)
	})
	return poolAddress, nil
}

// State is the persisted layout of the manager.
type State struct {
	Owner       string
	Threshold   string
	Graduations []model.GraduationState
}

// ExportState returns the owner, threshold and records sorted by token.
func (m *Manager) ExportState() State {
	var out State
	_ = m.ledger.View(func(*ledger.Tx) error {
		out.Owner = m.OwnerUnsafe().Hex()
		out.Threshold = m.threshold.String()
		for token, r := range m.records {
			out.Graduations = append(out.Graduations, r.state(token))
		}
		return nil
	})
	sort.Slice(out.Graduations, func(i, j int) bool { return out.Graduations[i].Token < out.Graduations[j].Token })
	return out
}

// RestoreState loads a snapshot into an empty manager.
func (m *Manager) RestoreState(state State) error {
	return m.ledger.View(func(*ledger.Tx) error {
		if state.Threshold != "" {
			threshold, ok := new(big.Int).SetString(state.Threshold, 10)
			if !ok || threshold.Sign() <= 0 {
				return types.ErrZeroThreshold.Wrapf("snapshot threshold %q", state.Threshold)
			}
			m.threshold = threshold
		}
		if state.Owner != "" {
			m.Ownable = amm.NewOwnable(m.address, common.HexToAddress(state.Owner))
		}
		for _, g := range state.Graduations {
			m.records[common.HexToAddress(g.Token)] = &record{graduated: g.IsGraduated, pool: common.HexToAddress(g.Pool)}
		}
		return nil
	})
}

func (r *record) state(token common.Address) model.GraduationState {
	out := model.GraduationState{Token: token.Hex(), IsGraduated: r.graduated}
	if r.graduated {
		out.Pool = r.pool.Hex()
	}
	return out
}
