package amm

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/types"
)

type pairKey [2]common.Address

// Registry creates pools and tracks the pair set, the protocol fee
// recipient and the guardian allowed to pause pools.
type Registry struct {
	address common.Address
	ledger  *ledger.Ledger
	params  PoolParams
	logger  *zap.Logger
	metrics *Metrics

	feeTo       common.Address
	feeToSetter common.Address
	pairs       map[pairKey]*Pool
	byAddress   map[common.Address]*Pool
	allPairs    []*Pool
}

// RegistryOptions configures a registry.
type RegistryOptions struct {
	Address     common.Address
	FeeToSetter common.Address
	Params      PoolParams
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewRegistry builds an empty registry on l.
func NewRegistry(l *ledger.Ledger, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		address:     opts.Address,
		ledger:      l,
		params:      opts.Params,
		logger:      logger,
		metrics:     opts.Metrics,
		feeToSetter: opts.FeeToSetter,
		pairs:       make(map[pairKey]*Pool),
		byAddress:   make(map[common.Address]*Pool),
	}
}

// Address returns the registry handle pools are derived from.
func (r *Registry) Address() common.Address { return r.address }

// Params returns the safety limits applied to new pools.
func (r *Registry) Params() PoolParams { return r.params }

// CreatePair deploys the pool for an unordered asset pair.
func (r *Registry) CreatePair(tokenA, tokenB common.Address) (*Pool, error) {
	var pool *Pool
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		pool, err = r.CreatePairTx(tx, tokenA, tokenB)
		return err
	})
	return pool, err
}

// CreatePairTx creates the pool inside an open transaction.
func (r *Registry) CreatePairTx(tx *ledger.Tx, tokenA, tokenB common.Address) (*Pool, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	key := pairKey{token0, token1}
	if existing, ok := r.pairs[key]; ok {
		return nil, types.ErrPairExists.Wrapf("%s", existing.address.Hex())
	}

	address, err := PairFor(r.address, token0, token1)
	if err != nil {
		return nil, err
	}
	share := newShareToken(r.ledger, shareTokenFor(r.address, token0, token1), r.address)
	pool := r.newPool(address, token0, token1, share, uint64(len(r.allPairs)))
	if err := share.initialize(tx, r.address, address); err != nil {
		return nil, err
	}

	if err := ledger.SetKey(tx, r.pairs, key, pool); err != nil {
		return nil, err
	}
	if err := ledger.SetKey(tx, r.byAddress, address, pool); err != nil {
		return nil, err
	}
	if err := ledger.Append(tx, &r.allPairs, pool); err != nil {
		return nil, err
	}
	count := len(r.allPairs)
	if err := Emit(tx, r.address, dex.EventPairCreated, token0, token1, address, big.NewInt(int64(count))); err != nil {
		return nil, err
	}

	tx.OnCommit(func() {
		r.metrics.pools(count)
		r.logger.Info("pair created",
			zap.String("pool", address.Hex()),
			zap.String("token0", token0.Hex()),
			zap.String("token1", token1.Hex()),
			zap.Int("pairs", count),
		)
	})
	return pool, nil
}

func (r *Registry) newPool(address, token0, token1 common.Address, share *ShareToken, index uint64) *Pool {
	return &Pool{
		address:   address,
		registry:  r,
		ledger:    r.ledger,
		token0:    token0,
		token1:    token1,
		share:     share,
		index:     index,
		params:    r.params,
		logger:    r.logger,
		metrics:   r.metrics,
		reserve0:  new(big.Int),
		reserve1:  new(big.Int),
		kLast:     new(big.Int),
		lastPrice: new(big.Int),
		volume:    new(big.Int),
	}
}

// GetPair returns the pool for an unordered pair, or false if none exists.
func (r *Registry) GetPair(tokenA, tokenB common.Address) (*Pool, bool) {
	var pool *Pool
	_ = r.ledger.View(func(*ledger.Tx) error {
		pool = r.PairUnsafe(tokenA, tokenB)
		return nil
	})
	return pool, pool != nil
}

// PairUnsafe looks a pair up without taking the ledger lock. Callers must
// be inside a ledger transaction.
func (r *Registry) PairUnsafe(tokenA, tokenB common.Address) *Pool {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil
	}
	return r.pairs[pairKey{token0, token1}]
}

// Pool returns the pool with the given handle.
func (r *Registry) Pool(address common.Address) (*Pool, bool) {
	var pool *Pool
	_ = r.ledger.View(func(*ledger.Tx) error {
		pool = r.byAddress[address]
		return nil
	})
	return pool, pool != nil
}

// AllPairsLength returns the number of pools created.
func (r *Registry) AllPairsLength() uint64 {
	var n uint64
	_ = r.ledger.View(func(*ledger.Tx) error {
		n = uint64(len(r.allPairs))
		return nil
	})
	return n
}

// AllPairs returns the handle of the i-th pool in creation order.
func (r *Registry) AllPairs(i uint64) (common.Address, error) {
	var out common.Address
	err := r.ledger.View(func(*ledger.Tx) error {
		if i >= uint64(len(r.allPairs)) {
			return types.ErrIndexOutOfBounds.Wrapf("index %d of %d", i, len(r.allPairs))
		}
		out = r.allPairs[i].address
		return nil
	})
	return out, err
}

// FeeTo returns the protocol fee recipient; zero means fees are off.
func (r *Registry) FeeTo() common.Address {
	var out common.Address
	_ = r.ledger.View(func(*ledger.Tx) error {
		out = r.feeTo
		return nil
	})
	return out
}

// FeeToSetter returns the account allowed to change fee settings and pause pools.
func (r *Registry) FeeToSetter() common.Address {
	var out common.Address
	_ = r.ledger.View(func(*ledger.Tx) error {
		out = r.feeToSetter
		return nil
	})
	return out
}

// SetFeeTo changes the protocol fee recipient.
func (r *Registry) SetFeeTo(caller, feeTo common.Address) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if caller != r.feeToSetter {
			return types.ErrForbidden.Wrapf("FORBIDDEN: %s", caller.Hex())
		}
		previous := r.feeTo
		if err := ledger.Set(tx, &r.feeTo, feeTo); err != nil {
			return err
		}
		return Emit(tx, r.address, dex.EventFeeToUpdated, previous, feeTo)
	})
}

// SetFeeToSetter hands fee and guardian rights to another account.
func (r *Registry) SetFeeToSetter(caller, setter common.Address) error {
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if caller != r.feeToSetter {
			return types.ErrForbidden.Wrapf("FORBIDDEN: %s", caller.Hex())
		}
		if setter == (common.Address{}) {
			return types.ErrZeroAddress.Wrap("fee setter")
		}
		previous := r.feeToSetter
		if err := ledger.Set(tx, &r.feeToSetter, setter); err != nil {
			return err
		}
		return Emit(tx, r.address, dex.EventFeeToSetterUpdated, previous, setter)
	})
}

// RegistryState is the persisted layout of a registry and its pools.
type RegistryState struct {
	FeeTo       string
	FeeToSetter string
	Pools       []model.PoolState
	Shares      []model.ShareState
}

// ExportState returns every pool in creation order.
func (r *Registry) ExportState() RegistryState {
	var out RegistryState
	_ = r.ledger.View(func(*ledger.Tx) error {
		out.FeeTo = r.feeTo.Hex()
		out.FeeToSetter = r.feeToSetter.Hex()
		for _, pool := range r.allPairs {
			out.Pools = append(out.Pools, pool.state())
			out.Shares = append(out.Shares, pool.share.state())
		}
		return nil
	})
	return out
}

// RestoreState rebuilds pools from a snapshot. The registry must be empty.
func (r *Registry) RestoreState(state RegistryState) error {
	return r.ledger.View(func(*ledger.Tx) error {
		if len(r.allPairs) > 0 {
			return types.ErrAlreadyInitialized.Wrap("registry already has pools")
		}
		r.feeTo = common.HexToAddress(state.FeeTo)
		if state.FeeToSetter != "" {
			r.feeToSetter = common.HexToAddress(state.FeeToSetter)
		}

		shares := make(map[string]model.ShareState, len(state.Shares))
		for _, share := range state.Shares {
			shares[common.HexToAddress(share.Address).Hex()] = share
		}
		pools := append([]model.PoolState(nil), state.Pools...)
		sort.Slice(pools, func(i, j int) bool { return pools[i].Index < pools[j].Index })

		for _, ps := range pools {
			token0, token1 := common.HexToAddress(ps.Token0), common.HexToAddress(ps.Token1)
			address := common.HexToAddress(ps.Address)
			share := newShareToken(r.ledger, common.HexToAddress(ps.ShareToken), r.address)
			if ss, ok := shares[share.address.Hex()]; ok {
				if err := share.restore(ss); err != nil {
					return err
				}
			} else {
				share.pool, share.initialized = address, true
			}
			pool := r.newPool(address, token0, token1, share, uint64(len(r.allPairs)))
			if err := pool.restore(ps); err != nil {
				return err
			}
			r.pairs[pairKey{token0, token1}] = pool
			r.byAddress[address] = pool
			r.allPairs = append(r.allPairs, pool)
		}
		r.metrics.pools(len(r.allPairs))
		return nil
	})
}
