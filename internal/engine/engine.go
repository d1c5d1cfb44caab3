// Package engine wires the ledger, pools, router, bonding curve and
// graduation manager into one deterministic state machine.
package engine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/amm"
	"launchpool/internal/curve"
	"launchpool/internal/graduation"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
)

// Config describes one engine deployment.
type Config struct {
	Deployer        common.Address
	BaseAsset       common.Address
	FeeToSetter     common.Address
	RouterOwner     common.Address
	GraduationOwner common.Address
	Threshold       *big.Int
	Pool            amm.PoolParams
	Curve           curve.Params
}

// Engine is a fully wired deployment.
type Engine struct {
	// mu serializes Apply, Snapshot and Restore.
	mu sync.Mutex

	cfg     Config
	clock   ledger.Clock
	logger  *zap.Logger
	metrics *amm.Metrics

	Ledger     *ledger.Ledger
	Registry   *amm.Registry
	Router     *amm.Router
	Curve      *curve.Curve
	Graduation *graduation.Manager
}

// New deploys every component under addresses derived from cfg.Deployer.
func New(cfg Config, clock ledger.Clock, logger *zap.Logger, metrics *amm.Metrics) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if cfg.Deployer == (common.Address{}) {
		return nil, fmt.Errorf("deployer address is required")
	}
	if cfg.BaseAsset == (common.Address{}) {
		return nil, fmt.Errorf("base asset is required")
	}

	l := ledger.New(clock, logger.Named("ledger"))
	registryAddr := amm.ComponentAddress(cfg.Deployer, amm.RegistryNonce)
	routerAddr := amm.ComponentAddress(cfg.Deployer, amm.RouterNonce)
	curveAddr := amm.ComponentAddress(cfg.Deployer, amm.CurveNonce)
	graduationAddr := amm.ComponentAddress(cfg.Deployer, amm.GraduationNonce)

	registry := amm.NewRegistry(l, amm.RegistryOptions{
		Address:     registryAddr,
		FeeToSetter: orDefault(cfg.FeeToSetter, cfg.Deployer),
		Params:      cfg.Pool,
		Logger:      logger.Named("registry"),
		Metrics:     metrics,
	})
	router := amm.NewRouter(l, registry, routerAddr, orDefault(cfg.RouterOwner, cfg.Deployer), logger.Named("router"), metrics)
	bonding := curve.New(l, curve.Options{
		Address:   curveAddr,
		BaseAsset: cfg.BaseAsset,
		Migrator:  graduationAddr,
		Params:    cfg.Curve,
		Logger:    logger.Named("curve"),
	})
	manager, err := graduation.NewManager(l, registry, bonding, graduation.Options{
		Address:   graduationAddr,
		Owner:     orDefault(cfg.GraduationOwner, cfg.Deployer),
		Threshold: cfg.Threshold,
		Logger:    logger.Named("graduation"),
		Metrics:   metrics,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("engine deployed",
		zap.String("registry", registryAddr.Hex()),
		zap.String("router", routerAddr.Hex()),
		zap.String("curve", curveAddr.Hex()),
		zap.String("graduation", graduationAddr.Hex()),
		zap.String("base_asset", cfg.BaseAsset.Hex()),
	)
	if v := cfg.Pool.MaxVolumePerRound; v == nil || v.Sign() <= 0 {
		logger.Warn("per-round volume cap disabled")
	}
	if cfg.Pool.MaxPriceChangeBps == 0 {
		logger.Warn("per-swap price change bound disabled")
	}
	return &Engine{
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		Ledger:     l,
		Registry:   registry,
		Router:     router,
		Curve:      bonding,
		Graduation: manager,
	}, nil
}

// Snapshot captures the complete engine state.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	balances, supplies := e.Ledger.Balances()
	registry := e.Registry.ExportState()
	grad := e.Graduation.ExportState()
	return model.Snapshot{
		Round:               e.clock.Round(),
		Timestamp:           uint64(e.clock.Now().Unix()),
		TxIndex:             e.Ledger.TxIndex(),
		Balances:            balances,
		Supplies:            supplies,
		FeeTo:               registry.FeeTo,
		FeeToSetter:         registry.FeeToSetter,
		Pools:               registry.Pools,
		Shares:              registry.Shares,
		RouterOwner:         e.Router.Owner().Hex(),
		RouterPause:         e.Router.IsPaused(),
		Markets:             e.Curve.ExportState(),
		GraduationOwner:     grad.Owner,
		GraduationThreshold: grad.Threshold,
		Graduations:         grad.Graduations,
	}
}

// Restore loads snap into a freshly built engine.
func (e *Engine) Restore(snap model.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.Ledger.RestoreBalances(snap.Balances, snap.Supplies, snap.TxIndex); err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	if err := e.Registry.RestoreState(amm.RegistryState{
		FeeTo:       snap.FeeTo,
		FeeToSetter: snap.FeeToSetter,
		Pools:       snap.Pools,
		Shares:      snap.Shares,
	}); err != nil {
		return fmt.Errorf("restore pools: %w", err)
	}
	if snap.RouterOwner != "" {
		e.Router.RestoreState(common.HexToAddress(snap.RouterOwner), snap.RouterPause)
	}
	if err := e.Curve.RestoreState(snap.Markets); err != nil {
		return fmt.Errorf("restore markets: %w", err)
	}
	if err := e.Graduation.RestoreState(graduation.State{
		Owner:       snap.GraduationOwner,
		Threshold:   snap.GraduationThreshold,
		Graduations: snap.Graduations,
	}); err != nil {
		return fmt.Errorf("restore graduations: %w", err)
	}
	if mc, ok := e.clock.(*ledger.ManualClock); ok && snap.Timestamp > 0 {
		mc.Set(unixTime(snap.Timestamp), snap.Round)
	}
	e.logger.Info("engine restored",
		zap.Uint64("round", snap.Round),
		zap.Uint64("tx_index", snap.TxIndex),
		zap.Int("pools", len(snap.Pools)),
		zap.Int("markets", len(snap.Markets)),
	)
	return nil
}

// Drain returns the events committed since the last call.
func (e *Engine) Drain() []model.LogRecord {
	return e.Ledger.Drain()
}

func orDefault(addr, fallback common.Address) common.Address {
	if addr == (common.Address{}) {
		return fallback
	}
	return addr
}
