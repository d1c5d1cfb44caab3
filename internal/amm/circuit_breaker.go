package amm

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/types"
)

// Pause halts swaps, mints and burns on the pool. Guardian only.
func (p *Pool) Pause(caller common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.pause(tx, caller)
	})
}

// Unpause resumes trading. A tripped breaker must have cooled down first.
func (p *Pool) Unpause(caller common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.unpause(tx, caller)
	})
}

// TriggerCircuitBreaker pauses the pool and starts the cooldown clock.
func (p *Pool) TriggerCircuitBreaker(caller common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.trigger(tx, caller)
	})
}

// ResetCircuitBreaker clears a tripped breaker once the cooldown has elapsed.
func (p *Pool) ResetCircuitBreaker(caller common.Address) error {
	return p.ledger.Update(func(tx *ledger.Tx) error {
		return p.reset(tx, caller)
	})
}

func (p *Pool) status() PoolStatus {
	switch {
	case p.breakerTriggered:
		return StatusCircuitBroken
	case p.paused:
		return StatusPaused
	default:
		return StatusActive
	}
}

func (p *Pool) whenNotPaused() error {
	if p.paused {
		return types.ErrPaused.Wrapf("pool %s is %s", p.address.Hex(), p.status())
	}
	return nil
}

// The registry's fee setter acts as guardian for every pool.
func (p *Pool) checkGuardian(caller common.Address) error {
	if caller != p.registry.feeToSetter {
		return types.ErrForbidden.Wrapf("FORBIDDEN: %s is not the guardian", caller.Hex())
	}
	return nil
}

func (p *Pool) pause(tx *ledger.Tx, caller common.Address) error {
	if err := p.checkGuardian(caller); err != nil {
		return err
	}
	if p.paused {
		return types.ErrPaused.Wrapf("pool %s", p.address.Hex())
	}
	if err := ledger.Set(tx, &p.paused, true); err != nil {
		return err
	}
	return Emit(tx, p.address, dex.EventPaused, caller)
}

func (p *Pool) unpause(tx *ledger.Tx, caller common.Address) error {
	if err := p.checkGuardian(caller); err != nil {
		return err
	}
	if !p.paused {
		return types.ErrNotPaused.Wrapf("pool %s", p.address.Hex())
	}
	if p.breakerTriggered {
		if err := p.clearBreaker(tx, caller); err != nil {
			return err
		}
	}
	if err := ledger.Set(tx, &p.paused, false); err != nil {
		return err
	}
	return Emit(tx, p.address, dex.EventUnpaused, caller)
}

func (p *Pool) trigger(tx *ledger.Tx, caller common.Address) error {
	if err := p.checkGuardian(caller); err != nil {
		return err
	}
	if p.breakerTriggered {
		return types.ErrPaused.Wrapf("circuit breaker already tripped on %s", p.address.Hex())
	}
	if err := ledger.Set(tx, &p.breakerTriggered, true); err != nil {
		return err
	}
	if err := ledger.Set(tx, &p.breakerTriggeredAt, tx.Now()); err != nil {
		return err
	}
	if !p.paused {
		if err := ledger.Set(tx, &p.paused, true); err != nil {
			return err
		}
	}
	if err := Emit(tx, p.address, dex.EventBreakerTriggered, caller, unixBig(tx.Now())); err != nil {
		return err
	}

	tx.OnCommit(func() {
		p.metrics.breaker(p.address.Hex(), true)
		p.logger.Warn("circuit breaker tripped",
			zap.String("pool", p.address.Hex()),
			zap.String("by", caller.Hex()),
		)
	})
	return nil
}

func (p *Pool) reset(tx *ledger.Tx, caller common.Address) error {
	if err := p.checkGuardian(caller); err != nil {
		return err
	}
	if !p.breakerTriggered {
		return types.ErrNotPaused.Wrapf("circuit breaker not tripped on %s", p.address.Hex())
	}
	if err := p.clearBreaker(tx, caller); err != nil {
		return err
	}
	return ledger.Set(tx, &p.paused, false)
}

func (p *Pool) clearBreaker(tx *ledger.Tx, caller common.Address) error {
	elapsed := tx.Now().Sub(p.breakerTriggeredAt)
	if elapsed < p.params.CircuitBreakerCooldown {
		return types.ErrCooldownActive.Wrapf("%s of %s elapsed", elapsed, p.params.CircuitBreakerCooldown)
	}
	if err := ledger.Set(tx, &p.breakerTriggered, false); err != nil {
		return err
	}
	if err := ledger.Set(tx, &p.breakerTriggeredAt, time.Time{}); err != nil {
		return err
	}
	if err := Emit(tx, p.address, dex.EventBreakerReset, caller, unixBig(tx.Now())); err != nil {
		return err
	}
	tx.OnCommit(func() { p.metrics.breaker(p.address.Hex(), false) })
	return nil
}
