package ledger

import (
	"sync"
	"time"
)

// Clock supplies wall time for deadlines and cooldowns, and the settlement
// round used to window per-round limits. Rounds must never decrease.
type Clock interface {
	Now() time.Time
	Round() uint64
}

// SystemClock derives rounds from wall time in fixed-length slots.
type SystemClock struct {
	RoundLength time.Duration
}

func (c SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c SystemClock) Round() uint64 {
	length := c.RoundLength
	if length <= 0 {
		length = time.Second
	}
	return uint64(time.Now().UnixNano() / int64(length))
}

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu    sync.Mutex
	now   time.Time
	round uint64
}

func NewManualClock(now time.Time, round uint64) *ManualClock {
	return &ManualClock{now: now.UTC(), round: round}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// Set moves the clock. A round lower than the current one is ignored.
func (c *ManualClock) Set(now time.Time, round uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
	if round > c.round {
		c.round = round
	}
}

// Advance moves wall time forward without starting a new round.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NextRound starts a new settlement round and returns its id.
func (c *ManualClock) NextRound() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round++
	return c.round
}
