// Package sim provides in-memory stand-ins for the chain collaborators of the staking engine:
// a block clock, an ERC20 ledger and a concentrated-liquidity exchange with a position manager.
package sim

import "sync"

// Clock is a manually advanced block timestamp.
type Clock struct {
	mu  sync.RWMutex
	now uint64
}

// NewClock starts a clock at now.
func NewClock(now uint64) *Clock {
	return &Clock{now: now}
}

// Now returns the current timestamp.
func (c *Clock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to now. Time never moves backwards.
func (c *Clock) Set(now uint64) {
	c.mu.Lock()
	if now > c.now {
		c.now = now
	}
	c.mu.Unlock()
}

// Advance moves the clock forward by seconds and returns the new time.
func (c *Clock) Advance(seconds uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}
