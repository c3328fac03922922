package sim

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ad3staker/internal/events"
	"ad3staker/internal/staker"
)

// Environment bundles the simulated collaborators of one engine.
type Environment struct {
	Clock    *Clock
	Tokens   *Tokens
	Exchange *Exchange
}

// NewEnvironment returns empty collaborators with the clock at start.
func NewEnvironment(start uint64) *Environment {
	clock := NewClock(start)
	return &Environment{
		Clock:    clock,
		Tokens:   NewTokens(),
		Exchange: NewExchange(clock),
	}
}

// NewEngine wires a staking engine at address to the environment.
func (env *Environment) NewEngine(address, governance common.Address, emitter events.Emitter, logger *zap.Logger) (*staker.Engine, error) {
	return staker.New(staker.Config{
		Address:    address,
		Governance: governance,
		Positions:  env.Exchange,
		Pools:      env.Exchange,
		Tokens:     env.Tokens,
		Clock:      env.Clock,
		Emitter:    emitter,
		Logger:     logger,
	})
}
