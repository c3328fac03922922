package stakemanager

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"ad3staker/internal/retry"
)

type retryingCaller struct {
	next   ContractCaller
	policy retry.Policy
	logger *zap.Logger
}

// WithRetry wraps caller so failed calls are retried under policy.
func WithRetry(caller ContractCaller, policy retry.Policy, logger *zap.Logger) ContractCaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingCaller{next: caller, policy: policy, logger: logger}
}

func (c *retryingCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		out, err = c.next.CallContract(ctx, msg, blockNumber)
		if err != nil {
			c.logger.Warn("contract call failed", zap.Stringer("to", msg.To), zap.Error(err))
		}
		return err
	})
	return out, err
}
