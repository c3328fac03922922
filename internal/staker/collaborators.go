package staker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionManager owns the position tokens the engine takes into custody.
type PositionManager interface {
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	IsApprovedOrOwner(ctx context.Context, spender common.Address, tokenID uint64) (bool, error)
	Positions(ctx context.Context, tokenID uint64) (Position, error)
	TransferFrom(ctx context.Context, operator, from, to common.Address, tokenID uint64) error
}

// PoolOracle resolves pools and their per-range liquidity-time accumulators.
type PoolOracle interface {
	GetPool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error)
	SnapshotCumulativesInside(ctx context.Context, pool common.Address, tickLower, tickUpper int32) (*uint256.Int, error)
	// SnapshotCumulativesInsideAt reports the accumulator as it stood at a past timestamp.
	SnapshotCumulativesInsideAt(ctx context.Context, pool common.Address, tickLower, tickUpper int32, timestamp uint64) (*uint256.Int, error)
}

// TokenLedger moves reward tokens.
type TokenLedger interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

// Clock reports the current block timestamp in seconds.
type Clock interface {
	Now() uint64
}

// Authorizer decides which callers may fund and cancel incentives.
type Authorizer interface {
	IsGovernance(caller common.Address) bool
}

// StaticGovernance authorizes a single address.
type StaticGovernance common.Address

// IsGovernance implements Authorizer.
func (g StaticGovernance) IsGovernance(caller common.Address) bool {
	return common.Address(g) == caller
}
