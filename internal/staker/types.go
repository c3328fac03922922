package staker

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ad3staker/internal/q128"
)

// Incentive is a funded reward program for one pool and time window.
type Incentive struct {
	Key                     IncentiveKey
	TotalRewardUnclaimed    *uint256.Int
	TotalSecondsClaimedX128 *uint256.Int
	MinTick                 int32
	MaxTick                 int32
	NumberOfStakes          uint64
}

func (i *Incentive) clone() Incentive {
	out := *i
	out.TotalRewardUnclaimed = q128.Clone(i.TotalRewardUnclaimed)
	out.TotalSecondsClaimedX128 = q128.Clone(i.TotalSecondsClaimedX128)
	return out
}

// Deposit is a position token held in custody for its depositor.
type Deposit struct {
	Owner          common.Address
	NumberOfStakes uint64
	TickLower      int32
	TickUpper      int32
}

// Stake is a deposited position's participation in one incentive.
type Stake struct {
	SecondsPerLiquidityInsideInitialX128 *uint256.Int
	Liquidity                            *uint256.Int
}

func (s *Stake) clone() Stake {
	return Stake{
		SecondsPerLiquidityInsideInitialX128: q128.Clone(s.SecondsPerLiquidityInsideInitialX128),
		Liquidity:                            q128.Clone(s.Liquidity),
	}
}

// Position is the position manager's view of a liquidity position.
type Position struct {
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	TickLower int32
	TickUpper int32
	Liquidity *uint256.Int
}

type stakeKey struct {
	incentiveID common.Hash
	tokenID     uint64
}

type rewardKey struct {
	token common.Address
	owner common.Address
}
