// Package rewardmath computes time-weighted incentive rewards from pool
// seconds-per-liquidity accumulators.
package rewardmath

import (
	"github.com/holiman/uint256"

	"ad3staker/internal/q128"
)

// Inputs carries the incentive and stake state a reward is derived from.
type Inputs struct {
	TotalRewardUnclaimed    *uint256.Int
	TotalSecondsClaimedX128 *uint256.Int
	StartTime               uint64
	EndTime                 uint64
	Liquidity               *uint256.Int
	// SecondsPerLiquidityInsideInitialX128 is the stake's baseline snapshot.
	SecondsPerLiquidityInsideInitialX128 *uint256.Int
	// SecondsPerLiquidityInsideX128 is the pool's current cumulative for the range.
	SecondsPerLiquidityInsideX128 *uint256.Int
}

// ComputeRewardAmount returns the reward owed to a stake and the liquidity-seconds (Q128) it accrued
// since its baseline.
//
// The reward is the stake's share of the unclaimed reward in proportion to its share of the
// unclaimed seconds budget of the incentive window. Subtractions clamp at zero and the reward
// never exceeds TotalRewardUnclaimed.
func ComputeRewardAmount(in Inputs) (reward *uint256.Int, secondsInsideX128 *uint256.Int) {
	delta := q128.SubClamp(in.SecondsPerLiquidityInsideX128, in.SecondsPerLiquidityInsideInitialX128)

	secondsInsideX128, overflow := q128.Mul(delta, in.Liquidity)
	if overflow {
		secondsInsideX128 = new(uint256.Int).SetAllOne()
	}

	totalSecondsUnclaimedX128 := TotalSecondsUnclaimedX128(in.StartTime, in.EndTime, in.TotalSecondsClaimedX128)
	if totalSecondsUnclaimedX128.IsZero() || secondsInsideX128.IsZero() {
		return new(uint256.Int), secondsInsideX128
	}

	unclaimed := q128.Clone(in.TotalRewardUnclaimed)
	reward, overflow = q128.MulDiv(unclaimed, secondsInsideX128, totalSecondsUnclaimedX128)
	if overflow || reward.Gt(unclaimed) {
		reward = unclaimed
	}
	return reward, secondsInsideX128
}

// TotalSecondsUnclaimedX128 is the incentive window length in Q128 seconds minus what has already
// been attributed to claims, clamped at zero.
func TotalSecondsUnclaimedX128(startTime, endTime uint64, totalSecondsClaimedX128 *uint256.Int) *uint256.Int {
	if endTime <= startTime {
		return new(uint256.Int)
	}
	return q128.SubClamp(q128.FromSeconds(endTime-startTime), totalSecondsClaimedX128)
}
