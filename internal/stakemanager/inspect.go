package stakemanager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ad3staker/internal/model"
	"ad3staker/internal/q128"
	"ad3staker/internal/rewardmath"
	"ad3staker/internal/staker"
)

// Inspect reads the incentive, deposit and stake of tokenID, recomputes the accrued reward from the
// pool's current seconds-per-liquidity snapshot and compares it with getAccruedRewardInfo.
func (r *Reader) Inspect(ctx context.Context, key staker.IncentiveKey, tokenID uint64) (model.InspectionReport, error) {
	id := key.ID()
	report := model.InspectionReport{
		StakeManager: r.stakeManager.Hex(),
		BlockNumber:  r.BlockNumber(),
		IncentiveID:  id.Hex(),
		Key:          key.Record(),
		RewardToken:  r.TokenMeta(ctx, key.RewardToken),
	}

	incentive, ok, err := r.Incentive(ctx, key)
	if err != nil {
		return report, fmt.Errorf("incentive: %w", err)
	}
	if !ok {
		return report, fmt.Errorf("%w: %s", staker.ErrIncentiveNotFound, id.Hex())
	}
	report.Incentive = model.IncentiveRecord{
		IncentiveID:             id.Hex(),
		Key:                     key.Record(),
		TotalRewardUnclaimed:    q128.Format(incentive.TotalRewardUnclaimed),
		TotalSecondsClaimedX128: q128.Format(incentive.TotalSecondsClaimedX128),
		MinTick:                 incentive.MinTick,
		MaxTick:                 incentive.MaxTick,
		NumberOfStakes:          incentive.NumberOfStakes,
	}

	deposit, ok, err := r.Deposit(ctx, tokenID)
	if err != nil {
		return report, fmt.Errorf("deposit: %w", err)
	}
	if !ok {
		return report, fmt.Errorf("%w: token %d", staker.ErrDepositNotFound, tokenID)
	}
	report.Deposit = model.DepositRecord{
		TokenID:        tokenID,
		Owner:          deposit.Owner.Hex(),
		NumberOfStakes: deposit.NumberOfStakes,
		TickLower:      deposit.TickLower,
		TickUpper:      deposit.TickUpper,
	}

	stake, err := r.Stake(ctx, id, tokenID)
	if err != nil {
		return report, fmt.Errorf("stake: %w", err)
	}
	report.Stake = model.StakeRecord{
		IncentiveID:                          id.Hex(),
		TokenID:                              tokenID,
		SecondsPerLiquidityInsideInitialX128: q128.Format(stake.SecondsPerLiquidityInsideInitialX128),
		Liquidity:                            q128.Format(stake.Liquidity),
	}

	if slot0, err := r.Slot0(ctx, key.Pool); err == nil {
		report.Slot0 = &slot0
		report.InRange = deposit.TickLower <= slot0.Tick && slot0.Tick < deposit.TickUpper
	} else {
		r.logger.Debug("slot0 call failed", zap.String("pool", key.Pool.Hex()), zap.Error(err))
	}

	current, err := r.SnapshotCumulativesInside(ctx, key.Pool, deposit.TickLower, deposit.TickUpper)
	if err != nil {
		return report, fmt.Errorf("snapshot cumulatives: %w", err)
	}
	report.SecondsPerLiquidityInsideX128 = q128.Format(current)

	computed, computedSeconds := q128.Zero(), q128.Zero()
	if !stake.Liquidity.IsZero() {
		computed, computedSeconds = rewardmath.ComputeRewardAmount(rewardmath.Inputs{
			TotalRewardUnclaimed:                 incentive.TotalRewardUnclaimed,
			TotalSecondsClaimedX128:              incentive.TotalSecondsClaimedX128,
			StartTime:                            key.StartTime,
			EndTime:                              key.EndTime,
			Liquidity:                            stake.Liquidity,
			SecondsPerLiquidityInsideInitialX128: stake.SecondsPerLiquidityInsideInitialX128,
			SecondsPerLiquidityInsideX128:        current,
		})
	}
	report.ComputedReward = q128.Format(computed)
	report.ComputedSecondsInsideX128 = q128.Format(computedSeconds)

	onchain, onchainSeconds, err := r.AccruedRewardInfo(ctx, key, tokenID)
	if err != nil {
		return report, fmt.Errorf("accrued reward info: %w", err)
	}
	report.ContractReward = q128.Format(onchain)
	report.ContractSecondsInsideX128 = q128.Format(onchainSeconds)
	report.Match = computed.Eq(onchain) && computedSeconds.Eq(onchainSeconds)

	r.logger.Info("stake inspected",
		zap.String("incentive_id", report.IncentiveID),
		zap.Uint64("token_id", tokenID),
		zap.String("computed_reward", report.ComputedReward),
		zap.String("contract_reward", report.ContractReward),
		zap.Bool("match", report.Match),
	)
	return report, nil
}
