package staker

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"ad3staker/internal/model"
	"ad3staker/internal/q128"
)

// Snapshot captures the full ledger state in a deterministic order.
func (e *Engine) Snapshot() model.LedgerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.LedgerSnapshot{
		Engine:     e.address.Hex(),
		Governance: e.governance.Hex(),
		TakenAt:    e.clock.Now(),
		Sequence:   e.sequence,
		Incentives: make([]model.IncentiveRecord, 0, len(e.incentives)),
		Deposits:   make([]model.DepositRecord, 0, len(e.deposits)),
		Stakes:     make([]model.StakeRecord, 0, len(e.stakes)),
		Rewards:    make([]model.RewardRecord, 0, len(e.rewards)),
	}

	for id, incentive := range e.incentives {
		snap.Incentives = append(snap.Incentives, model.IncentiveRecord{
			IncentiveID:             id.Hex(),
			Key:                     incentive.Key.Record(),
			TotalRewardUnclaimed:    q128.Format(incentive.TotalRewardUnclaimed),
			TotalSecondsClaimedX128: q128.Format(incentive.TotalSecondsClaimedX128),
			MinTick:                 incentive.MinTick,
			MaxTick:                 incentive.MaxTick,
			NumberOfStakes:          incentive.NumberOfStakes,
		})
	}
	sort.Slice(snap.Incentives, func(i, j int) bool {
		return snap.Incentives[i].IncentiveID < snap.Incentives[j].IncentiveID
	})

	for tokenID, deposit := range e.deposits {
		snap.Deposits = append(snap.Deposits, model.DepositRecord{
			TokenID:        tokenID,
			Owner:          deposit.Owner.Hex(),
			NumberOfStakes: deposit.NumberOfStakes,
			TickLower:      deposit.TickLower,
			TickUpper:      deposit.TickUpper,
		})
	}
	sort.Slice(snap.Deposits, func(i, j int) bool {
		return snap.Deposits[i].TokenID < snap.Deposits[j].TokenID
	})

	keys := make([]stakeKey, 0, len(e.stakes))
	for key := range e.stakes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].incentiveID[:], keys[j].incentiveID[:]); c != 0 {
			return c < 0
		}
		return keys[i].tokenID < keys[j].tokenID
	})
	for _, key := range keys {
		stake := e.stakes[key]
		snap.Stakes = append(snap.Stakes, model.StakeRecord{
			IncentiveID:                          key.incentiveID.Hex(),
			TokenID:                              key.tokenID,
			SecondsPerLiquidityInsideInitialX128: q128.Format(stake.SecondsPerLiquidityInsideInitialX128),
			Liquidity:                            q128.Format(stake.Liquidity),
		})
	}

	for key, amount := range e.rewards {
		snap.Rewards = append(snap.Rewards, model.RewardRecord{
			RewardToken: key.token.Hex(),
			Owner:       key.owner.Hex(),
			Amount:      q128.Format(amount),
		})
	}
	sort.Slice(snap.Rewards, func(i, j int) bool {
		if snap.Rewards[i].RewardToken != snap.Rewards[j].RewardToken {
			return snap.Rewards[i].RewardToken < snap.Rewards[j].RewardToken
		}
		return snap.Rewards[i].Owner < snap.Rewards[j].Owner
	})

	return snap
}

// Restore replaces the ledger state with snap and resumes event numbering after snap.Sequence.
// The engine is unchanged when snap is invalid.
func (e *Engine) Restore(snap model.LedgerSnapshot) error {
	incentives := make(map[common.Hash]*Incentive, len(snap.Incentives))
	for _, record := range snap.Incentives {
		key, err := KeyFromRecord(record.Key)
		if err != nil {
			return fmt.Errorf("incentive %s: %w", record.IncentiveID, err)
		}
		id := key.ID()
		if record.IncentiveID != "" {
			recorded, err := parseHash(record.IncentiveID)
			if err != nil {
				return fmt.Errorf("incentive %s: %w", record.IncentiveID, err)
			}
			if recorded != id {
				return fmt.Errorf("incentive %s: id does not match key", record.IncentiveID)
			}
		}
		unclaimed, err := q128.Parse(record.TotalRewardUnclaimed)
		if err != nil {
			return fmt.Errorf("incentive %s: %w", record.IncentiveID, err)
		}
		claimed, err := q128.Parse(record.TotalSecondsClaimedX128)
		if err != nil {
			return fmt.Errorf("incentive %s: %w", record.IncentiveID, err)
		}
		incentives[id] = &Incentive{
			Key:                     key,
			TotalRewardUnclaimed:    unclaimed,
			TotalSecondsClaimedX128: claimed,
			MinTick:                 record.MinTick,
			MaxTick:                 record.MaxTick,
			NumberOfStakes:          record.NumberOfStakes,
		}
	}

	deposits := make(map[uint64]*Deposit, len(snap.Deposits))
	for _, record := range snap.Deposits {
		if !common.IsHexAddress(record.Owner) {
			return fmt.Errorf("deposit %d: invalid owner %q", record.TokenID, record.Owner)
		}
		deposits[record.TokenID] = &Deposit{
			Owner:          common.HexToAddress(record.Owner),
			NumberOfStakes: record.NumberOfStakes,
			TickLower:      record.TickLower,
			TickUpper:      record.TickUpper,
		}
	}

	stakes := make(map[stakeKey]*Stake, len(snap.Stakes))
	for _, record := range snap.Stakes {
		incentiveID, err := parseHash(record.IncentiveID)
		if err != nil {
			return fmt.Errorf("stake %s/%d: %w", record.IncentiveID, record.TokenID, err)
		}
		if _, ok := deposits[record.TokenID]; !ok {
			return fmt.Errorf("stake %s/%d: no deposit", record.IncentiveID, record.TokenID)
		}
		initial, err := q128.Parse(record.SecondsPerLiquidityInsideInitialX128)
		if err != nil {
			return fmt.Errorf("stake %s/%d: %w", record.IncentiveID, record.TokenID, err)
		}
		liquidity, err := q128.Parse(record.Liquidity)
		if err != nil {
			return fmt.Errorf("stake %s/%d: %w", record.IncentiveID, record.TokenID, err)
		}
		stakes[stakeKey{incentiveID: incentiveID, tokenID: record.TokenID}] = &Stake{
			SecondsPerLiquidityInsideInitialX128: initial,
			Liquidity:                            liquidity,
		}
	}

	rewards := make(map[rewardKey]*uint256.Int, len(snap.Rewards))
	for _, record := range snap.Rewards {
		if !common.IsHexAddress(record.RewardToken) || !common.IsHexAddress(record.Owner) {
			return fmt.Errorf("reward %s/%s: invalid address", record.RewardToken, record.Owner)
		}
		amount, err := q128.Parse(record.Amount)
		if err != nil {
			return fmt.Errorf("reward %s/%s: %w", record.RewardToken, record.Owner, err)
		}
		if amount.IsZero() {
			continue
		}
		rewards[rewardKey{token: common.HexToAddress(record.RewardToken), owner: common.HexToAddress(record.Owner)}] = amount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.incentives = incentives
	e.deposits = deposits
	e.stakes = stakes
	e.rewards = rewards
	e.sequence = snap.Sequence
	return nil
}

func parseHash(value string) (common.Hash, error) {
	raw, err := hexutil.Decode(value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid id: %w", err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid id: %d bytes", len(raw))
	}
	return common.BytesToHash(raw), nil
}
