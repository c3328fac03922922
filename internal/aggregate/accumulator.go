package aggregate

import (
	"fmt"
	"math/big"
	"time"

	"ad3staker/internal/events"
	"ad3staker/internal/model"
)

// Accumulator holds aggregate values for one stake manager window.
type Accumulator struct {
	ChainID           uint64
	Contract          string
	WindowStart       uint64
	WindowEnd         uint64
	IncentivesCreated uint64
	IncentivesEnded   uint64
	Deposits          uint64
	Stakes            uint64
	Unstakes          uint64
	Withdrawals       uint64
	Claims            uint64
	RewardFunded      *big.Int
	RewardRefunded    *big.Int
	RewardClaimed     *big.Int
	LiquidityStaked   *big.Int
	LastBlock         uint64
	LastTS            uint64
	FirstBlock        uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:         record.ChainID,
		Contract:        record.Contract,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		RewardFunded:    big.NewInt(0),
		RewardRefunded:  big.NewInt(0),
		RewardClaimed:   big.NewInt(0),
		LiquidityStaked: big.NewInt(0),
		LastBlock:       record.BlockNumber,
		LastTS:          record.Timestamp,
		FirstBlock:      record.BlockNumber,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}

	switch record.EventName {
	case events.TypeIncentiveCreated:
		var created model.IncentiveCreatedData
		if err := record.DecodeInto(&created); err != nil {
			return err
		}
		if err := addDecimal(a.RewardFunded, created.Reward); err != nil {
			return err
		}
		a.IncentivesCreated++
	case events.TypeIncentiveEnded:
		var ended model.IncentiveEndedData
		if err := record.DecodeInto(&ended); err != nil {
			return err
		}
		if err := addDecimal(a.RewardRefunded, ended.Refund); err != nil {
			return err
		}
		a.IncentivesEnded++
	case events.TypeTokenReceived:
		a.Deposits++
	case events.TypeTokenStaked:
		var staked model.TokenStakedData
		if err := record.DecodeInto(&staked); err != nil {
			return err
		}
		if err := addDecimal(a.LiquidityStaked, staked.Liquidity); err != nil {
			return err
		}
		a.Stakes++
	case events.TypeTokenUnstaked:
		a.Unstakes++
	case events.TypeTokenWithdrawn:
		a.Withdrawals++
	case events.TypeRewardClaimed:
		var claimed model.RewardClaimedData
		if err := record.DecodeInto(&claimed); err != nil {
			return err
		}
		if err := addDecimal(a.RewardClaimed, claimed.Amount); err != nil {
			return err
		}
		a.Claims++
	}
	return nil
}

// Metrics renders the accumulator as a window metrics row.
func (a *Accumulator) Metrics(windowSeconds uint64) model.StakerWindowMetrics {
	return model.StakerWindowMetrics{
		ChainID:           a.ChainID,
		Contract:          a.Contract,
		WindowSizeSecs:    int64(windowSeconds),
		WindowStart:       time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:         time.Unix(int64(a.WindowEnd), 0).UTC(),
		IncentivesCreated: a.IncentivesCreated,
		IncentivesEnded:   a.IncentivesEnded,
		Deposits:          a.Deposits,
		Stakes:            a.Stakes,
		Unstakes:          a.Unstakes,
		Withdrawals:       a.Withdrawals,
		Claims:            a.Claims,
		RewardFunded:      a.RewardFunded.String(),
		RewardRefunded:    a.RewardRefunded.String(),
		RewardClaimed:     a.RewardClaimed.String(),
		LiquidityStaked:   a.LiquidityStaked.String(),
		FirstBlock:        a.FirstBlock,
		LastBlock:         a.LastBlock,
	}
}

func addDecimal(target *big.Int, value string) error {
	if value == "" {
		return nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return fmt.Errorf("invalid amount: %s", value)
	}
	target.Add(target, parsed)
	return nil
}
