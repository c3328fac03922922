package model

import "time"

// StakerWindowMetrics stores aggregated stake manager activity for a window.
type StakerWindowMetrics struct {
	ChainID           uint64
	Contract          string
	WindowSizeSecs    int64
	WindowStart       time.Time
	WindowEnd         time.Time
	IncentivesCreated uint64
	IncentivesEnded   uint64
	Deposits          uint64
	Stakes            uint64
	Unstakes          uint64
	Withdrawals       uint64
	Claims            uint64
	RewardFunded      string
	RewardRefunded    string
	RewardClaimed     string
	LiquidityStaked   string
	FirstBlock        uint64
	LastBlock         uint64
}
