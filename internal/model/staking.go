package model

// IncentiveKeyRecord is the JSON form of an incentive key.
type IncentiveKeyRecord struct {
	RewardToken string `json:"reward_token"`
	Pool        string `json:"pool"`
	StartTime   uint64 `json:"start_time"`
	EndTime     uint64 `json:"end_time"`
}

// IncentiveRecord is the persisted form of an incentive.
type IncentiveRecord struct {
	IncentiveID             string             `json:"incentive_id"`
	Key                     IncentiveKeyRecord `json:"key"`
	TotalRewardUnclaimed    string             `json:"total_reward_unclaimed"`
	TotalSecondsClaimedX128 string             `json:"total_seconds_claimed_x128"`
	MinTick                 int32              `json:"min_tick"`
	MaxTick                 int32              `json:"max_tick"`
	NumberOfStakes          uint64             `json:"number_of_stakes"`
}

// DepositRecord is the persisted form of a custodied position.
type DepositRecord struct {
	TokenID        uint64 `json:"token_id"`
	Owner          string `json:"owner"`
	NumberOfStakes uint64 `json:"number_of_stakes"`
	TickLower      int32  `json:"tick_lower"`
	TickUpper      int32  `json:"tick_upper"`
}

// StakeRecord is the persisted form of a stake.
type StakeRecord struct {
	IncentiveID                          string `json:"incentive_id"`
	TokenID                              uint64 `json:"token_id"`
	SecondsPerLiquidityInsideInitialX128 string `json:"seconds_per_liquidity_inside_initial_x128"`
	Liquidity                            string `json:"liquidity"`
}

// RewardRecord is one rewards ledger entry.
type RewardRecord struct {
	RewardToken string `json:"reward_token"`
	Owner       string `json:"owner"`
	Amount      string `json:"amount"`
}

// LedgerSnapshot captures the complete engine state.
type LedgerSnapshot struct {
	Engine     string            `json:"engine"`
	Governance string            `json:"governance"`
	TakenAt    uint64            `json:"taken_at"`
	Sequence   uint64            `json:"sequence"`
	Incentives []IncentiveRecord `json:"incentives"`
	Deposits   []DepositRecord   `json:"deposits"`
	Stakes     []StakeRecord     `json:"stakes"`
	Rewards    []RewardRecord    `json:"rewards"`
}
