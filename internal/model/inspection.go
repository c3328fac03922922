package model

// TokenMeta stores ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// PoolSlot0 is the subset of slot0 used when inspecting a stake.
type PoolSlot0 struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// InspectionReport compares a deployed contract's accrued reward with an off-chain recomputation.
type InspectionReport struct {
	StakeManager                  string             `json:"stake_manager"`
	BlockNumber                   uint64             `json:"block_number,omitempty"`
	IncentiveID                   string             `json:"incentive_id"`
	Key                           IncentiveKeyRecord `json:"key"`
	RewardToken                   TokenMeta          `json:"reward_token"`
	Incentive                     IncentiveRecord    `json:"incentive"`
	Deposit                       DepositRecord      `json:"deposit"`
	Stake                         StakeRecord        `json:"stake"`
	Slot0                         *PoolSlot0         `json:"slot0,omitempty"`
	InRange                       bool               `json:"in_range"`
	SecondsPerLiquidityInsideX128 string             `json:"seconds_per_liquidity_inside_x128"`
	ComputedReward                string             `json:"computed_reward"`
	ComputedSecondsInsideX128     string             `json:"computed_seconds_inside_x128"`
	ContractReward                string             `json:"contract_reward"`
	ContractSecondsInsideX128     string             `json:"contract_seconds_inside_x128"`
	Match                         bool               `json:"match"`
}
