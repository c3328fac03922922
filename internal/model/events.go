package model

// IncentiveCreatedData is the decoded IncentiveCreated payload.
type IncentiveCreatedData struct {
	IncentiveID string `json:"incentive_id"`
	RewardToken string `json:"reward_token"`
	Pool        string `json:"pool"`
	StartTime   uint64 `json:"start_time"`
	EndTime     uint64 `json:"end_time"`
	Reward      string `json:"reward"`
	MinTick     int32  `json:"min_tick"`
	MaxTick     int32  `json:"max_tick"`
}

// IncentiveEndedData is the decoded IncentiveEnded payload.
type IncentiveEndedData struct {
	IncentiveID string `json:"incentive_id"`
	Recipient   string `json:"recipient"`
	Refund      string `json:"refund"`
}

// TokenReceivedData is the decoded TokenReceived payload.
type TokenReceivedData struct {
	TokenID uint64 `json:"token_id"`
	Owner   string `json:"owner"`
}

// TokenStakedData is the decoded TokenStaked payload.
type TokenStakedData struct {
	IncentiveID string `json:"incentive_id"`
	TokenID     uint64 `json:"token_id"`
	Liquidity   string `json:"liquidity"`
}

// TokenUnstakedData is the decoded TokenUnstaked payload.
type TokenUnstakedData struct {
	IncentiveID string `json:"incentive_id"`
	TokenID     uint64 `json:"token_id"`
}

// TokenWithdrawnData is the decoded TokenWithdrawn payload.
type TokenWithdrawnData struct {
	TokenID   uint64 `json:"token_id"`
	Recipient string `json:"recipient"`
}

// RewardClaimedData is the decoded RewardClaimed payload.
type RewardClaimedData struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// StakingEvent is an engine event flattened for journals, streams and tables.
type StakingEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}
