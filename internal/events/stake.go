package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ad3staker/internal/q128"
)

const (
	// TypeIncentiveCreated is emitted when governance funds a new incentive.
	TypeIncentiveCreated = "IncentiveCreated"
	// TypeIncentiveEnded is emitted when governance cancels an ended incentive and sweeps its funds.
	TypeIncentiveEnded = "IncentiveEnded"
	// TypeTokenReceived is emitted when a position token first enters engine custody.
	TypeTokenReceived = "TokenReceived"
	// TypeTokenStaked is emitted for every stake opened.
	TypeTokenStaked = "TokenStaked"
	// TypeTokenUnstaked is emitted when a stake is closed.
	TypeTokenUnstaked = "TokenUnstaked"
	// TypeTokenWithdrawn is emitted when a position token leaves engine custody.
	TypeTokenWithdrawn = "TokenWithdrawn"
	// TypeRewardClaimed is emitted for every reward transfer.
	TypeRewardClaimed = "RewardClaimed"
)

// IncentiveCreated records a funded incentive.
type IncentiveCreated struct {
	IncentiveID common.Hash
	RewardToken common.Address
	Pool        common.Address
	StartTime   uint64
	EndTime     uint64
	Reward      *uint256.Int
	MinTick     int32
	MaxTick     int32
}

// EventType satisfies the Event interface.
func (IncentiveCreated) EventType() string { return TypeIncentiveCreated }

// Attributes satisfies the Event interface.
func (e IncentiveCreated) Attributes() map[string]string {
	return map[string]string{
		"incentiveId": e.IncentiveID.Hex(),
		"rewardToken": e.RewardToken.Hex(),
		"pool":        e.Pool.Hex(),
		"startTime":   strconv.FormatUint(e.StartTime, 10),
		"endTime":     strconv.FormatUint(e.EndTime, 10),
		"reward":      q128.Format(e.Reward),
		"minTick":     strconv.FormatInt(int64(e.MinTick), 10),
		"maxTick":     strconv.FormatInt(int64(e.MaxTick), 10),
	}
}

// IncentiveEnded records a cancelled incentive and its refund.
type IncentiveEnded struct {
	IncentiveID common.Hash
	Recipient   common.Address
	Refund      *uint256.Int
}

// EventType satisfies the Event interface.
func (IncentiveEnded) EventType() string { return TypeIncentiveEnded }

// Attributes satisfies the Event interface.
func (e IncentiveEnded) Attributes() map[string]string {
	return map[string]string{
		"incentiveId": e.IncentiveID.Hex(),
		"recipient":   e.Recipient.Hex(),
		"refund":      q128.Format(e.Refund),
	}
}

// TokenReceived records first custody of a position token.
type TokenReceived struct {
	TokenID uint64
	Owner   common.Address
}

// EventType satisfies the Event interface.
func (TokenReceived) EventType() string { return TypeTokenReceived }

// Attributes satisfies the Event interface.
func (e TokenReceived) Attributes() map[string]string {
	return map[string]string{
		"tokenId": strconv.FormatUint(e.TokenID, 10),
		"owner":   e.Owner.Hex(),
	}
}

// TokenStaked records a stake opened in an incentive.
type TokenStaked struct {
	IncentiveID common.Hash
	TokenID     uint64
	Liquidity   *uint256.Int
}

// EventType satisfies the Event interface.
func (TokenStaked) EventType() string { return TypeTokenStaked }

// Attributes satisfies the Event interface.
func (e TokenStaked) Attributes() map[string]string {
	return map[string]string{
		"incentiveId": e.IncentiveID.Hex(),
		"tokenId":     strconv.FormatUint(e.TokenID, 10),
		"liquidity":   q128.Format(e.Liquidity),
	}
}

// TokenUnstaked records a stake closed in an incentive.
type TokenUnstaked struct {
	IncentiveID common.Hash
	TokenID     uint64
}

// EventType satisfies the Event interface.
func (TokenUnstaked) EventType() string { return TypeTokenUnstaked }

// Attributes satisfies the Event interface.
func (e TokenUnstaked) Attributes() map[string]string {
	return map[string]string{
		"incentiveId": e.IncentiveID.Hex(),
		"tokenId":     strconv.FormatUint(e.TokenID, 10),
	}
}

// TokenWithdrawn records a position token returned from custody.
type TokenWithdrawn struct {
	TokenID   uint64
	Recipient common.Address
}

// EventType satisfies the Event interface.
func (TokenWithdrawn) EventType() string { return TypeTokenWithdrawn }

// Attributes satisfies the Event interface.
func (e TokenWithdrawn) Attributes() map[string]string {
	return map[string]string{
		"tokenId":   strconv.FormatUint(e.TokenID, 10),
		"recipient": e.Recipient.Hex(),
	}
}

// RewardClaimed records a reward transfer.
type RewardClaimed struct {
	Recipient common.Address
	Amount    *uint256.Int
}

// EventType satisfies the Event interface.
func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// Attributes satisfies the Event interface.
func (e RewardClaimed) Attributes() map[string]string {
	return map[string]string{
		"recipient": e.Recipient.Hex(),
		"amount":    q128.Format(e.Amount),
	}
}
