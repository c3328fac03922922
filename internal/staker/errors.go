package staker

import "errors"

// ErrorCode is the stable identifier of a rejected engine operation.
type ErrorCode string

const (
	CodeUnauthorized               ErrorCode = "Unauthorized"
	CodeDuplicateIncentive         ErrorCode = "DuplicateIncentive"
	CodeIncentiveNotFound          ErrorCode = "IncentiveNotFound"
	CodeIncentiveNotStarted        ErrorCode = "IncentiveNotStarted"
	CodeIncentiveNotEnded          ErrorCode = "IncentiveNotEnded"
	CodeIncentiveEnded             ErrorCode = "IncentiveEnded"
	CodeNotApproved                ErrorCode = "NotApproved"
	CodeStakeNotFound              ErrorCode = "StakeNotFound"
	CodeActiveStakesExist          ErrorCode = "ActiveStakesExist"
	CodeInsufficientComputedReward ErrorCode = "InsufficientComputedReward"
	CodeInvalidIncentiveWindow     ErrorCode = "InvalidIncentiveWindow"
	CodeIncentiveStartPassed       ErrorCode = "IncentiveStartPassed"
	CodeZeroReward                 ErrorCode = "ZeroReward"
	CodeInvalidTickRange           ErrorCode = "InvalidTickRange"
	CodePoolMismatch               ErrorCode = "PoolMismatch"
	CodePositionOutOfRange         ErrorCode = "PositionOutOfRange"
	CodeZeroLiquidity              ErrorCode = "ZeroLiquidity"
	CodeAlreadyStaked              ErrorCode = "AlreadyStaked"
	CodeDepositNotFound            ErrorCode = "DepositNotFound"
	CodeInvalidRecipient           ErrorCode = "InvalidRecipient"
	CodeInsufficientRewardBalance  ErrorCode = "InsufficientRewardBalance"
)

// Error is a caller-correctable rejection. Rejections never change engine state.
type Error struct {
	Code ErrorCode
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

var (
	ErrUnauthorized               = &Error{Code: CodeUnauthorized, msg: "caller is not authorized"}
	ErrDuplicateIncentive         = &Error{Code: CodeDuplicateIncentive, msg: "incentive already exists"}
	ErrIncentiveNotFound          = &Error{Code: CodeIncentiveNotFound, msg: "incentive not found"}
	ErrIncentiveNotStarted        = &Error{Code: CodeIncentiveNotStarted, msg: "incentive not started"}
	ErrIncentiveNotEnded          = &Error{Code: CodeIncentiveNotEnded, msg: "incentive not ended"}
	ErrIncentiveEnded             = &Error{Code: CodeIncentiveEnded, msg: "incentive ended"}
	ErrNotApproved                = &Error{Code: CodeNotApproved, msg: "caller is not owner or approved"}
	ErrStakeNotFound              = &Error{Code: CodeStakeNotFound, msg: "stake not found"}
	ErrActiveStakesExist          = &Error{Code: CodeActiveStakesExist, msg: "token has active stakes"}
	ErrInsufficientComputedReward = &Error{Code: CodeInsufficientComputedReward, msg: "requested amount exceeds computed reward"}
	ErrInvalidIncentiveWindow     = &Error{Code: CodeInvalidIncentiveWindow, msg: "start time must be before end time"}
	ErrIncentiveStartPassed       = &Error{Code: CodeIncentiveStartPassed, msg: "start time must be now or in the future"}
	ErrZeroReward                 = &Error{Code: CodeZeroReward, msg: "reward must be positive"}
	ErrInvalidTickRange           = &Error{Code: CodeInvalidTickRange, msg: "min tick must be below max tick"}
	ErrPoolMismatch               = &Error{Code: CodePoolMismatch, msg: "position is not in the incentive pool"}
	ErrPositionOutOfRange         = &Error{Code: CodePositionOutOfRange, msg: "position range outside incentive ticks"}
	ErrZeroLiquidity              = &Error{Code: CodeZeroLiquidity, msg: "position has no liquidity"}
	ErrAlreadyStaked              = &Error{Code: CodeAlreadyStaked, msg: "token already staked in incentive"}
	ErrDepositNotFound            = &Error{Code: CodeDepositNotFound, msg: "deposit not found"}
	ErrInvalidRecipient           = &Error{Code: CodeInvalidRecipient, msg: "recipient is the zero address"}
	ErrInsufficientRewardBalance  = &Error{Code: CodeInsufficientRewardBalance, msg: "insufficient reward balance"}
)

// Code returns the rejection code carried by err, or "" for infrastructure failures.
func Code(err error) ErrorCode {
	var stakerErr *Error
	if errors.As(err, &stakerErr) {
		return stakerErr.Code
	}
	return ""
}
