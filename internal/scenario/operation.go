// Package scenario drives a simulated environment and staking engine from a list of JSON operations.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"ad3staker/internal/model"
	"ad3staker/internal/storage"
)

// Operation kinds.
const (
	OpCreatePool      = "create_pool"
	OpMintToken       = "mint_token"
	OpApproveToken    = "approve_token"
	OpMintPosition    = "mint_position"
	OpApprovePosition = "approve_position"
	OpSetTime         = "set_time"
	OpStepTime        = "step_time"
	OpSetTick         = "set_tick"
	OpCreateIncentive = "create_incentive"
	OpCancelIncentive = "cancel_incentive"
	OpDeposit         = "deposit"
	OpUnstake         = "unstake"
	OpWithdraw        = "withdraw"
	OpClaim           = "claim"
	OpCollect         = "collect"
	OpAccrued         = "accrued"
	OpBalance         = "balance"
)

// Operation is one step of a scenario. Address fields accept hex addresses or labels bound by
// earlier operations.
type Operation struct {
	Op          string                    `json:"op"`
	Label       string                    `json:"label,omitempty"`
	Caller      string                    `json:"caller,omitempty"`
	Token       string                    `json:"token,omitempty"`
	Token0      string                    `json:"token0,omitempty"`
	Token1      string                    `json:"token1,omitempty"`
	Fee         uint32                    `json:"fee,omitempty"`
	Tick        int32                     `json:"tick,omitempty"`
	Pool        string                    `json:"pool,omitempty"`
	Account     string                    `json:"account,omitempty"`
	Spender     string                    `json:"spender,omitempty"`
	Recipient   string                    `json:"recipient,omitempty"`
	Amount      string                    `json:"amount,omitempty"`
	Liquidity   string                    `json:"liquidity,omitempty"`
	TickLower   int32                     `json:"tick_lower,omitempty"`
	TickUpper   int32                     `json:"tick_upper,omitempty"`
	MinTick     int32                     `json:"min_tick,omitempty"`
	MaxTick     int32                     `json:"max_tick,omitempty"`
	TokenID     uint64                    `json:"token_id,omitempty"`
	Key         *model.IncentiveKeyRecord `json:"key,omitempty"`
	Time        uint64                    `json:"time,omitempty"`
	Seconds     uint64                    `json:"seconds,omitempty"`
	ExpectError string                    `json:"expect_error,omitempty"`
}

// Result is the outcome of one operation.
type Result struct {
	Index  int               `json:"index"`
	Op     string            `json:"op"`
	OK     bool              `json:"ok"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error,omitempty"`
	Output map[string]string `json:"output,omitempty"`
}

// ReadOperations parses JSONL operations. Blank lines and lines starting with '#' are skipped.
func ReadOperations(r io.Reader) ([]Operation, error) {
	var ops []Operation
	lineNo := 0
	err := storage.ScanJSONL(r, func(line []byte) error {
		lineNo++
		if bytes.HasPrefix(line, []byte("#")) {
			return nil
		}
		var op Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return fmt.Errorf("operation %d: %w", lineNo, err)
		}
		if op.Op == "" {
			return fmt.Errorf("operation %d: missing op", lineNo)
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}
