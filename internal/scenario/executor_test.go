package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ad3staker/internal/events"
	"ad3staker/internal/sim"
)

const script = `
# reward token 0xad30, pool tokens 0x1000/0x2000
{"op":"create_pool","label":"main","token0":"0x0000000000000000000000000000000000001000","token1":"0x0000000000000000000000000000000000002000","fee":3000}
{"op":"mint_token","token":"0x000000000000000000000000000000000000ad30","account":"governance","amount":"100000000000000000000"}
{"op":"approve_token","token":"0x000000000000000000000000000000000000ad30","caller":"governance","spender":"engine","amount":"100000000000000000000"}
{"op":"mint_position","account":"0x0000000000000000000000000000000000000a11","pool":"main","tick_lower":-60,"tick_upper":60,"liquidity":"1024"}
{"op":"create_incentive","caller":"governance","key":{"reward_token":"0x000000000000000000000000000000000000ad30","pool":"main","start_time":1100,"end_time":2100},"amount":"100000000000000000000","min_tick":-600,"max_tick":600}
{"op":"deposit","caller":"0x0000000000000000000000000000000000000a11","token_id":1,"key":{"reward_token":"0x000000000000000000000000000000000000ad30","pool":"main","start_time":1100,"end_time":2100},"expect_error":"IncentiveNotStarted"}
{"op":"set_time","time":1100}
{"op":"deposit","caller":"0x0000000000000000000000000000000000000a11","token_id":1,"key":{"reward_token":"0x000000000000000000000000000000000000ad30","pool":"main","start_time":1100,"end_time":2100}}
{"op":"step_time","seconds":250}
{"op":"accrued","token_id":1,"key":{"reward_token":"0x000000000000000000000000000000000000ad30","pool":"main","start_time":1100,"end_time":2100}}
{"op":"claim","caller":"0x0000000000000000000000000000000000000a11","recipient":"0x0000000000000000000000000000000000000a11","token_id":1,"amount":"all","key":{"reward_token":"0x000000000000000000000000000000000000ad30","pool":"main","start_time":1100,"end_time":2100}}
{"op":"balance","token":"0x000000000000000000000000000000000000ad30","account":"0x0000000000000000000000000000000000000a11"}
`

func newExecutor(t *testing.T) (*Executor, *events.Recorder) {
	t.Helper()
	env := sim.NewEnvironment(1000)
	recorder := events.NewRecorder()
	engine, err := env.NewEngine(
		common.HexToAddress("0x00000000000000000000000000000000000057a4"),
		common.HexToAddress("0x000000000000000000000000000000000000060f"),
		recorder,
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	return NewExecutor(env, engine, zaptest.NewLogger(t)), recorder
}

func TestRunScript(t *testing.T) {
	ops, err := ReadOperations(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, ops, 12)

	executor, recorder := newExecutor(t)
	results, err := executor.Run(context.Background(), ops, true)
	require.NoError(t, err)
	require.Len(t, results, len(ops))

	require.Equal(t, "IncentiveNotStarted", results[5].Code)
	require.Equal(t, "25000000000000000000", results[9].Output["reward"])
	require.Equal(t, "25000000000000000000", results[10].Output["amount"])
	require.Equal(t, "25000000000000000000", results[11].Output["balance"])
	require.Equal(t, "0", results[11].Output["rewards"])

	var types []string
	for _, e := range recorder.Payloads() {
		types = append(types, e.EventType())
	}
	require.Equal(t, []string{
		events.TypeIncentiveCreated,
		events.TypeTokenReceived,
		events.TypeTokenStaked,
		events.TypeRewardClaimed,
	}, types)
}

func TestRunStrictStopsOnMismatch(t *testing.T) {
	executor, _ := newExecutor(t)
	ops := []Operation{
		{Op: OpWithdraw, Caller: "governance", Recipient: "governance", TokenID: 9},
		{Op: OpStepTime, Seconds: 1},
	}
	results, err := executor.Run(context.Background(), ops, true)
	require.True(t, errors.Is(err, ErrExpectation))
	require.Len(t, results, 1)
	require.Equal(t, "DepositNotFound", results[0].Code)

	ops[0].ExpectError = "DepositNotFound"
	results, err = executor.Run(context.Background(), ops, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Index)
}

func TestApplyRejectsUnknownInput(t *testing.T) {
	executor, _ := newExecutor(t)

	result := executor.Apply(context.Background(), Operation{Op: "mint_everything"})
	require.False(t, result.OK)
	require.Contains(t, result.Error, "unknown op")
	require.Empty(t, result.Code)

	result = executor.Apply(context.Background(), Operation{Op: OpSetTick, Pool: "nowhere"})
	require.False(t, result.OK)
	require.Contains(t, result.Error, "unknown address or label")
}

func TestReadOperationsRequiresOp(t *testing.T) {
	_, err := ReadOperations(strings.NewReader(`{"caller":"governance"}`))
	require.Error(t, err)
}
