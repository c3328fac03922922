package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ad3staker/internal/q128"
	"ad3staker/internal/sim"
	"ad3staker/internal/staker"
)

// ErrExpectation marks an operation whose outcome differs from its expect_error.
var ErrExpectation = errors.New("unexpected outcome")

// Executor applies operations to a simulated environment and its engine.
type Executor struct {
	env    *sim.Environment
	engine *staker.Engine
	logger *zap.Logger

	mu     sync.Mutex
	labels map[string]common.Address
	index  int
}

// NewExecutor binds an executor to env and engine.
func NewExecutor(env *sim.Environment, engine *staker.Engine, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		env:    env,
		engine: engine,
		logger: logger,
		labels: map[string]common.Address{
			"engine":     engine.Address(),
			"governance": engine.Governance(),
		},
	}
}

// Bind registers label as an alias of address.
func (x *Executor) Bind(label string, address common.Address) {
	x.mu.Lock()
	x.labels[strings.ToLower(label)] = address
	x.mu.Unlock()
}

// Run applies ops in order. With strict set, the first outcome that differs from the operation's
// expect_error stops the run with ErrExpectation.
func (x *Executor) Run(ctx context.Context, ops []Operation, strict bool) ([]Result, error) {
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := x.Apply(ctx, op)
		results = append(results, result)
		if strict && !Matches(op, result) {
			return results, fmt.Errorf("%w: operation %d (%s) code=%q error=%q expected=%q",
				ErrExpectation, result.Index, op.Op, result.Code, result.Error, op.ExpectError)
		}
	}
	return results, nil
}

// Matches reports whether result satisfies the expectation of op.
func Matches(op Operation, result Result) bool {
	if op.ExpectError == "" {
		return result.OK
	}
	return !result.OK && (result.Code == op.ExpectError || strings.Contains(result.Error, op.ExpectError))
}

// Apply executes a single operation.
func (x *Executor) Apply(ctx context.Context, op Operation) Result {
	x.mu.Lock()
	index := x.index
	x.index++
	x.mu.Unlock()

	result := Result{Index: index, Op: op.Op}
	output, err := x.apply(ctx, op)
	if err != nil {
		result.Error = err.Error()
		result.Code = string(staker.Code(err))
		x.logger.Debug("operation rejected", zap.Int("index", index), zap.String("op", op.Op), zap.Error(err))
		return result
	}
	result.OK = true
	result.Output = output
	return result
}

func (x *Executor) apply(ctx context.Context, op Operation) (map[string]string, error) {
	switch op.Op {
	case OpCreatePool:
		return x.createPool(op)
	case OpMintToken:
		token, account, err := x.addresses(op.Token, op.Account)
		if err != nil {
			return nil, err
		}
		amount, err := q128.Parse(op.Amount)
		if err != nil {
			return nil, err
		}
		x.env.Tokens.Mint(token, account, amount)
		return nil, nil
	case OpApproveToken:
		token, caller, spender, err := x.addresses3(op.Token, op.Caller, op.Spender)
		if err != nil {
			return nil, err
		}
		amount, err := q128.Parse(op.Amount)
		if err != nil {
			return nil, err
		}
		x.env.Tokens.Approve(token, caller, spender, amount)
		return nil, nil
	case OpMintPosition:
		return x.mintPosition(op)
	case OpApprovePosition:
		caller, spender, err := x.addresses(op.Caller, op.Spender)
		if err != nil {
			return nil, err
		}
		return nil, x.env.Exchange.Approve(caller, spender, op.TokenID)
	case OpSetTime:
		x.env.Clock.Set(op.Time)
		return map[string]string{"time": strconv.FormatUint(x.env.Clock.Now(), 10)}, nil
	case OpStepTime:
		now := x.env.Clock.Advance(op.Seconds)
		return map[string]string{"time": strconv.FormatUint(now, 10)}, nil
	case OpSetTick:
		pool, err := x.resolve(op.Pool)
		if err != nil {
			return nil, err
		}
		return nil, x.env.Exchange.SetTick(pool, op.Tick)
	case OpCreateIncentive:
		return x.createIncentive(ctx, op)
	case OpCancelIncentive:
		caller, recipient, err := x.addresses(op.Caller, op.Recipient)
		if err != nil {
			return nil, err
		}
		key, err := x.key(op)
		if err != nil {
			return nil, err
		}
		refund, err := x.engine.CancelIncentive(ctx, caller, key, recipient)
		if err != nil {
			return nil, err
		}
		return map[string]string{"refund": q128.Format(refund)}, nil
	case OpDeposit:
		caller, key, err := x.callerAndKey(op)
		if err != nil {
			return nil, err
		}
		return nil, x.engine.DepositToken(ctx, caller, key, op.TokenID)
	case OpUnstake:
		caller, key, err := x.callerAndKey(op)
		if err != nil {
			return nil, err
		}
		return nil, x.engine.UnstakeToken(ctx, caller, key, op.TokenID)
	case OpWithdraw:
		caller, recipient, err := x.addresses(op.Caller, op.Recipient)
		if err != nil {
			return nil, err
		}
		return nil, x.engine.WithdrawToken(ctx, caller, op.TokenID, recipient)
	case OpClaim:
		return x.claim(ctx, op)
	case OpCollect:
		token, caller, recipient, err := x.addresses3(op.Token, op.Caller, op.Recipient)
		if err != nil {
			return nil, err
		}
		amount, err := q128.Parse(op.Amount)
		if err != nil {
			return nil, err
		}
		paid, err := x.engine.CollectRewards(ctx, caller, token, recipient, amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": q128.Format(paid)}, nil
	case OpAccrued:
		key, err := x.key(op)
		if err != nil {
			return nil, err
		}
		reward, seconds, err := x.engine.GetAccruedRewardInfo(ctx, key, op.TokenID)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"reward":              q128.Format(reward),
			"seconds_inside_x128": q128.Format(seconds),
		}, nil
	case OpBalance:
		token, account, err := x.addresses(op.Token, op.Account)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"balance": q128.Format(x.env.Tokens.Balance(token, account)),
			"rewards": q128.Format(x.engine.Rewards(token, account)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}
}

func (x *Executor) createPool(op Operation) (map[string]string, error) {
	token0, token1, err := x.addresses(op.Token0, op.Token1)
	if err != nil {
		return nil, err
	}
	pool, err := x.env.Exchange.CreatePool(token0, token1, op.Fee, op.Tick)
	if err != nil {
		return nil, err
	}
	if op.Label != "" {
		x.Bind(op.Label, pool)
	}
	return map[string]string{"pool": pool.Hex()}, nil
}

func (x *Executor) mintPosition(op Operation) (map[string]string, error) {
	owner, pool, err := x.addresses(op.Account, op.Pool)
	if err != nil {
		return nil, err
	}
	liquidity, err := q128.Parse(op.Liquidity)
	if err != nil {
		return nil, err
	}
	tokenID, err := x.env.Exchange.MintPosition(owner, pool, op.TickLower, op.TickUpper, liquidity)
	if err != nil {
		return nil, err
	}
	return map[string]string{"token_id": strconv.FormatUint(tokenID, 10)}, nil
}

func (x *Executor) createIncentive(ctx context.Context, op Operation) (map[string]string, error) {
	caller, key, err := x.callerAndKey(op)
	if err != nil {
		return nil, err
	}
	reward, err := q128.Parse(op.Amount)
	if err != nil {
		return nil, err
	}
	id, err := x.engine.CreateIncentive(ctx, caller, key, reward, op.MinTick, op.MaxTick)
	if err != nil {
		return nil, err
	}
	return map[string]string{"incentive_id": id.Hex()}, nil
}

func (x *Executor) claim(ctx context.Context, op Operation) (map[string]string, error) {
	caller, key, err := x.callerAndKey(op)
	if err != nil {
		return nil, err
	}
	recipient, err := x.resolve(op.Recipient)
	if err != nil {
		return nil, err
	}
	var requested *uint256.Int
	if op.Amount == "all" {
		requested, _, err = x.engine.GetAccruedRewardInfo(ctx, key, op.TokenID)
	} else {
		requested, err = q128.Parse(op.Amount)
	}
	if err != nil {
		return nil, err
	}
	paid, err := x.engine.ClaimReward(ctx, caller, key, op.TokenID, recipient, requested)
	if err != nil {
		return nil, err
	}
	return map[string]string{"amount": q128.Format(paid)}, nil
}

func (x *Executor) callerAndKey(op Operation) (common.Address, staker.IncentiveKey, error) {
	caller, err := x.resolve(op.Caller)
	if err != nil {
		return common.Address{}, staker.IncentiveKey{}, err
	}
	key, err := x.key(op)
	return caller, key, err
}

func (x *Executor) key(op Operation) (staker.IncentiveKey, error) {
	if op.Key == nil {
		return staker.IncentiveKey{}, fmt.Errorf("%s: key is required", op.Op)
	}
	rewardToken, pool, err := x.addresses(op.Key.RewardToken, op.Key.Pool)
	if err != nil {
		return staker.IncentiveKey{}, err
	}
	return staker.IncentiveKey{
		RewardToken: rewardToken,
		Pool:        pool,
		StartTime:   op.Key.StartTime,
		EndTime:     op.Key.EndTime,
	}, nil
}

func (x *Executor) addresses(a, b string) (common.Address, common.Address, error) {
	first, err := x.resolve(a)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	second, err := x.resolve(b)
	return first, second, err
}

func (x *Executor) addresses3(a, b, c string) (common.Address, common.Address, common.Address, error) {
	first, second, err := x.addresses(a, b)
	if err != nil {
		return common.Address{}, common.Address{}, common.Address{}, err
	}
	third, err := x.resolve(c)
	return first, second, third, err
}

func (x *Executor) resolve(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	x.mu.Lock()
	address, ok := x.labels[strings.ToLower(value)]
	x.mu.Unlock()
	if ok {
		return address, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("unknown address or label %q", value)
	}
	return common.HexToAddress(value), nil
}
