// Package staker implements incentive and reward accounting for staked liquidity positions.
//
// The engine holds incentives, deposits, stakes and the rewards ledger in memory. Every public
// operation runs under a single lock and either commits completely or leaves state untouched:
// validation, collaborator reads and the single collaborator transfer of an operation all happen
// before any record is changed, and events are emitted only after the change is committed.
package staker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ad3staker/internal/events"
	"ad3staker/internal/q128"
	"ad3staker/internal/rewardmath"
)

// Config wires an Engine to its collaborators.
type Config struct {
	// Address is the custody account of the engine on the token ledger and position manager.
	Address    common.Address
	Governance common.Address
	// Authorizer overrides the single-address governance check when set.
	Authorizer Authorizer
	Positions  PositionManager
	Pools      PoolOracle
	Tokens     TokenLedger
	Clock      Clock
	Emitter    events.Emitter
	Logger     *zap.Logger
}

// Engine is the incentive and reward accounting engine.
type Engine struct {
	mu sync.Mutex

	address    common.Address
	governance common.Address
	auth       Authorizer
	positions  PositionManager
	pools      PoolOracle
	tokens     TokenLedger
	clock      Clock
	emitter    events.Emitter
	logger     *zap.Logger

	incentives map[common.Hash]*Incentive
	deposits   map[uint64]*Deposit
	stakes     map[stakeKey]*Stake
	rewards    map[rewardKey]*uint256.Int
	sequence   uint64
}

// New validates cfg and returns an empty engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Positions == nil {
		return nil, fmt.Errorf("position manager is nil")
	}
	if cfg.Pools == nil {
		return nil, fmt.Errorf("pool oracle is nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token ledger is nil")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is nil")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("engine address is required")
	}
	auth := cfg.Authorizer
	if auth == nil {
		auth = StaticGovernance(cfg.Governance)
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		address:    cfg.Address,
		governance: cfg.Governance,
		auth:       auth,
		positions:  cfg.Positions,
		pools:      cfg.Pools,
		tokens:     cfg.Tokens,
		clock:      cfg.Clock,
		emitter:    emitter,
		logger:     logger,
		incentives: make(map[common.Hash]*Incentive),
		deposits:   make(map[uint64]*Deposit),
		stakes:     make(map[stakeKey]*Stake),
		rewards:    make(map[rewardKey]*uint256.Int),
	}, nil
}

// Address returns the engine custody account.
func (e *Engine) Address() common.Address {
	return e.address
}

// Governance returns the configured governance address.
func (e *Engine) Governance() common.Address {
	return e.governance
}

// CreateIncentive funds a new incentive with totalReward pulled from the caller. The window must not
// have started yet, so a cancelled key can never be funded again.
func (e *Engine) CreateIncentive(ctx context.Context, caller common.Address, key IncentiveKey, totalReward *uint256.Int, minTick, maxTick int32) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.auth.IsGovernance(caller) {
		return common.Hash{}, ErrUnauthorized
	}
	if key.StartTime >= key.EndTime {
		return common.Hash{}, ErrInvalidIncentiveWindow
	}
	if e.clock.Now() > key.StartTime {
		return common.Hash{}, ErrIncentiveStartPassed
	}
	if totalReward == nil || totalReward.IsZero() {
		return common.Hash{}, ErrZeroReward
	}
	if minTick >= maxTick {
		return common.Hash{}, ErrInvalidTickRange
	}
	id := key.ID()
	if _, exists := e.incentives[id]; exists {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrDuplicateIncentive, id.Hex())
	}

	if err := e.tokens.TransferFrom(ctx, key.RewardToken, e.address, caller, e.address, totalReward); err != nil {
		return common.Hash{}, fmt.Errorf("pull reward: %w", err)
	}

	e.incentives[id] = &Incentive{
		Key:                     key,
		TotalRewardUnclaimed:    q128.Clone(totalReward),
		TotalSecondsClaimedX128: q128.Zero(),
		MinTick:                 minTick,
		MaxTick:                 maxTick,
	}
	e.logger.Info("incentive created",
		zap.String("incentive", id.Hex()),
		zap.String("pool", key.Pool.Hex()),
		zap.String("reward", q128.Format(totalReward)),
	)
	e.emit(events.IncentiveCreated{
		IncentiveID: id,
		RewardToken: key.RewardToken,
		Pool:        key.Pool,
		StartTime:   key.StartTime,
		EndTime:     key.EndTime,
		Reward:      q128.Clone(totalReward),
		MinTick:     minTick,
		MaxTick:     maxTick,
	})
	return id, nil
}

// CancelIncentive sweeps the unclaimed reward of an ended incentive to refundRecipient and removes it.
// Open stakes survive and accrue nothing further.
func (e *Engine) CancelIncentive(ctx context.Context, caller common.Address, key IncentiveKey, refundRecipient common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.auth.IsGovernance(caller) {
		return nil, ErrUnauthorized
	}
	id := key.ID()
	incentive, ok := e.incentives[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIncentiveNotFound, id.Hex())
	}
	if e.clock.Now() <= key.EndTime {
		return nil, ErrIncentiveNotEnded
	}
	if refundRecipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}

	refund := q128.Clone(incentive.TotalRewardUnclaimed)
	if !refund.IsZero() {
		if err := e.tokens.Transfer(ctx, key.RewardToken, e.address, refundRecipient, refund); err != nil {
			return nil, fmt.Errorf("refund reward: %w", err)
		}
	}

	delete(e.incentives, id)
	e.logger.Info("incentive cancelled",
		zap.String("incentive", id.Hex()),
		zap.String("refund", q128.Format(refund)),
		zap.Uint64("open_stakes", incentive.NumberOfStakes),
	)
	e.emit(events.IncentiveEnded{IncentiveID: id, Recipient: refundRecipient, Refund: q128.Clone(refund)})
	return refund, nil
}

// DepositToken takes tokenID into custody on first use and stakes it in the incentive of key.
func (e *Engine) DepositToken(ctx context.Context, caller common.Address, key IncentiveKey, tokenID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := key.ID()
	incentive, ok := e.incentives[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIncentiveNotFound, id.Hex())
	}
	now := e.clock.Now()
	if now < key.StartTime {
		return ErrIncentiveNotStarted
	}
	if now >= key.EndTime {
		return ErrIncentiveEnded
	}

	deposit, held := e.deposits[tokenID]
	var depositor common.Address
	if held {
		if deposit.Owner != caller {
			return ErrNotApproved
		}
	} else {
		approved, err := e.positions.IsApprovedOrOwner(ctx, caller, tokenID)
		if err != nil {
			return fmt.Errorf("check approval: %w", err)
		}
		if !approved {
			return ErrNotApproved
		}
		depositor, err = e.positions.OwnerOf(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("owner of %d: %w", tokenID, err)
		}
	}

	position, err := e.positions.Positions(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("position %d: %w", tokenID, err)
	}
	pool, err := e.pools.GetPool(ctx, position.Token0, position.Token1, position.Fee)
	if err != nil {
		return fmt.Errorf("resolve pool: %w", err)
	}
	if pool != key.Pool {
		return ErrPoolMismatch
	}
	tickLower, tickUpper := position.TickLower, position.TickUpper
	if held {
		tickLower, tickUpper = deposit.TickLower, deposit.TickUpper
	}
	if tickLower < incentive.MinTick || tickUpper > incentive.MaxTick {
		return ErrPositionOutOfRange
	}
	if position.Liquidity == nil || position.Liquidity.IsZero() {
		return ErrZeroLiquidity
	}
	sk := stakeKey{incentiveID: id, tokenID: tokenID}
	if _, staked := e.stakes[sk]; staked {
		return ErrAlreadyStaked
	}

	secondsPerLiquidity, err := e.pools.SnapshotCumulativesInside(ctx, pool, tickLower, tickUpper)
	if err != nil {
		return fmt.Errorf("snapshot cumulatives: %w", err)
	}

	if !held {
		if err := e.positions.TransferFrom(ctx, caller, depositor, e.address, tokenID); err != nil {
			return fmt.Errorf("take custody of %d: %w", tokenID, err)
		}
		deposit = &Deposit{Owner: caller, TickLower: tickLower, TickUpper: tickUpper}
		e.deposits[tokenID] = deposit
		e.emit(events.TokenReceived{TokenID: tokenID, Owner: caller})
	}

	e.stakes[sk] = &Stake{
		SecondsPerLiquidityInsideInitialX128: q128.Clone(secondsPerLiquidity),
		Liquidity:                            q128.Clone(position.Liquidity),
	}
	deposit.NumberOfStakes++
	incentive.NumberOfStakes++

	e.logger.Debug("token staked",
		zap.String("incentive", id.Hex()),
		zap.Uint64("token_id", tokenID),
		zap.String("liquidity", q128.Format(position.Liquidity)),
	)
	e.emit(events.TokenStaked{IncentiveID: id, TokenID: tokenID, Liquidity: q128.Clone(position.Liquidity)})
	return nil
}

// UnstakeToken closes a stake and credits its accrued reward to the deposit owner's ledger balance.
func (e *Engine) UnstakeToken(ctx context.Context, caller common.Address, key IncentiveKey, tokenID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := key.ID()
	deposit, ok := e.deposits[tokenID]
	if !ok {
		return ErrStakeNotFound
	}
	if deposit.Owner != caller {
		return ErrUnauthorized
	}
	sk := stakeKey{incentiveID: id, tokenID: tokenID}
	stake, ok := e.stakes[sk]
	if !ok {
		return ErrStakeNotFound
	}

	incentive, live := e.incentives[id]
	var accrual *rewardAccrual
	if live {
		var err error
		accrual, err = e.accrue(ctx, incentive, deposit, stake)
		if err != nil {
			return err
		}
	}

	if accrual != nil {
		accrual.apply(incentive)
		e.credit(key.RewardToken, deposit.Owner, accrual.reward)
		if incentive.NumberOfStakes > 0 {
			incentive.NumberOfStakes--
		}
	}
	delete(e.stakes, sk)
	if deposit.NumberOfStakes > 0 {
		deposit.NumberOfStakes--
	}

	e.logger.Debug("token unstaked", zap.String("incentive", id.Hex()), zap.Uint64("token_id", tokenID))
	e.emit(events.TokenUnstaked{IncentiveID: id, TokenID: tokenID})
	return nil
}

// WithdrawToken returns a deposited token with no open stakes to recipient.
func (e *Engine) WithdrawToken(ctx context.Context, caller common.Address, tokenID uint64, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	deposit, ok := e.deposits[tokenID]
	if !ok {
		return ErrDepositNotFound
	}
	if deposit.Owner != caller {
		return ErrUnauthorized
	}
	if deposit.NumberOfStakes > 0 {
		return ErrActiveStakesExist
	}
	if recipient == (common.Address{}) {
		return ErrInvalidRecipient
	}

	if err := e.positions.TransferFrom(ctx, e.address, e.address, recipient, tokenID); err != nil {
		return fmt.Errorf("return token %d: %w", tokenID, err)
	}
	delete(e.deposits, tokenID)

	e.logger.Debug("token withdrawn", zap.Uint64("token_id", tokenID), zap.String("recipient", recipient.Hex()))
	e.emit(events.TokenWithdrawn{TokenID: tokenID, Recipient: recipient})
	return nil
}

// GetAccruedRewardInfo returns the reward a stake would realize now and the liquidity-seconds behind it.
// A missing stake or incentive yields zero.
func (e *Engine) GetAccruedRewardInfo(ctx context.Context, key IncentiveKey, tokenID uint64) (*uint256.Int, *uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := key.ID()
	stake, ok := e.stakes[stakeKey{incentiveID: id, tokenID: tokenID}]
	if !ok {
		return q128.Zero(), q128.Zero(), nil
	}
	incentive, ok := e.incentives[id]
	if !ok {
		return q128.Zero(), q128.Zero(), nil
	}
	deposit, ok := e.deposits[tokenID]
	if !ok {
		return q128.Zero(), q128.Zero(), nil
	}
	accrual, err := e.accrue(ctx, incentive, deposit, stake)
	if err != nil {
		return nil, nil, err
	}
	return accrual.reward, accrual.secondsInsideX128, nil
}

// ClaimReward realizes a stake's accrued reward, pays amountRequested to recipient and credits any
// remainder to the recipient's ledger balance. A request above the accrued reward is covered from
// that balance.
func (e *Engine) ClaimReward(ctx context.Context, caller common.Address, key IncentiveKey, tokenID uint64, recipient common.Address, amountRequested *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := key.ID()
	deposit, ok := e.deposits[tokenID]
	if !ok {
		return nil, ErrStakeNotFound
	}
	if deposit.Owner != caller {
		return nil, ErrUnauthorized
	}
	stake, ok := e.stakes[stakeKey{incentiveID: id, tokenID: tokenID}]
	if !ok {
		return nil, ErrStakeNotFound
	}
	incentive, ok := e.incentives[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIncentiveNotFound, id.Hex())
	}
	if recipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	requested := q128.Clone(amountRequested)

	accrual, err := e.accrue(ctx, incentive, deposit, stake)
	if err != nil {
		return nil, err
	}

	ledgerKey := rewardKey{token: key.RewardToken, owner: recipient}
	balance := e.balance(ledgerKey)
	var nextBalance *uint256.Int
	if requested.Gt(accrual.reward) {
		shortfall := new(uint256.Int).Sub(requested, accrual.reward)
		if shortfall.Gt(balance) {
			return nil, ErrInsufficientComputedReward
		}
		nextBalance = new(uint256.Int).Sub(balance, shortfall)
	} else {
		remainder := new(uint256.Int).Sub(accrual.reward, requested)
		nextBalance = q128.AddClamp(balance, remainder)
	}

	if !requested.IsZero() {
		if err := e.tokens.Transfer(ctx, key.RewardToken, e.address, recipient, requested); err != nil {
			return nil, fmt.Errorf("pay reward: %w", err)
		}
	}

	accrual.apply(incentive)
	stake.SecondsPerLiquidityInsideInitialX128 = accrual.secondsPerLiquidityX128
	e.setBalance(ledgerKey, nextBalance)

	e.logger.Debug("reward claimed",
		zap.String("incentive", id.Hex()),
		zap.Uint64("token_id", tokenID),
		zap.String("reward", q128.Format(accrual.reward)),
		zap.String("paid", q128.Format(requested)),
	)
	e.emit(events.RewardClaimed{Recipient: recipient, Amount: q128.Clone(requested)})
	return requested, nil
}

// CollectRewards pays out the caller's ledger balance of rewardToken. A zero amount collects everything.
func (e *Engine) CollectRewards(ctx context.Context, caller, rewardToken, recipient common.Address, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if recipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	ledgerKey := rewardKey{token: rewardToken, owner: caller}
	balance := e.balance(ledgerKey)
	payout := q128.Clone(amount)
	if payout.IsZero() {
		payout = balance
	}
	if payout.Gt(balance) {
		return nil, ErrInsufficientRewardBalance
	}

	if !payout.IsZero() {
		if err := e.tokens.Transfer(ctx, rewardToken, e.address, recipient, payout); err != nil {
			return nil, fmt.Errorf("pay reward: %w", err)
		}
	}
	e.setBalance(ledgerKey, new(uint256.Int).Sub(balance, payout))

	e.emit(events.RewardClaimed{Recipient: recipient, Amount: q128.Clone(payout)})
	return payout, nil
}

// Incentive returns a copy of the incentive with id.
func (e *Engine) Incentive(id common.Hash) (Incentive, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	incentive, ok := e.incentives[id]
	if !ok {
		return Incentive{}, false
	}
	return incentive.clone(), true
}

// Deposit returns a copy of the deposit of tokenID.
func (e *Engine) Deposit(tokenID uint64) (Deposit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	deposit, ok := e.deposits[tokenID]
	if !ok {
		return Deposit{}, false
	}
	return *deposit, true
}

// Stake returns a copy of the stake of tokenID in incentive id. A missing stake reads as zero values.
func (e *Engine) Stake(id common.Hash, tokenID uint64) (Stake, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stake, ok := e.stakes[stakeKey{incentiveID: id, tokenID: tokenID}]
	if !ok {
		return Stake{SecondsPerLiquidityInsideInitialX128: q128.Zero(), Liquidity: q128.Zero()}, false
	}
	return stake.clone(), true
}

// Rewards returns the ledger balance of owner in rewardToken.
func (e *Engine) Rewards(rewardToken, owner common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return q128.Clone(e.balance(rewardKey{token: rewardToken, owner: owner}))
}

type rewardAccrual struct {
	reward                  *uint256.Int
	secondsInsideX128       *uint256.Int
	secondsPerLiquidityX128 *uint256.Int
}

func (a *rewardAccrual) apply(incentive *Incentive) {
	incentive.TotalRewardUnclaimed = q128.SubClamp(incentive.TotalRewardUnclaimed, a.reward)
	incentive.TotalSecondsClaimedX128 = q128.AddClamp(incentive.TotalSecondsClaimedX128, a.secondsInsideX128)
}

func (e *Engine) accrue(ctx context.Context, incentive *Incentive, deposit *Deposit, stake *Stake) (*rewardAccrual, error) {
	current, err := e.cumulativeInside(ctx, incentive.Key, deposit)
	if err != nil {
		return nil, fmt.Errorf("snapshot cumulatives: %w", err)
	}
	reward, secondsInside := rewardmath.ComputeRewardAmount(rewardmath.Inputs{
		TotalRewardUnclaimed:                 incentive.TotalRewardUnclaimed,
		TotalSecondsClaimedX128:              incentive.TotalSecondsClaimedX128,
		StartTime:                            incentive.Key.StartTime,
		EndTime:                              incentive.Key.EndTime,
		Liquidity:                            stake.Liquidity,
		SecondsPerLiquidityInsideInitialX128: stake.SecondsPerLiquidityInsideInitialX128,
		SecondsPerLiquidityInsideX128:        current,
	})
	return &rewardAccrual{
		reward:                  reward,
		secondsInsideX128:       secondsInside,
		secondsPerLiquidityX128: q128.Clone(current),
	}, nil
}

// cumulativeInside reads the range accumulator of a deposit, frozen at the incentive end time once
// that has passed.
func (e *Engine) cumulativeInside(ctx context.Context, key IncentiveKey, deposit *Deposit) (*uint256.Int, error) {
	if e.clock.Now() <= key.EndTime {
		return e.pools.SnapshotCumulativesInside(ctx, key.Pool, deposit.TickLower, deposit.TickUpper)
	}
	return e.pools.SnapshotCumulativesInsideAt(ctx, key.Pool, deposit.TickLower, deposit.TickUpper, key.EndTime)
}

func (e *Engine) balance(key rewardKey) *uint256.Int {
	if balance, ok := e.rewards[key]; ok {
		return balance
	}
	return q128.Zero()
}

func (e *Engine) setBalance(key rewardKey, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		delete(e.rewards, key)
		return
	}
	e.rewards[key] = amount
}

func (e *Engine) credit(token, owner common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	key := rewardKey{token: token, owner: owner}
	e.setBalance(key, q128.AddClamp(e.balance(key), amount))
}

func (e *Engine) emit(event events.Event) {
	e.sequence++
	e.emitter.Emit(events.Envelope{Sequence: e.sequence, Timestamp: e.clock.Now(), Event: event})
}
