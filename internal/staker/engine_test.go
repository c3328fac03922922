package staker_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ad3staker/internal/events"
	"ad3staker/internal/q128"
	"ad3staker/internal/sim"
	"ad3staker/internal/staker"
)

const genesis = uint64(1_700_000_000)

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000057a4")
	governance  = common.HexToAddress("0x000000000000000000000000000000000000060f")
	rewardToken = common.HexToAddress("0x000000000000000000000000000000000000ad30")
	token0      = common.HexToAddress("0x0000000000000000000000000000000000001000")
	token1      = common.HexToAddress("0x0000000000000000000000000000000000002000")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	refundee    = common.HexToAddress("0x000000000000000000000000000000000000fefe")
)

type fixture struct {
	ctx      context.Context
	env      *sim.Environment
	engine   *staker.Engine
	recorder *events.Recorder
	pool     common.Address
	key      staker.IncentiveKey
}

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := sim.NewEnvironment(genesis)
	recorder := events.NewRecorder()
	engine, err := env.NewEngine(engineAddr, governance, recorder, zaptest.NewLogger(t))
	require.NoError(t, err)

	pool, err := env.Exchange.CreatePool(token0, token1, 3000, 0)
	require.NoError(t, err)

	env.Tokens.Mint(rewardToken, governance, ether(1000))
	env.Tokens.Approve(rewardToken, governance, engineAddr, ether(1000))

	return &fixture{
		ctx:      context.Background(),
		env:      env,
		engine:   engine,
		recorder: recorder,
		pool:     pool,
		key: staker.IncentiveKey{
			RewardToken: rewardToken,
			Pool:        pool,
			StartTime:   genesis + 100,
			EndTime:     genesis + 1100,
		},
	}
}

func (f *fixture) createIncentive(t *testing.T, reward *uint256.Int) common.Hash {
	t.Helper()
	id, err := f.engine.CreateIncentive(f.ctx, governance, f.key, reward, -887220, 887220)
	require.NoError(t, err)
	return id
}

func (f *fixture) mint(t *testing.T, owner common.Address, lower, upper int32, liquidity uint64) uint64 {
	t.Helper()
	id, err := f.env.Exchange.MintPosition(owner, f.pool, lower, upper, uint256.NewInt(liquidity))
	require.NoError(t, err)
	return id
}

func TestIncentiveIDMatchesABIEncoding(t *testing.T) {
	key := staker.IncentiveKey{RewardToken: rewardToken, Pool: token0, StartTime: 7, EndTime: 9}
	encoded := append([]byte{}, common.LeftPadBytes(rewardToken.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(token0.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes([]byte{7}, 32)...)
	encoded = append(encoded, common.LeftPadBytes([]byte{9}, 32)...)

	require.Equal(t, crypto.Keccak256Hash(encoded), key.ID())
	require.Equal(t, key.ID(), key.ID())

	other := key
	other.EndTime = 10
	require.NotEqual(t, key.ID(), other.ID())
}

func TestDepositBeforeStartFails(t *testing.T) {
	f := newFixture(t)
	f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)

	f.env.Clock.Set(genesis + 99)
	err := f.engine.DepositToken(f.ctx, alice, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrIncentiveNotStarted)
	require.Equal(t, staker.CodeIncentiveNotStarted, staker.Code(err))

	_, held := f.engine.Deposit(tokenID)
	require.False(t, held)
	owner, err := f.env.Exchange.OwnerOf(f.ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
}

func TestDepositRecordsOwnerAndStake(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)

	f.env.Clock.Set(genesis + 101)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	deposit, ok := f.engine.Deposit(tokenID)
	require.True(t, ok)
	require.Equal(t, uint64(1), deposit.NumberOfStakes)
	require.Equal(t, alice, deposit.Owner)
	require.Equal(t, int32(-60), deposit.TickLower)

	incentive, ok := f.engine.Incentive(id)
	require.True(t, ok)
	require.Equal(t, uint64(1), incentive.NumberOfStakes)

	stake, ok := f.engine.Stake(id, tokenID)
	require.True(t, ok)
	require.Equal(t, uint64(1024), stake.Liquidity.Uint64())

	owner, err := f.env.Exchange.OwnerOf(f.ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, engineAddr, owner)

	payloads := f.recorder.Payloads()
	require.Len(t, payloads, 3)
	require.Equal(t, events.TokenReceived{TokenID: tokenID, Owner: alice}, payloads[1])
	staked, ok := payloads[2].(events.TokenStaked)
	require.True(t, ok)
	require.Equal(t, id, staked.IncentiveID)
	require.Equal(t, uint64(1024), staked.Liquidity.Uint64())
}

func TestCancelIncentiveTimingAndRefund(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 101)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	_, err := f.engine.CancelIncentive(f.ctx, alice, f.key, refundee)
	require.ErrorIs(t, err, staker.ErrUnauthorized)

	f.env.Clock.Set(f.key.EndTime)
	_, err = f.engine.CancelIncentive(f.ctx, governance, f.key, refundee)
	require.ErrorIs(t, err, staker.ErrIncentiveNotEnded)

	f.env.Clock.Set(f.key.EndTime + 1)
	before := f.env.Tokens.Balance(rewardToken, refundee)
	incentive, _ := f.engine.Incentive(id)
	refund, err := f.engine.CancelIncentive(f.ctx, governance, f.key, refundee)
	require.NoError(t, err)
	require.True(t, refund.Eq(incentive.TotalRewardUnclaimed))

	after := f.env.Tokens.Balance(rewardToken, refundee)
	require.True(t, new(uint256.Int).Sub(after, before).Eq(incentive.TotalRewardUnclaimed))

	_, ok := f.engine.Incentive(id)
	require.False(t, ok)

	_, err = f.engine.CancelIncentive(f.ctx, governance, f.key, refundee)
	require.ErrorIs(t, err, staker.ErrIncentiveNotFound)
}

func TestAccruedRewardIsZeroAfterCancel(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 101)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	f.env.Clock.Set(f.key.EndTime + 10)
	reward, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.False(t, reward.IsZero())

	_, err = f.engine.CancelIncentive(f.ctx, governance, f.key, refundee)
	require.NoError(t, err)

	reward, seconds, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.True(t, reward.IsZero())
	require.True(t, seconds.IsZero())

	require.NoError(t, f.engine.UnstakeToken(f.ctx, alice, f.key, tokenID))
	require.True(t, f.engine.Rewards(rewardToken, alice).IsZero())
	_, ok := f.engine.Stake(id, tokenID)
	require.False(t, ok)

	require.NoError(t, f.engine.WithdrawToken(f.ctx, alice, tokenID, alice))
	owner, err := f.env.Exchange.OwnerOf(f.ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
}

func TestClaimExactRewardTransfersAmount(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	f.env.Clock.Set(genesis + 600)
	reward, seconds, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.True(t, reward.Eq(ether(50)), "reward %s", q128.Format(reward))
	require.True(t, seconds.Eq(q128.FromSeconds(500)))

	paid, err := f.engine.ClaimReward(f.ctx, alice, f.key, tokenID, bob, reward)
	require.NoError(t, err)
	require.True(t, paid.Eq(reward))
	require.True(t, f.env.Tokens.Balance(rewardToken, bob).Eq(ether(50)))
	require.True(t, f.engine.Rewards(rewardToken, bob).IsZero())

	incentive, _ := f.engine.Incentive(id)
	require.True(t, incentive.TotalRewardUnclaimed.Eq(ether(50)))
	require.True(t, incentive.TotalSecondsClaimedX128.Eq(q128.FromSeconds(500)))

	again, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.True(t, again.IsZero(), "baseline should reset after claim")

	last := f.recorder.Payloads()[len(f.recorder.Payloads())-1]
	require.Equal(t, events.TypeRewardClaimed, last.EventType())
	require.True(t, last.(events.RewardClaimed).Amount.Eq(reward))
}

func TestClaimPartialCreditsRemainder(t *testing.T) {
	f := newFixture(t)
	f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))
	f.env.Clock.Set(genesis + 600)

	_, err := f.engine.ClaimReward(f.ctx, alice, f.key, tokenID, bob, ether(60))
	require.ErrorIs(t, err, staker.ErrInsufficientComputedReward)
	reward, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.True(t, reward.Eq(ether(50)), "failed claim must not change state")

	_, err = f.engine.ClaimReward(f.ctx, alice, f.key, tokenID, bob, ether(20))
	require.NoError(t, err)
	require.True(t, f.env.Tokens.Balance(rewardToken, bob).Eq(ether(20)))
	require.True(t, f.engine.Rewards(rewardToken, bob).Eq(ether(30)))

	f.env.Clock.Set(genesis + 700)
	// 100 more seconds of a 500 second remaining budget over 50 remaining tokens.
	_, err = f.engine.ClaimReward(f.ctx, alice, f.key, tokenID, bob, ether(35))
	require.NoError(t, err)
	require.True(t, f.engine.Rewards(rewardToken, bob).Eq(ether(5)))

	_, err = f.engine.CollectRewards(f.ctx, bob, rewardToken, bob, ether(6))
	require.ErrorIs(t, err, staker.ErrInsufficientRewardBalance)
	collected, err := f.engine.CollectRewards(f.ctx, bob, rewardToken, bob, nil)
	require.NoError(t, err)
	require.True(t, collected.Eq(ether(5)))
	require.True(t, f.env.Tokens.Balance(rewardToken, bob).Eq(ether(60)))
	require.True(t, f.engine.Rewards(rewardToken, bob).IsZero())
}

func TestEqualStakesEarnEqualRewards(t *testing.T) {
	f := newFixture(t)
	f.createIncentive(t, ether(100))
	first := f.mint(t, alice, -60, 60, 3000)
	second := f.mint(t, bob, -60, 60, 3000)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, first))
	require.NoError(t, f.engine.DepositToken(f.ctx, bob, f.key, second))

	f.env.Clock.Set(genesis + 433)
	r1, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, first)
	require.NoError(t, err)
	_, err = f.engine.ClaimReward(f.ctx, alice, f.key, first, alice, r1)
	require.NoError(t, err)
	r2, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, second)
	require.NoError(t, err)
	_, err = f.engine.ClaimReward(f.ctx, bob, f.key, second, bob, r2)
	require.NoError(t, err)

	diff := new(uint256.Int)
	if r1.Gt(r2) {
		diff.Sub(r1, r2)
	} else {
		diff.Sub(r2, r1)
	}
	require.True(t, diff.Cmp(uint256.NewInt(1)) <= 0, "r1=%s r2=%s", q128.Format(r1), q128.Format(r2))
}

func TestAccrualIsMonotonicAndReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 777)
	f.env.Clock.Set(genesis + 150)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	previous := q128.Zero()
	for now := genesis + 150; now <= genesis+1300; now += 37 {
		f.env.Clock.Set(now)
		a, sa, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
		require.NoError(t, err)
		b, sb, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
		require.NoError(t, err)
		require.True(t, a.Eq(b))
		require.True(t, sa.Eq(sb))
		require.False(t, a.Lt(previous), "reward decreased at %d", now)
		previous = a
	}

	incentive, _ := f.engine.Incentive(f.key.ID())
	require.False(t, previous.Gt(incentive.TotalRewardUnclaimed))
}

func TestRewardConservation(t *testing.T) {
	f := newFixture(t)
	total := ether(100)
	id := f.createIncentive(t, total)
	first := f.mint(t, alice, -60, 60, 1000)
	second := f.mint(t, bob, -120, 120, 2500)

	f.env.Clock.Set(genesis + 120)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, first))
	f.env.Clock.Set(genesis + 300)
	require.NoError(t, f.engine.DepositToken(f.ctx, bob, f.key, second))

	distributed := q128.Zero()
	claim := func(caller common.Address, tokenID uint64) {
		reward, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
		require.NoError(t, err)
		_, err = f.engine.ClaimReward(f.ctx, caller, f.key, tokenID, caller, reward)
		require.NoError(t, err)
		distributed = q128.AddClamp(distributed, reward)
	}

	f.env.Clock.Set(genesis + 500)
	claim(alice, first)
	require.NoError(t, f.env.Exchange.SetTick(f.pool, 90))
	f.env.Clock.Set(genesis + 800)
	claim(bob, second)
	require.NoError(t, f.env.Exchange.SetTick(f.pool, 0))
	f.env.Clock.Set(genesis + 1000)
	require.NoError(t, f.engine.UnstakeToken(f.ctx, alice, f.key, first))
	distributed = q128.AddClamp(distributed, f.engine.Rewards(rewardToken, alice))
	f.env.Clock.Set(genesis + 1200)
	claim(bob, second)

	incentive, ok := f.engine.Incentive(id)
	require.True(t, ok)
	require.True(t, new(uint256.Int).Sub(total, incentive.TotalRewardUnclaimed).Eq(distributed))

	held := f.env.Tokens.Balance(rewardToken, engineAddr)
	owed := q128.AddClamp(incentive.TotalRewardUnclaimed, f.engine.Rewards(rewardToken, alice))
	require.True(t, held.Eq(owed), "engine holds %s, owes %s", q128.Format(held), q128.Format(owed))
}

func TestCreateIncentiveValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		caller common.Address
		key    staker.IncentiveKey
		reward *uint256.Int
		min    int32
		max    int32
		want   *staker.Error
	}{
		{name: "not governance", caller: alice, key: f.key, reward: ether(1), min: -10, max: 10, want: staker.ErrUnauthorized},
		{name: "empty window", caller: governance, key: staker.IncentiveKey{RewardToken: rewardToken, Pool: f.pool, StartTime: 5, EndTime: 5}, reward: ether(1), min: -10, max: 10, want: staker.ErrInvalidIncentiveWindow},
		{name: "zero reward", caller: governance, key: f.key, reward: q128.Zero(), min: -10, max: 10, want: staker.ErrZeroReward},
		{name: "inverted ticks", caller: governance, key: f.key, reward: ether(1), min: 10, max: -10, want: staker.ErrInvalidTickRange},
		{name: "window started", caller: governance, key: staker.IncentiveKey{RewardToken: rewardToken, Pool: f.pool, StartTime: genesis - 1, EndTime: genesis + 10}, reward: ether(1), min: -10, max: 10, want: staker.ErrIncentiveStartPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateIncentive(f.ctx, tc.caller, tc.key, tc.reward, tc.min, tc.max)
			require.ErrorIs(t, err, tc.want)
		})
	}

	f.createIncentive(t, ether(1))
	_, err := f.engine.CreateIncentive(f.ctx, governance, f.key, ether(1), -10, 10)
	require.ErrorIs(t, err, staker.ErrDuplicateIncentive)

	unfunded := f.key
	unfunded.EndTime++
	_, err = f.engine.CreateIncentive(f.ctx, governance, unfunded, ether(5000), -10, 10)
	require.ErrorIs(t, err, sim.ErrInsufficientAllowance)
	require.Equal(t, staker.ErrorCode(""), staker.Code(err))
	_, ok := f.engine.Incentive(unfunded.ID())
	require.False(t, ok)

	startsNow := staker.IncentiveKey{RewardToken: rewardToken, Pool: f.pool, StartTime: genesis, EndTime: genesis + 10}
	_, err = f.engine.CreateIncentive(f.ctx, governance, startsNow, ether(1), -10, 10)
	require.NoError(t, err)
}

func TestCancelledIncentiveCannotBeRecreated(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	f.env.Clock.Set(f.key.EndTime + 1)
	_, err := f.engine.CancelIncentive(f.ctx, governance, f.key, refundee)
	require.NoError(t, err)

	_, err = f.engine.CreateIncentive(f.ctx, governance, f.key, ether(100), -887220, 887220)
	require.ErrorIs(t, err, staker.ErrIncentiveStartPassed)
	require.Equal(t, staker.CodeIncentiveStartPassed, staker.Code(err))
	_, ok := f.engine.Incentive(id)
	require.False(t, ok)

	reward, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
	require.NoError(t, err)
	require.True(t, reward.IsZero())

	require.NoError(t, f.engine.UnstakeToken(f.ctx, alice, f.key, tokenID))
	deposit, ok := f.engine.Deposit(tokenID)
	require.True(t, ok)
	require.Equal(t, uint64(0), deposit.NumberOfStakes)
	require.True(t, f.engine.Rewards(rewardToken, alice).IsZero())
	require.True(t, f.env.Tokens.Balance(rewardToken, engineAddr).IsZero())
}

func TestEqualStakesShareRewardsAfterEnd(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	first := f.mint(t, alice, -60, 60, 1024)
	second := f.mint(t, bob, -60, 60, 1024)
	f.env.Clock.Set(f.key.StartTime)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, first))
	require.NoError(t, f.engine.DepositToken(f.ctx, bob, f.key, second))

	f.env.Clock.Set(f.key.EndTime + 1000)
	for _, tokenID := range []uint64{first, second} {
		reward, seconds, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, tokenID)
		require.NoError(t, err)
		require.True(t, reward.Eq(ether(50)), "token %d reward %s", tokenID, q128.Format(reward))
		require.True(t, seconds.Eq(q128.FromSeconds(500)))
	}

	paid, err := f.engine.ClaimReward(f.ctx, alice, f.key, first, alice, ether(50))
	require.NoError(t, err)
	require.True(t, paid.Eq(ether(50)))

	f.env.Clock.Set(f.key.EndTime + 5000)
	again, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, first)
	require.NoError(t, err)
	require.True(t, again.IsZero(), "accrual must stop at the end time")

	require.NoError(t, f.engine.UnstakeToken(f.ctx, bob, f.key, second))
	require.True(t, f.engine.Rewards(rewardToken, bob).Eq(ether(50)))

	incentive, ok := f.engine.Incentive(id)
	require.True(t, ok)
	require.True(t, incentive.TotalRewardUnclaimed.IsZero())
	require.Equal(t, uint64(1), incentive.NumberOfStakes)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.CreateIncentive(f.ctx, governance, f.key, ether(10), -120, 120)
	require.NoError(t, err)
	f.env.Clock.Set(genesis + 200)

	tokenID := f.mint(t, alice, -60, 60, 100)
	err = f.engine.DepositToken(f.ctx, bob, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrNotApproved)

	require.NoError(t, f.env.Exchange.Approve(alice, bob, tokenID))
	require.NoError(t, f.engine.DepositToken(f.ctx, bob, f.key, tokenID))
	deposit, _ := f.engine.Deposit(tokenID)
	require.Equal(t, bob, deposit.Owner)

	err = f.engine.DepositToken(f.ctx, bob, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrAlreadyStaked)
	err = f.engine.DepositToken(f.ctx, alice, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrNotApproved)

	wide := f.mint(t, alice, -600, 600, 100)
	err = f.engine.DepositToken(f.ctx, alice, f.key, wide)
	require.ErrorIs(t, err, staker.ErrPositionOutOfRange)

	otherPool, err := f.env.Exchange.CreatePool(token0, token1, 500, 0)
	require.NoError(t, err)
	foreign, err := f.env.Exchange.MintPosition(alice, otherPool, -60, 60, uint256.NewInt(100))
	require.NoError(t, err)
	err = f.engine.DepositToken(f.ctx, alice, f.key, foreign)
	require.ErrorIs(t, err, staker.ErrPoolMismatch)

	empty := f.mint(t, alice, -60, 60, 0)
	err = f.engine.DepositToken(f.ctx, alice, f.key, empty)
	require.ErrorIs(t, err, staker.ErrZeroLiquidity)

	missing := f.key
	missing.StartTime++
	err = f.engine.DepositToken(f.ctx, alice, missing, tokenID)
	require.ErrorIs(t, err, staker.ErrIncentiveNotFound)

	f.env.Clock.Set(f.key.EndTime)
	err = f.engine.DepositToken(f.ctx, alice, f.key, wide)
	require.ErrorIs(t, err, staker.ErrIncentiveEnded)

	incentive, _ := f.engine.Incentive(id)
	require.Equal(t, uint64(1), incentive.NumberOfStakes)
}

func TestUnstakeAndWithdraw(t *testing.T) {
	f := newFixture(t)
	id := f.createIncentive(t, ether(100))
	tokenID := f.mint(t, alice, -60, 60, 1024)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, tokenID))

	err := f.engine.WithdrawToken(f.ctx, alice, tokenID, alice)
	require.ErrorIs(t, err, staker.ErrActiveStakesExist)

	f.env.Clock.Set(genesis + 350)
	err = f.engine.UnstakeToken(f.ctx, bob, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrUnauthorized)
	require.NoError(t, f.engine.UnstakeToken(f.ctx, alice, f.key, tokenID))
	require.True(t, f.engine.Rewards(rewardToken, alice).Eq(ether(25)))

	err = f.engine.UnstakeToken(f.ctx, alice, f.key, tokenID)
	require.ErrorIs(t, err, staker.ErrStakeNotFound)

	incentive, _ := f.engine.Incentive(id)
	require.Equal(t, uint64(0), incentive.NumberOfStakes)
	require.True(t, incentive.TotalRewardUnclaimed.Eq(ether(75)))

	err = f.engine.WithdrawToken(f.ctx, bob, tokenID, bob)
	require.ErrorIs(t, err, staker.ErrUnauthorized)
	err = f.engine.WithdrawToken(f.ctx, alice, tokenID, common.Address{})
	require.ErrorIs(t, err, staker.ErrInvalidRecipient)
	require.NoError(t, f.engine.WithdrawToken(f.ctx, alice, tokenID, bob))

	owner, err := f.env.Exchange.OwnerOf(f.ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
	err = f.engine.WithdrawToken(f.ctx, alice, tokenID, alice)
	require.ErrorIs(t, err, staker.ErrDepositNotFound)

	last := f.recorder.Payloads()[len(f.recorder.Payloads())-1]
	require.Equal(t, events.TokenWithdrawn{TokenID: tokenID, Recipient: bob}, last)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.createIncentive(t, ether(100))
	first := f.mint(t, alice, -60, 60, 1024)
	second := f.mint(t, bob, -60, 60, 2048)
	f.env.Clock.Set(genesis + 100)
	require.NoError(t, f.engine.DepositToken(f.ctx, alice, f.key, first))
	require.NoError(t, f.engine.DepositToken(f.ctx, bob, f.key, second))
	f.env.Clock.Set(genesis + 400)
	require.NoError(t, f.engine.UnstakeToken(f.ctx, alice, f.key, first))

	snap := f.engine.Snapshot()
	require.Len(t, snap.Incentives, 1)
	require.Len(t, snap.Deposits, 2)
	require.Len(t, snap.Stakes, 1)
	require.Len(t, snap.Rewards, 1)
	require.Equal(t, engineAddr.Hex(), snap.Engine)

	require.Equal(t, uint64(len(f.recorder.Events())), snap.Sequence)

	restoredEvents := events.NewRecorder()
	restored, err := f.env.NewEngine(engineAddr, governance, restoredEvents, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	require.Equal(t, snap, restored.Snapshot())

	f.env.Clock.Set(genesis + 900)
	want, _, err := f.engine.GetAccruedRewardInfo(f.ctx, f.key, second)
	require.NoError(t, err)
	got, _, err := restored.GetAccruedRewardInfo(f.ctx, f.key, second)
	require.NoError(t, err)
	require.True(t, want.Eq(got))

	_, err = restored.CollectRewards(f.ctx, alice, rewardToken, alice, nil)
	require.NoError(t, err)
	envelopes := restoredEvents.Events()
	require.Len(t, envelopes, 1)
	require.Equal(t, snap.Sequence+1, envelopes[0].(events.Envelope).Sequence)

	badID := f.engine.Snapshot()
	badID.Incentives[0].IncentiveID = "0x1234"
	require.ErrorContains(t, restored.Restore(badID), "invalid id")
	badID = f.engine.Snapshot()
	badID.Stakes[0].IncentiveID = "not-a-hash"
	require.ErrorContains(t, restored.Restore(badID), "invalid id")

	snap.Stakes[0].TokenID = 99
	require.Error(t, restored.Restore(snap))
	require.True(t, restored.Rewards(rewardToken, alice).IsZero())
	require.False(t, f.engine.Rewards(rewardToken, alice).IsZero())
}
