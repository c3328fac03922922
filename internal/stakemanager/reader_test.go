package stakemanager

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ad3staker/internal/q128"
	"ad3staker/internal/retry"
	"ad3staker/internal/staker"
)

// fakeCaller answers eth_call by method name, packing the configured outputs.
type fakeCaller struct {
	abis    []abi.ABI
	outputs map[string][]interface{}
	calls   map[string]int
	block   *big.Int
}

func newFakeCaller(t *testing.T) *fakeCaller {
	t.Helper()
	var abis []abi.ABI
	for _, load := range []func() (abi.ABI, error){StakeManagerABI, PositionManagerABI, FactoryABI, PoolABI, erc20ABIString.get} {
		parsed, err := load()
		require.NoError(t, err)
		abis = append(abis, parsed)
	}
	return &fakeCaller{abis: abis, outputs: make(map[string][]interface{}), calls: make(map[string]int)}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.block = block
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	for _, parsed := range f.abis {
		method, err := parsed.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		if _, err := method.Inputs.Unpack(msg.Data[4:]); err != nil {
			return nil, fmt.Errorf("unpack %s inputs: %w", method.Name, err)
		}
		f.calls[method.Name]++
		values, ok := f.outputs[method.Name]
		if !ok {
			return nil, fmt.Errorf("execution reverted: %s", method.Name)
		}
		return method.Outputs.Pack(values...)
	}
	return nil, fmt.Errorf("unknown selector %x", msg.Data[:4])
}

func TestNewReaderResolvesCollaborators(t *testing.T) {
	caller := newFakeCaller(t)
	caller.outputs["factory"] = []interface{}{common.HexToAddress("0xf0")}
	caller.outputs["nonfungiblePositionManager"] = []interface{}{common.HexToAddress("0xf1")}

	reader, err := NewReader(context.Background(), caller, ReaderConfig{
		StakeManager: testContract,
		BlockNumber:  99,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf0"), reader.factory)
	require.Equal(t, common.HexToAddress("0xf1"), reader.positionManager)
	require.Equal(t, uint64(99), reader.BlockNumber())

	_, err = NewReader(context.Background(), caller, ReaderConfig{})
	require.Error(t, err)
}

func TestReaderInspectMatchesRecomputedReward(t *testing.T) {
	caller := newFakeCaller(t)
	reader, err := NewReader(context.Background(), caller, ReaderConfig{
		StakeManager:    testContract,
		Factory:         common.HexToAddress("0xf0"),
		PositionManager: common.HexToAddress("0xf1"),
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.Zero(t, caller.calls["factory"])

	key := staker.IncentiveKey{
		RewardToken: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Pool:        common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		StartTime:   1_700_000_100,
		EndTime:     1_700_001_100,
	}
	hundred, _ := new(big.Int).SetString("100000000000000000000", 10)
	fifty, _ := new(big.Int).SetString("50000000000000000000", 10)
	seconds := new(big.Int).Lsh(big.NewInt(500), 128)
	perLiquidity := new(big.Int).Div(seconds, big.NewInt(1024))

	caller.outputs["decimals"] = []interface{}{uint8(18)}
	caller.outputs["symbol"] = []interface{}{"AD3"}
	caller.outputs["name"] = []interface{}{"Ad3 Token"}
	caller.outputs["incentives"] = []interface{}{hundred, big.NewInt(0), big.NewInt(1), big.NewInt(-600), big.NewInt(600)}
	caller.outputs["deposits"] = []interface{}{common.HexToAddress("0xcc"), big.NewInt(1), big.NewInt(-60), big.NewInt(60)}
	caller.outputs["stakes"] = []interface{}{big.NewInt(0), big.NewInt(1024)}
	caller.outputs["slot0"] = []interface{}{big.NewInt(1 << 40), big.NewInt(0), uint16(0), uint16(1), uint16(1), uint32(0), true}
	caller.outputs["snapshotCumulativesInside"] = []interface{}{big.NewInt(0), perLiquidity, uint32(500)}
	caller.outputs["getAccruedRewardInfo"] = []interface{}{fifty, seconds}

	report, err := reader.Inspect(context.Background(), key, 7)
	require.NoError(t, err)
	require.Equal(t, key.ID().Hex(), report.IncentiveID)
	require.Equal(t, "AD3", report.RewardToken.Symbol)
	require.Equal(t, uint8(18), report.RewardToken.Decimals)
	require.True(t, report.InRange)
	require.Equal(t, fifty.String(), report.ComputedReward)
	require.Equal(t, seconds.String(), report.ComputedSecondsInsideX128)
	require.True(t, report.Match)

	caller.outputs["getAccruedRewardInfo"] = []interface{}{hundred, seconds}
	report, err = reader.Inspect(context.Background(), key, 7)
	require.NoError(t, err)
	require.False(t, report.Match)
	require.Equal(t, 1, caller.calls["decimals"], "token metadata is cached")
}

func TestReaderInspectMissingIncentive(t *testing.T) {
	caller := newFakeCaller(t)
	reader, err := NewReader(context.Background(), caller, ReaderConfig{
		StakeManager:    testContract,
		Factory:         common.HexToAddress("0xf0"),
		PositionManager: common.HexToAddress("0xf1"),
	})
	require.NoError(t, err)

	caller.outputs["incentives"] = []interface{}{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)}
	_, err = reader.Inspect(context.Background(), staker.IncentiveKey{Pool: common.HexToAddress("0xbb")}, 1)
	require.ErrorIs(t, err, staker.ErrIncentiveNotFound)
}

func TestReaderPositionAndPool(t *testing.T) {
	caller := newFakeCaller(t)
	reader, err := NewReader(context.Background(), caller, ReaderConfig{
		StakeManager:    testContract,
		Factory:         common.HexToAddress("0xf0"),
		PositionManager: common.HexToAddress("0xf1"),
	})
	require.NoError(t, err)

	token0 := common.HexToAddress("0x1000")
	token1 := common.HexToAddress("0x2000")
	pool := common.HexToAddress("0x3000")
	caller.outputs["positions"] = []interface{}{
		big.NewInt(0), common.Address{}, token0, token1, big.NewInt(3000),
		big.NewInt(-120), big.NewInt(120), big.NewInt(5000),
		big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0),
	}
	caller.outputs["getPool"] = []interface{}{pool}
	caller.outputs["ownerOf"] = []interface{}{testContract}
	caller.outputs["rewards"] = []interface{}{big.NewInt(77)}
	caller.outputs["balanceOf"] = []interface{}{big.NewInt(88)}

	position, err := reader.Positions(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, token0, position.Token0)
	require.Equal(t, uint32(3000), position.Fee)
	require.Equal(t, int32(-120), position.TickLower)
	require.Equal(t, "5000", q128.Format(position.Liquidity))

	got, err := reader.GetPool(context.Background(), position.Token0, position.Token1, position.Fee)
	require.NoError(t, err)
	require.Equal(t, pool, got)

	owner, err := reader.OwnerOf(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, testContract, owner)

	rewards, err := reader.Rewards(context.Background(), token0, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(77), rewards.Uint64())

	balance, err := reader.BalanceOf(context.Background(), token0, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(88), balance.Uint64())

	_, err = reader.SnapshotCumulativesInside(context.Background(), pool, -120, 120)
	require.ErrorContains(t, err, "reverted")
}

// fakeBlocks mines a block every 12 seconds from genesis.
type fakeBlocks struct {
	head    uint64
	genesis uint64
}

func (b fakeBlocks) LatestBlockNumber(context.Context) (uint64, error) {
	return b.head, nil
}

func (b fakeBlocks) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	if number > b.head {
		return 0, fmt.Errorf("block %d not found", number)
	}
	return b.genesis + 12*number, nil
}

func TestReaderSnapshotAtResolvesBlock(t *testing.T) {
	caller := newFakeCaller(t)
	caller.outputs["snapshotCumulativesInside"] = []interface{}{big.NewInt(0), big.NewInt(42), uint32(7)}
	pool := common.HexToAddress("0x3000")

	newReader := func(pinned uint64, blocks BlockClock) *Reader {
		reader, err := NewReader(context.Background(), caller, ReaderConfig{
			StakeManager:    testContract,
			Factory:         common.HexToAddress("0xf0"),
			PositionManager: common.HexToAddress("0xf1"),
			BlockNumber:     pinned,
			Blocks:          blocks,
		})
		require.NoError(t, err)
		return reader
	}

	reader := newReader(0, fakeBlocks{head: 100, genesis: 1000})
	cases := []struct {
		timestamp uint64
		block     uint64
	}{
		{timestamp: 1000, block: 0},
		{timestamp: 1000 + 12*40, block: 40},
		{timestamp: 1000 + 12*40 + 11, block: 40},
		{timestamp: 1000 + 12*100, block: 100},
		{timestamp: 9000, block: 100},
	}
	for _, tc := range cases {
		value, err := reader.SnapshotCumulativesInsideAt(context.Background(), pool, -60, 60, tc.timestamp)
		require.NoError(t, err, "timestamp %d", tc.timestamp)
		require.Equal(t, uint64(42), value.Uint64())
		require.Equal(t, tc.block, caller.block.Uint64(), "timestamp %d", tc.timestamp)
	}

	_, err := reader.SnapshotCumulativesInsideAt(context.Background(), pool, -60, 60, 999)
	require.ErrorContains(t, err, "precedes")

	pinned := newReader(50, fakeBlocks{head: 100, genesis: 1000})
	_, err = pinned.SnapshotCumulativesInsideAt(context.Background(), pool, -60, 60, 9000)
	require.NoError(t, err)
	require.Equal(t, uint64(50), caller.block.Uint64())

	_, err = newReader(0, nil).SnapshotCumulativesInsideAt(context.Background(), pool, -60, 60, 1000)
	require.ErrorContains(t, err, "block clock")
}

type flakyCaller struct {
	next     ContractCaller
	failures int
}

func (f *flakyCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("connection reset")
	}
	return f.next.CallContract(ctx, msg, block)
}

func TestWithRetryRecoversTransientFailures(t *testing.T) {
	caller := newFakeCaller(t)
	caller.outputs["factory"] = []interface{}{common.HexToAddress("0xf0")}
	caller.outputs["nonfungiblePositionManager"] = []interface{}{common.HexToAddress("0xf1")}

	flaky := &flakyCaller{next: caller, failures: 2}
	reader, err := NewReader(context.Background(), WithRetry(flaky, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, zaptest.NewLogger(t)), ReaderConfig{
		StakeManager: testContract,
	})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf0"), reader.factory)
	require.Zero(t, flaky.failures)
}
