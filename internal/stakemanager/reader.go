package stakemanager

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ad3staker/internal/model"
	"ad3staker/internal/staker"
)

// ContractCaller performs read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BlockClock resolves block timestamps. *chain.Client satisfies it.
type BlockClock interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// ReaderConfig configures a Reader. Zero Factory or PositionManager addresses are resolved from the
// stake manager contract.
type ReaderConfig struct {
	StakeManager    common.Address
	Factory         common.Address
	PositionManager common.Address
	// BlockNumber pins every call to a block; zero reads the latest state.
	BlockNumber uint64
	// Blocks enables reads as of a past timestamp. Those need an archive node.
	Blocks BlockClock
	Logger *zap.Logger
}

// Reader reads a deployed stake manager and its collaborators.
type Reader struct {
	caller          ContractCaller
	stakeManager    common.Address
	factory         common.Address
	positionManager common.Address
	block           *big.Int
	blocks          BlockClock
	tokens          *TokenMetaCache
	logger          *zap.Logger
}

var _ staker.PoolOracle = (*Reader)(nil)

// NewReader builds a reader over caller.
func NewReader(ctx context.Context, caller ContractCaller, cfg ReaderConfig) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	if cfg.StakeManager == (common.Address{}) {
		return nil, fmt.Errorf("stake manager address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		caller:          caller,
		stakeManager:    cfg.StakeManager,
		factory:         cfg.Factory,
		positionManager: cfg.PositionManager,
		blocks:          cfg.Blocks,
		tokens:          NewTokenMetaCache(),
		logger:          logger,
	}
	if cfg.BlockNumber > 0 {
		r.block = new(big.Int).SetUint64(cfg.BlockNumber)
	}

	parsed, err := StakeManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse stake manager abi: %w", err)
	}
	if r.factory == (common.Address{}) {
		values, err := r.call(ctx, r.stakeManager, parsed, "factory")
		if err != nil {
			return nil, err
		}
		if r.factory, err = asAddress(values[0]); err != nil {
			return nil, fmt.Errorf("factory: %w", err)
		}
	}
	if r.positionManager == (common.Address{}) {
		values, err := r.call(ctx, r.stakeManager, parsed, "nonfungiblePositionManager")
		if err != nil {
			return nil, err
		}
		if r.positionManager, err = asAddress(values[0]); err != nil {
			return nil, fmt.Errorf("position manager: %w", err)
		}
	}
	return r, nil
}

// StakeManager returns the contract address being read.
func (r *Reader) StakeManager() common.Address { return r.stakeManager }

// BlockNumber returns the pinned block, or 0 for latest.
func (r *Reader) BlockNumber() uint64 {
	if r.block == nil {
		return 0
	}
	return r.block.Uint64()
}

// Incentive reads incentives(id) for key. ok is false when every field reads as zero.
func (r *Reader) Incentive(ctx context.Context, key staker.IncentiveKey) (staker.Incentive, bool, error) {
	parsed, err := StakeManagerABI()
	if err != nil {
		return staker.Incentive{}, false, err
	}
	values, err := r.call(ctx, r.stakeManager, parsed, "incentives", [32]byte(key.ID()))
	if err != nil {
		return staker.Incentive{}, false, err
	}
	if len(values) != 5 {
		return staker.Incentive{}, false, fmt.Errorf("unexpected incentives values: %d", len(values))
	}

	unclaimed, err := asUint256(values[0])
	if err != nil {
		return staker.Incentive{}, false, fmt.Errorf("total reward unclaimed: %w", err)
	}
	claimed, err := asUint256(values[1])
	if err != nil {
		return staker.Incentive{}, false, fmt.Errorf("total seconds claimed: %w", err)
	}
	stakes, err := asUint64(values[2])
	if err != nil {
		return staker.Incentive{}, false, fmt.Errorf("number of stakes: %w", err)
	}
	minTick, err := asInt24(values[3])
	if err != nil {
		return staker.Incentive{}, false, fmt.Errorf("min tick: %w", err)
	}
	maxTick, err := asInt24(values[4])
	if err != nil {
		return staker.Incentive{}, false, fmt.Errorf("max tick: %w", err)
	}

	incentive := staker.Incentive{
		Key:                     key,
		TotalRewardUnclaimed:    unclaimed,
		TotalSecondsClaimedX128: claimed,
		MinTick:                 minTick,
		MaxTick:                 maxTick,
		NumberOfStakes:          stakes,
	}
	ok := !unclaimed.IsZero() || !claimed.IsZero() || stakes > 0 || minTick != 0 || maxTick != 0
	return incentive, ok, nil
}

// Deposit reads deposits(tokenID). ok is false when the owner is the zero address.
func (r *Reader) Deposit(ctx context.Context, tokenID uint64) (staker.Deposit, bool, error) {
	parsed, err := StakeManagerABI()
	if err != nil {
		return staker.Deposit{}, false, err
	}
	values, err := r.call(ctx, r.stakeManager, parsed, "deposits", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return staker.Deposit{}, false, err
	}
	if len(values) != 4 {
		return staker.Deposit{}, false, fmt.Errorf("unexpected deposits values: %d", len(values))
	}

	owner, err := asAddress(values[0])
	if err != nil {
		return staker.Deposit{}, false, fmt.Errorf("owner: %w", err)
	}
	stakes, err := asUint64(values[1])
	if err != nil {
		return staker.Deposit{}, false, fmt.Errorf("number of stakes: %w", err)
	}
	tickLower, err := asInt24(values[2])
	if err != nil {
		return staker.Deposit{}, false, fmt.Errorf("tick lower: %w", err)
	}
	tickUpper, err := asInt24(values[3])
	if err != nil {
		return staker.Deposit{}, false, fmt.Errorf("tick upper: %w", err)
	}
	return staker.Deposit{
		Owner:          owner,
		NumberOfStakes: stakes,
		TickLower:      tickLower,
		TickUpper:      tickUpper,
	}, owner != (common.Address{}), nil
}

// Stake reads stakes(incentiveID, tokenID).
func (r *Reader) Stake(ctx context.Context, incentiveID common.Hash, tokenID uint64) (staker.Stake, error) {
	parsed, err := StakeManagerABI()
	if err != nil {
		return staker.Stake{}, err
	}
	values, err := r.call(ctx, r.stakeManager, parsed, "stakes", [32]byte(incentiveID), new(big.Int).SetUint64(tokenID))
	if err != nil {
		return staker.Stake{}, err
	}
	if len(values) != 2 {
		return staker.Stake{}, fmt.Errorf("unexpected stakes values: %d", len(values))
	}
	initial, err := asUint256(values[0])
	if err != nil {
		return staker.Stake{}, fmt.Errorf("seconds per liquidity initial: %w", err)
	}
	liquidity, err := asUint256(values[1])
	if err != nil {
		return staker.Stake{}, fmt.Errorf("liquidity: %w", err)
	}
	return staker.Stake{SecondsPerLiquidityInsideInitialX128: initial, Liquidity: liquidity}, nil
}

// Rewards reads rewards(rewardToken, owner).
func (r *Reader) Rewards(ctx context.Context, rewardToken, owner common.Address) (*uint256.Int, error) {
	parsed, err := StakeManagerABI()
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, r.stakeManager, parsed, "rewards", rewardToken, owner)
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}

type incentiveKeyTuple struct {
	RewardToken common.Address
	Pool        common.Address
	StartTime   *big.Int
	EndTime     *big.Int
}

// AccruedRewardInfo reads getAccruedRewardInfo(key, tokenID).
func (r *Reader) AccruedRewardInfo(ctx context.Context, key staker.IncentiveKey, tokenID uint64) (*uint256.Int, *uint256.Int, error) {
	parsed, err := StakeManagerABI()
	if err != nil {
		return nil, nil, err
	}
	tuple := incentiveKeyTuple{
		RewardToken: key.RewardToken,
		Pool:        key.Pool,
		StartTime:   new(big.Int).SetUint64(key.StartTime),
		EndTime:     new(big.Int).SetUint64(key.EndTime),
	}
	values, err := r.call(ctx, r.stakeManager, parsed, "getAccruedRewardInfo", tuple, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("unexpected accrued reward values: %d", len(values))
	}
	reward, err := asUint256(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reward: %w", err)
	}
	seconds, err := asUint256(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("seconds inside: %w", err)
	}
	return reward, seconds, nil
}

// OwnerOf reads the position token owner.
func (r *Reader) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, r.positionManager, parsed, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// Positions reads the position manager's view of tokenID.
func (r *Reader) Positions(ctx context.Context, tokenID uint64) (staker.Position, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return staker.Position{}, err
	}
	values, err := r.call(ctx, r.positionManager, parsed, "positions", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return staker.Position{}, err
	}
	if len(values) != 12 {
		return staker.Position{}, fmt.Errorf("unexpected positions values: %d", len(values))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return staker.Position{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return staker.Position{}, fmt.Errorf("token1: %w", err)
	}
	fee, err := asUint64(values[4])
	if err != nil {
		return staker.Position{}, fmt.Errorf("fee: %w", err)
	}
	tickLower, err := asInt24(values[5])
	if err != nil {
		return staker.Position{}, fmt.Errorf("tick lower: %w", err)
	}
	tickUpper, err := asInt24(values[6])
	if err != nil {
		return staker.Position{}, fmt.Errorf("tick upper: %w", err)
	}
	liquidity, err := asUint256(values[7])
	if err != nil {
		return staker.Position{}, fmt.Errorf("liquidity: %w", err)
	}
	return staker.Position{
		Token0:    token0,
		Token1:    token1,
		Fee:       uint32(fee),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Liquidity: liquidity,
	}, nil
}

// GetPool implements staker.PoolOracle against the factory.
func (r *Reader) GetPool(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, r.factory, parsed, "getPool", token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// SnapshotCumulativesInside implements staker.PoolOracle.
func (r *Reader) SnapshotCumulativesInside(ctx context.Context, pool common.Address, tickLower, tickUpper int32) (*uint256.Int, error) {
	return r.snapshotCumulativesInside(ctx, r.block, pool, tickLower, tickUpper)
}

// SnapshotCumulativesInsideAt implements staker.PoolOracle by reading the pool at the last block
// mined at or before timestamp.
func (r *Reader) SnapshotCumulativesInsideAt(ctx context.Context, pool common.Address, tickLower, tickUpper int32, timestamp uint64) (*uint256.Int, error) {
	block, err := r.blockAt(ctx, timestamp)
	if err != nil {
		return nil, err
	}
	return r.snapshotCumulativesInside(ctx, block, pool, tickLower, tickUpper)
}

func (r *Reader) snapshotCumulativesInside(ctx context.Context, block *big.Int, pool common.Address, tickLower, tickUpper int32) (*uint256.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	values, err := r.callAt(ctx, block, pool, parsed, "snapshotCumulativesInside",
		big.NewInt(int64(tickLower)), big.NewInt(int64(tickUpper)))
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected snapshot values: %d", len(values))
	}
	return asUint256(values[1])
}

// blockAt finds the last block at or below the read head whose timestamp is not after timestamp.
func (r *Reader) blockAt(ctx context.Context, timestamp uint64) (*big.Int, error) {
	if r.blocks == nil {
		return nil, fmt.Errorf("block clock is not configured")
	}
	head := r.BlockNumber()
	if head == 0 {
		latest, err := r.blocks.LatestBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest block: %w", err)
		}
		head = latest
	}
	headTime, err := r.blocks.BlockTimestamp(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("block %d timestamp: %w", head, err)
	}
	if headTime <= timestamp {
		return new(big.Int).SetUint64(head), nil
	}

	// lo ends on the first block mined after timestamp.
	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		ts, err := r.blocks.BlockTimestamp(ctx, mid)
		if err != nil {
			return nil, fmt.Errorf("block %d timestamp: %w", mid, err)
		}
		if ts > timestamp {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return nil, fmt.Errorf("timestamp %d precedes the first block", timestamp)
	}
	return new(big.Int).SetUint64(lo - 1), nil
}

// Slot0 reads the pool price and tick.
func (r *Reader) Slot0(ctx context.Context, pool common.Address) (model.PoolSlot0, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolSlot0{}, err
	}
	values, err := r.call(ctx, pool, parsed, "slot0")
	if err != nil {
		return model.PoolSlot0{}, err
	}
	if len(values) < 2 {
		return model.PoolSlot0{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return model.PoolSlot0{}, fmt.Errorf("sqrt price: %w", err)
	}
	tick, err := asInt24(values[1])
	if err != nil {
		return model.PoolSlot0{}, fmt.Errorf("tick: %w", err)
	}
	return model.PoolSlot0{SqrtPriceX96: sqrt.String(), Tick: tick}, nil
}

// BalanceOf reads an ERC20 balance.
func (r *Reader) BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	parsed, err := erc20ABIString.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := r.call(ctx, token, parsed, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}

// TokenMeta returns cached ERC20 metadata, fetching it on first use. Fetch failures are cached too.
func (r *Reader) TokenMeta(ctx context.Context, token common.Address) model.TokenMeta {
	if meta, ok := r.tokens.Get(token); ok {
		return meta
	}
	meta, err := r.fetchTokenMeta(ctx, token)
	if err != nil {
		r.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	r.tokens.Set(token, meta)
	return meta
}

func (r *Reader) fetchTokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}

	stringABI, err := erc20ABIString.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := r.call(ctx, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	return r.callAt(ctx, r.block, to, parsed, method, args...)
}

func (r *Reader) callAt(ctx context.Context, block *big.Int, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}
