package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ad3staker/internal/q128"
	"ad3staker/internal/staker"
)

var (
	ErrPoolExists         = errors.New("pool already exists")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrTokenNotFound      = errors.New("position token not found")
	ErrNotOwnerOrApproved = errors.New("not owner or approved")
	ErrInvalidRange       = errors.New("invalid tick range")
	ErrFutureTimestamp    = errors.New("timestamp is in the future")
)

type rangeKey struct {
	lower int32
	upper int32
}

type tickRange struct {
	liquidity               *uint256.Int
	secondsPerLiquidityX128 *uint256.Int
	history                 []checkpoint
}

// checkpoint is the accumulator value at a point in time. active is the liquidity the range
// shared while growing into that value, zero when the tick sat outside it.
type checkpoint struct {
	at     uint64
	value  *uint256.Int
	active *uint256.Int
}

type pool struct {
	token0    common.Address
	token1    common.Address
	fee       uint32
	tick      int32
	updatedAt uint64
	ranges    map[rangeKey]*tickRange
}

type position struct {
	owner     common.Address
	approved  common.Address
	pool      common.Address
	lower     int32
	upper     int32
	liquidity *uint256.Int
}

// Exchange is a pool factory, a set of pools and a position manager in one.
//
// Each pool tracks seconds-per-liquidity per registered tick range: while the pool tick sits in
// [lower, upper), the range accumulator grows by (dt << 128) / activeLiquidity, where
// activeLiquidity is the liquidity of every range containing the tick.
type Exchange struct {
	mu        sync.Mutex
	clock     *Clock
	pools     map[common.Address]*pool
	positions map[uint64]*position
	operators map[common.Address]map[common.Address]bool
	nextID    uint64
}

// NewExchange returns an empty exchange driven by clock.
func NewExchange(clock *Clock) *Exchange {
	return &Exchange{
		clock:     clock,
		pools:     make(map[common.Address]*pool),
		positions: make(map[uint64]*position),
		operators: make(map[common.Address]map[common.Address]bool),
		nextID:    1,
	}
}

// PoolAddress derives the deterministic address of a pool.
func PoolAddress(tokenA, tokenB common.Address, fee uint32) common.Address {
	token0, token1 := sortTokens(tokenA, tokenB)
	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], fee)
	return common.BytesToAddress(crypto.Keccak256(token0.Bytes(), token1.Bytes(), feeBytes[:])[12:])
}

// CreatePool registers a pool at tick.
func (x *Exchange) CreatePool(tokenA, tokenB common.Address, fee uint32, tick int32) (common.Address, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	address := PoolAddress(tokenA, tokenB, fee)
	if _, exists := x.pools[address]; exists {
		return common.Address{}, fmt.Errorf("%w: %s", ErrPoolExists, address.Hex())
	}
	token0, token1 := sortTokens(tokenA, tokenB)
	x.pools[address] = &pool{
		token0:    token0,
		token1:    token1,
		fee:       fee,
		tick:      tick,
		updatedAt: x.clock.Now(),
		ranges:    make(map[rangeKey]*tickRange),
	}
	return address, nil
}

// GetPool returns the pool for the pair and fee, or the zero address.
func (x *Exchange) GetPool(_ context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	address := PoolAddress(tokenA, tokenB, fee)
	if _, ok := x.pools[address]; !ok {
		return common.Address{}, nil
	}
	return address, nil
}

// SetTick accrues the pool up to now and moves its price to tick.
func (x *Exchange) SetTick(address common.Address, tick int32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.pools[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, address.Hex())
	}
	x.accrue(p)
	p.tick = tick
	return nil
}

// Tick returns the current pool tick.
func (x *Exchange) Tick(address common.Address) (int32, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.pools[address]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPoolNotFound, address.Hex())
	}
	return p.tick, nil
}

// MintPosition creates a position token for owner and returns its id.
func (x *Exchange) MintPosition(owner, poolAddress common.Address, lower, upper int32, liquidity *uint256.Int) (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	p, ok := x.pools[poolAddress]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPoolNotFound, poolAddress.Hex())
	}
	if lower >= upper {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, lower, upper)
	}
	x.accrue(p)

	key := rangeKey{lower: lower, upper: upper}
	r, ok := p.ranges[key]
	if !ok {
		r = &tickRange{
			liquidity:               q128.Zero(),
			secondsPerLiquidityX128: q128.Zero(),
			history:                 []checkpoint{{at: p.updatedAt, value: q128.Zero(), active: q128.Zero()}},
		}
		p.ranges[key] = r
	}
	r.liquidity = q128.AddClamp(r.liquidity, liquidity)

	id := x.nextID
	x.nextID++
	x.positions[id] = &position{
		owner:     owner,
		pool:      poolAddress,
		lower:     lower,
		upper:     upper,
		liquidity: q128.Clone(liquidity),
	}
	return id, nil
}

// Approve lets spender move tokenID on behalf of its owner.
func (x *Exchange) Approve(caller, spender common.Address, tokenID uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	pos, ok := x.positions[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	if pos.owner != caller && !x.operators[pos.owner][caller] {
		return ErrNotOwnerOrApproved
	}
	pos.approved = spender
	return nil
}

// SetApprovalForAll toggles operator rights over every token of owner.
func (x *Exchange) SetApprovalForAll(owner, operator common.Address, approved bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.operators[owner] == nil {
		x.operators[owner] = make(map[common.Address]bool)
	}
	x.operators[owner][operator] = approved
}

// OwnerOf implements staker.PositionManager.
func (x *Exchange) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pos, ok := x.positions[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return pos.owner, nil
}

// IsApprovedOrOwner implements staker.PositionManager.
func (x *Exchange) IsApprovedOrOwner(_ context.Context, spender common.Address, tokenID uint64) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pos, ok := x.positions[tokenID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return x.isApprovedOrOwner(pos, spender), nil
}

// Positions implements staker.PositionManager.
func (x *Exchange) Positions(_ context.Context, tokenID uint64) (staker.Position, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pos, ok := x.positions[tokenID]
	if !ok {
		return staker.Position{}, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	p := x.pools[pos.pool]
	return staker.Position{
		Token0:    p.token0,
		Token1:    p.token1,
		Fee:       p.fee,
		TickLower: pos.lower,
		TickUpper: pos.upper,
		Liquidity: q128.Clone(pos.liquidity),
	}, nil
}

// TransferFrom implements staker.PositionManager.
func (x *Exchange) TransferFrom(_ context.Context, operator, from, to common.Address, tokenID uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	pos, ok := x.positions[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	if pos.owner != from {
		return fmt.Errorf("%w: %s does not own %d", ErrNotOwnerOrApproved, from.Hex(), tokenID)
	}
	if !x.isApprovedOrOwner(pos, operator) {
		return fmt.Errorf("%w: %s for %d", ErrNotOwnerOrApproved, operator.Hex(), tokenID)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address")
	}
	pos.owner = to
	pos.approved = common.Address{}
	return nil
}

// SnapshotCumulativesInside implements staker.PoolOracle. Unknown ranges read as zero.
func (x *Exchange) SnapshotCumulativesInside(_ context.Context, poolAddress common.Address, lower, upper int32) (*uint256.Int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.pools[poolAddress]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolAddress.Hex())
	}
	x.accrue(p)
	r, ok := p.ranges[rangeKey{lower: lower, upper: upper}]
	if !ok {
		return q128.Zero(), nil
	}
	return q128.Clone(r.secondsPerLiquidityX128), nil
}

// SnapshotCumulativesInsideAt implements staker.PoolOracle. The value is rebuilt from the range
// checkpoints, between which the accumulator grows at a constant rate.
func (x *Exchange) SnapshotCumulativesInsideAt(_ context.Context, poolAddress common.Address, lower, upper int32, timestamp uint64) (*uint256.Int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.pools[poolAddress]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolAddress.Hex())
	}
	if timestamp > x.clock.Now() {
		return nil, fmt.Errorf("%w: %d", ErrFutureTimestamp, timestamp)
	}
	x.accrue(p)
	r, ok := p.ranges[rangeKey{lower: lower, upper: upper}]
	if !ok {
		return q128.Zero(), nil
	}
	return r.valueAt(timestamp), nil
}

func (x *Exchange) isApprovedOrOwner(pos *position, spender common.Address) bool {
	return pos.owner == spender || pos.approved == spender || x.operators[pos.owner][spender]
}

func (x *Exchange) accrue(p *pool) {
	now := x.clock.Now()
	if now <= p.updatedAt {
		return
	}
	dt := now - p.updatedAt
	p.updatedAt = now

	active := q128.Zero()
	inside := make(map[*tickRange]bool, len(p.ranges))
	for key, r := range p.ranges {
		if key.lower <= p.tick && p.tick < key.upper && !r.liquidity.IsZero() {
			active = q128.AddClamp(active, r.liquidity)
			inside[r] = true
		}
	}
	var growth *uint256.Int
	if !active.IsZero() {
		growth = new(uint256.Int).Div(q128.FromSeconds(dt), active)
	}
	for _, r := range p.ranges {
		segment := q128.Zero()
		if inside[r] && growth != nil {
			r.secondsPerLiquidityX128 = q128.AddClamp(r.secondsPerLiquidityX128, growth)
			segment = q128.Clone(active)
		}
		r.history = append(r.history, checkpoint{at: now, value: q128.Clone(r.secondsPerLiquidityX128), active: segment})
	}
}

func (r *tickRange) valueAt(timestamp uint64) *uint256.Int {
	if len(r.history) == 0 || timestamp < r.history[0].at {
		return q128.Zero()
	}
	i := sort.Search(len(r.history), func(i int) bool { return r.history[i].at >= timestamp })
	if i == len(r.history) {
		return q128.Clone(r.secondsPerLiquidityX128)
	}
	if r.history[i].at == timestamp {
		return q128.Clone(r.history[i].value)
	}
	prev, next := r.history[i-1], r.history[i]
	if next.active.IsZero() {
		return q128.Clone(prev.value)
	}
	growth := new(uint256.Int).Div(q128.FromSeconds(timestamp-prev.at), next.active)
	return q128.AddClamp(prev.value, growth)
}

func sortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}
