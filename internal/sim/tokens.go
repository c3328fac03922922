package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ad3staker/internal/q128"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type balanceKey struct {
	token   common.Address
	account common.Address
}

// Tokens is a multi-token ERC20 ledger.
type Tokens struct {
	mu         sync.Mutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewTokens returns an empty ledger.
func NewTokens() *Tokens {
	return &Tokens{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Mint credits amount of token to account.
func (t *Tokens) Mint(token, account common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := balanceKey{token: token, account: account}
	t.balances[key] = q128.AddClamp(t.balances[key], amount)
}

// Approve sets the allowance of spender over owner's token balance.
func (t *Tokens) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = q128.Clone(amount)
}

// Allowance returns the remaining allowance of spender.
func (t *Tokens) Allowance(token, owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return q128.Clone(t.allowances[allowanceKey{token: token, owner: owner, spender: spender}])
}

// BalanceOf returns the balance of account.
func (t *Tokens) BalanceOf(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return q128.Clone(t.balances[balanceKey{token: token, account: account}]), nil
}

// Balance is BalanceOf without a context.
func (t *Tokens) Balance(token, account common.Address) *uint256.Int {
	balance, _ := t.BalanceOf(context.Background(), token, account)
	return balance
}

// TransferFrom moves amount from from to to, spending spender's allowance unless spender is from.
func (t *Tokens) TransferFrom(_ context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spender != from {
		key := allowanceKey{token: token, owner: from, spender: spender}
		allowance := q128.Clone(t.allowances[key])
		if allowance.Lt(q128.Clone(amount)) {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientAllowance, spender.Hex(), q128.Format(allowance), q128.Format(amount))
		}
		if err := t.move(token, from, to, amount); err != nil {
			return err
		}
		t.allowances[key] = q128.SubClamp(allowance, amount)
		return nil
	}
	return t.move(token, from, to, amount)
}

// Transfer moves amount from from to to.
func (t *Tokens) Transfer(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(token, from, to, amount)
}

func (t *Tokens) move(token, from, to common.Address, amount *uint256.Int) error {
	fromKey := balanceKey{token: token, account: from}
	balance := q128.Clone(t.balances[fromKey])
	value := q128.Clone(amount)
	if balance.Lt(value) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), q128.Format(balance), q128.Format(value))
	}
	t.balances[fromKey] = new(uint256.Int).Sub(balance, value)
	toKey := balanceKey{token: token, account: to}
	t.balances[toKey] = q128.AddClamp(t.balances[toKey], value)
	return nil
}
