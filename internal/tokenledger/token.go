package tokenledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultSupply is the supply minted by NewFixedSupplyToken when none is given.
const DefaultSupply = 1_000_000

// Token is an in-memory fixed-supply fungible token with allowances.
type Token struct {
	mu          sync.Mutex
	symbol      string
	totalSupply uint256.Int
	balances    balances
	allowances  map[common.Address]balances // owner → spender → amount
}

// NewFixedSupplyToken mints the whole supply to owner. A nil supply
// mints DefaultSupply.
func NewFixedSupplyToken(symbol string, owner common.Address, supply *uint256.Int) *Token {
	if supply == nil {
		supply = uint256.NewInt(DefaultSupply)
	}
	t := &Token{
		symbol:      symbol,
		totalSupply: *supply,
		balances:    make(balances),
		allowances:  make(map[common.Address]balances),
	}
	s := *supply
	t.balances[owner] = &s
	return t
}

// Symbol returns the token's ticker.
func (t *Token) Symbol() string {
	return t.symbol
}

// TotalSupply returns the amount minted at creation.
func (t *Token) TotalSupply() uint256.Int {
	return t.totalSupply
}

// BalanceOf returns the balance of addr.
func (t *Token) BalanceOf(addr common.Address) uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances.get(addr)
}

// Allowance returns how much spender may move on owner's behalf.
func (t *Token) Allowance(owner, spender common.Address) uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowances[owner].get(spender)
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances.move(from, to, amount)
}

// Approve sets spender's allowance over owner's balance, replacing any
// previous value.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(balances)
	}
	a := *amount
	t.allowances[owner][spender] = &a
}

// TransferFrom moves amount from owner to recipient using spender's allowance.
func (t *Token) TransferFrom(spender, owner, recipient common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[owner].get(spender)
	if amount.Gt(&allowed) {
		return ErrInsufficientAllowance
	}
	if err := t.balances.move(owner, recipient, amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	allowed.Sub(&allowed, amount)
	t.allowances[owner][spender] = &allowed
	return nil
}

// Bind returns t as seen by the escrow account.
func Bind(t *Token, escrow common.Address) Ledger {
	return &boundToken{token: t, escrow: escrow}
}

type boundToken struct {
	token  *Token
	escrow common.Address
}

func (b *boundToken) BalanceOf(_ context.Context, owner common.Address) (uint256.Int, error) {
	return b.token.BalanceOf(owner), nil
}

func (b *boundToken) TransferFrom(_ context.Context, owner common.Address, amount *uint256.Int) error {
	return b.token.TransferFrom(b.escrow, owner, b.escrow, amount)
}

func (b *boundToken) Transfer(_ context.Context, recipient common.Address, amount *uint256.Int) error {
	return b.token.Transfer(b.escrow, recipient, amount)
}
