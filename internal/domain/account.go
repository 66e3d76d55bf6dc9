package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Holding represents an account's escrowed balance of a single token.
type Holding struct {
	Balance  uint256.Int // total tokens held in escrow
	Reserved uint256.Int // tokens locked by resting sell orders
}

// Account represents a trader's escrow position on the exchange.
// Accounts are created implicitly on first credit.
type Account struct {
	Address          common.Address
	Currency         uint256.Int         // total currency in wei
	ReservedCurrency uint256.Int         // currency locked by resting buy orders
	Tokens           map[string]*Holding // symbol → holding
	CreatedAt        time.Time
}

// NewAccount creates an empty account for the given address.
func NewAccount(addr common.Address, now time.Time) *Account {
	return &Account{
		Address:   addr,
		Tokens:    make(map[string]*Holding),
		CreatedAt: now,
	}
}

// AvailableCurrency returns the account's unreserved currency balance.
func (a *Account) AvailableCurrency() uint256.Int {
	var out uint256.Int
	out.Sub(&a.Currency, &a.ReservedCurrency)
	return out
}

// AvailableTokens returns the unreserved balance for the given symbol,
// or zero if the account holds none.
func (a *Account) AvailableTokens(symbol string) uint256.Int {
	var out uint256.Int
	h, ok := a.Tokens[symbol]
	if !ok {
		return out
	}
	out.Sub(&h.Balance, &h.Reserved)
	return out
}

// Holding returns the holding for symbol, creating it if absent.
func (a *Account) Holding(symbol string) *Holding {
	h, ok := a.Tokens[symbol]
	if !ok {
		h = &Holding{}
		a.Tokens[symbol] = h
	}
	return h
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := &Account{
		Address:          a.Address,
		Currency:         a.Currency,
		ReservedCurrency: a.ReservedCurrency,
		Tokens:           make(map[string]*Holding, len(a.Tokens)),
		CreatedAt:        a.CreatedAt,
	}
	for sym, h := range a.Tokens {
		hc := *h
		c.Tokens[sym] = &hc
	}
	return c
}
