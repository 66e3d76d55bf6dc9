package service

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/store"
)

// BalanceResponse is an account's full escrow position.
type BalanceResponse struct {
	Account           common.Address
	Currency          uint256.Int
	ReservedCurrency  uint256.Int
	AvailableCurrency uint256.Int
	Tokens            []TokenBalance
	CreatedAt         time.Time
}

// TokenBalance is one token holding in a balance response.
type TokenBalance struct {
	Symbol    string
	Balance   uint256.Int
	Reserved  uint256.Int
	Available uint256.Int
}

// DepositCurrency pulls amount from caller's external balance into escrow
// and credits it to caller's account.
func (x *Exchange) DepositCurrency(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Event, error) {
	if amount.IsZero() {
		return domain.Event{}, domain.ErrInvalidAmount
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.ledger.Update(func(tx *store.LedgerTx) error {
		if err := tx.CreditCurrency(caller, amount); err != nil {
			return err
		}
		if err := x.currency.TransferFrom(ctx, caller, amount); err != nil {
			return external("deposit currency", err)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.EventCurrencyDeposited,
		Trader: caller,
		Amount: *amount,
	}), nil
}

// WithdrawCurrency debits amount from caller's available currency and
// pays it out from escrow.
func (x *Exchange) WithdrawCurrency(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Event, error) {
	if amount.IsZero() {
		return domain.Event{}, domain.ErrInvalidAmount
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.ledger.Update(func(tx *store.LedgerTx) error {
		if err := tx.DebitCurrency(caller, amount); err != nil {
			return err
		}
		if err := x.currency.Transfer(ctx, caller, amount); err != nil {
			return external("withdraw currency", err)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.EventCurrencyWithdrawn,
		Trader: caller,
		Amount: *amount,
	}), nil
}

// DepositToken pulls amount of a registered token from caller into escrow.
// Caller must have approved the escrow account on the token's ledger.
func (x *Exchange) DepositToken(ctx context.Context, caller common.Address, symbol string, amount *uint256.Int) (domain.Event, error) {
	if amount.IsZero() {
		return domain.Event{}, domain.ErrInvalidAmount
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	tl, err := x.tokenLedger(symbol)
	if err != nil {
		return domain.Event{}, err
	}
	err = x.ledger.Update(func(tx *store.LedgerTx) error {
		if err := tx.CreditToken(caller, symbol, amount); err != nil {
			return err
		}
		if err := tl.TransferFrom(ctx, caller, amount); err != nil {
			return external("deposit "+symbol, err)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.EventTokenDeposited,
		Symbol: symbol,
		Trader: caller,
		Amount: *amount,
	}), nil
}

// WithdrawToken debits amount of a token from caller's available balance
// and transfers it out of escrow.
func (x *Exchange) WithdrawToken(ctx context.Context, caller common.Address, symbol string, amount *uint256.Int) (domain.Event, error) {
	if amount.IsZero() {
		return domain.Event{}, domain.ErrInvalidAmount
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	tl, err := x.tokenLedger(symbol)
	if err != nil {
		return domain.Event{}, err
	}
	err = x.ledger.Update(func(tx *store.LedgerTx) error {
		if err := tx.DebitToken(caller, symbol, amount); err != nil {
			return err
		}
		if err := tl.Transfer(ctx, caller, amount); err != nil {
			return external("withdraw "+symbol, err)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.EventTokenWithdrawn,
		Symbol: symbol,
		Trader: caller,
		Amount: *amount,
	}), nil
}

// CurrencyBalance returns caller's available currency.
func (x *Exchange) CurrencyBalance(caller common.Address) uint256.Int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ledger.CurrencyBalance(caller)
}

// TokenBalance returns caller's available balance of symbol.
func (x *Exchange) TokenBalance(caller common.Address, symbol string) (uint256.Int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.registry.Exists(symbol) {
		return uint256.Int{}, domain.ErrUnknownSymbol
	}
	return x.ledger.TokenBalance(caller, symbol), nil
}

// Balance returns caller's full position including reservations.
// Unknown accounts report zero balances.
func (x *Exchange) Balance(caller common.Address) *BalanceResponse {
	x.mu.RLock()
	defer x.mu.RUnlock()

	resp := &BalanceResponse{Account: caller, Tokens: []TokenBalance{}}
	acc, ok := x.ledger.Account(caller)
	if !ok {
		return resp
	}
	resp.Currency = acc.Currency
	resp.ReservedCurrency = acc.ReservedCurrency
	resp.AvailableCurrency = acc.AvailableCurrency()
	resp.CreatedAt = acc.CreatedAt
	for symbol, h := range acc.Tokens {
		resp.Tokens = append(resp.Tokens, TokenBalance{
			Symbol:    symbol,
			Balance:   h.Balance,
			Reserved:  h.Reserved,
			Available: acc.AvailableTokens(symbol),
		})
	}
	sort.Slice(resp.Tokens, func(i, j int) bool { return resp.Tokens[i].Symbol < resp.Tokens[j].Symbol })
	return resp
}
