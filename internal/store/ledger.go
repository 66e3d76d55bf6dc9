package store

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// Ledger is a thread-safe in-memory store for escrow accounts,
// keyed by address. All mutations go through Update.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[common.Address]*domain.Account
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[common.Address]*domain.Account),
	}
}

// Update runs fn inside a transaction. Accounts touched by fn are
// copied on first access and written back only when fn returns nil,
// so a failed update leaves every balance unchanged.
func (l *Ledger) Update(fn func(tx *LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &LedgerTx{
		base:    l.accounts,
		touched: make(map[common.Address]*domain.Account),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for addr, a := range tx.touched {
		l.accounts[addr] = a
	}
	return nil
}

// CurrencyBalance returns the unreserved currency of addr.
func (l *Ledger) CurrencyBalance(addr common.Address) uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[addr]
	if !ok {
		return uint256.Int{}
	}
	return a.AvailableCurrency()
}

// TokenBalance returns the unreserved tokens of addr for symbol.
func (l *Ledger) TokenBalance(addr common.Address, symbol string) uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[addr]
	if !ok {
		return uint256.Int{}
	}
	return a.AvailableTokens(symbol)
}

// Account returns a copy of the account for addr, including reservations.
func (l *Ledger) Account(addr common.Address) (*domain.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[addr]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Accounts returns copies of all accounts ordered by address.
func (l *Ledger) Accounts() []*domain.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

// Totals sums total (reserved included) currency and per-symbol token
// balances across all accounts.
func (l *Ledger) Totals() (uint256.Int, map[string]uint256.Int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var currency uint256.Int
	tokens := make(map[string]uint256.Int)
	for _, a := range l.accounts {
		currency.Add(&currency, &a.Currency)
		for sym, h := range a.Tokens {
			sum := tokens[sym]
			sum.Add(&sum, &h.Balance)
			tokens[sym] = sum
		}
	}
	return currency, tokens
}

// LedgerTx stages balance changes for a single Update call.
type LedgerTx struct {
	base    map[common.Address]*domain.Account
	touched map[common.Address]*domain.Account
}

// account returns the staged copy of addr's account, creating it if needed.
func (tx *LedgerTx) account(addr common.Address) *domain.Account {
	if a, ok := tx.touched[addr]; ok {
		return a
	}
	var a *domain.Account
	if orig, ok := tx.base[addr]; ok {
		a = orig.Clone()
	} else {
		a = domain.NewAccount(addr, time.Now().UTC())
	}
	tx.touched[addr] = a
	return a
}

// AvailableCurrency returns addr's staged unreserved currency.
func (tx *LedgerTx) AvailableCurrency(addr common.Address) uint256.Int {
	return tx.account(addr).AvailableCurrency()
}

// AvailableTokens returns addr's staged unreserved tokens for symbol.
func (tx *LedgerTx) AvailableTokens(addr common.Address, symbol string) uint256.Int {
	return tx.account(addr).AvailableTokens(symbol)
}

// CreditCurrency adds amount to addr's currency.
func (tx *LedgerTx) CreditCurrency(addr common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	return addChecked(&a.Currency, amount)
}

// DebitCurrency removes amount from addr's unreserved currency.
func (tx *LedgerTx) DebitCurrency(addr common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	avail := a.AvailableCurrency()
	if amount.Gt(&avail) {
		return domain.ErrInsufficientBalance
	}
	a.Currency.Sub(&a.Currency, amount)
	return nil
}

// ReserveCurrency locks amount of addr's unreserved currency.
func (tx *LedgerTx) ReserveCurrency(addr common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	avail := a.AvailableCurrency()
	if amount.Gt(&avail) {
		return domain.ErrInsufficientBalance
	}
	a.ReservedCurrency.Add(&a.ReservedCurrency, amount)
	return nil
}

// ReleaseCurrency unlocks amount of addr's reserved currency.
func (tx *LedgerTx) ReleaseCurrency(addr common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	if amount.Gt(&a.ReservedCurrency) {
		return domain.ErrInsufficientBalance
	}
	a.ReservedCurrency.Sub(&a.ReservedCurrency, amount)
	return nil
}

// SpendReservedCurrency removes amount from addr's reserved currency,
// lowering both the reservation and the total.
func (tx *LedgerTx) SpendReservedCurrency(addr common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	if amount.Gt(&a.ReservedCurrency) {
		return domain.ErrInsufficientBalance
	}
	a.ReservedCurrency.Sub(&a.ReservedCurrency, amount)
	a.Currency.Sub(&a.Currency, amount)
	return nil
}

// CreditToken adds amount of symbol to addr's holding.
func (tx *LedgerTx) CreditToken(addr common.Address, symbol string, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	h := tx.account(addr).Holding(symbol)
	return addChecked(&h.Balance, amount)
}

// DebitToken removes amount of symbol from addr's unreserved holding.
func (tx *LedgerTx) DebitToken(addr common.Address, symbol string, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	avail := a.AvailableTokens(symbol)
	if amount.Gt(&avail) {
		return domain.ErrInsufficientBalance
	}
	h := a.Holding(symbol)
	h.Balance.Sub(&h.Balance, amount)
	return nil
}

// ReserveToken locks amount of addr's unreserved tokens.
func (tx *LedgerTx) ReserveToken(addr common.Address, symbol string, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	a := tx.account(addr)
	avail := a.AvailableTokens(symbol)
	if amount.Gt(&avail) {
		return domain.ErrInsufficientBalance
	}
	h := a.Holding(symbol)
	h.Reserved.Add(&h.Reserved, amount)
	return nil
}

// ReleaseToken unlocks amount of addr's reserved tokens.
func (tx *LedgerTx) ReleaseToken(addr common.Address, symbol string, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	h := tx.account(addr).Holding(symbol)
	if amount.Gt(&h.Reserved) {
		return domain.ErrInsufficientBalance
	}
	h.Reserved.Sub(&h.Reserved, amount)
	return nil
}

// SpendReservedToken removes amount from addr's reserved tokens,
// lowering both the reservation and the balance.
func (tx *LedgerTx) SpendReservedToken(addr common.Address, symbol string, amount *uint256.Int) error {
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	h := tx.account(addr).Holding(symbol)
	if amount.Gt(&h.Reserved) {
		return domain.ErrInsufficientBalance
	}
	h.Reserved.Sub(&h.Reserved, amount)
	h.Balance.Sub(&h.Balance, amount)
	return nil
}

// addChecked sets dst to dst + amount, leaving dst untouched on overflow.
func addChecked(dst, amount *uint256.Int) error {
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(dst, amount); overflow {
		return domain.ErrInvalidAmount
	}
	dst.Set(&sum)
	return nil
}
