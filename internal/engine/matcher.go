package engine

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/store"
)

// Result is the outcome of a placement call.
type Result struct {
	Event   domain.Event
	Fills   []domain.Fill
	Resting *domain.Order // nil when the incoming order was fully matched
}

// QuoteLevel is one price level consumed by a quote simulation.
type QuoteLevel struct {
	Price  uint256.Int
	Volume uint256.Int
}

// QuoteResult holds the result of a matching simulation.
// NotionalOverflow reports a total beyond 256 bits, in which case Notional
// is zero.
type QuoteResult struct {
	Available        uint256.Int
	FullyFillable    bool
	Notional         uint256.Int
	NotionalOverflow bool
	Levels           []QuoteLevel
}

// Matcher crosses incoming limit orders against the books and settles
// fills through the ledger.
type Matcher struct {
	books  *BookManager
	ledger *store.Ledger
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(books *BookManager, ledger *store.Ledger) *Matcher {
	return &Matcher{
		books:  books,
		ledger: ledger,
	}
}

// plannedFill is one resting order the incoming order will consume.
type plannedFill struct {
	resting *domain.Order
	qty     uint256.Int
}

// Place runs an incoming limit order through the matching engine.
//
// The incoming order's full escrow is reserved first (price × volume
// currency for a buy, volume tokens for a sell), then the opposing side is
// consumed best price first while prices cross. Every fill settles at the
// resting order's price; a buyer's price improvement is released back to
// their available balance. Any remainder rests on the incoming side.
//
// Balance moves for the whole call commit in one ledger transaction, and
// the book is only touched after that commit, so a failed call changes
// nothing. Exactly one event describes the outcome.
func (m *Matcher) Place(side domain.Side, symbol string, price, volume *uint256.Int, trader common.Address) (Result, error) {
	if price.IsZero() || volume.IsZero() {
		return Result{}, domain.ErrInvalidAmount
	}
	escrow := *volume
	if side == domain.SideBuy {
		n, err := domain.Notional(price, volume)
		if err != nil {
			return Result{}, err
		}
		escrow = n
	}

	book := m.books.GetOrCreate(symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	plan, remaining := planFills(book, side, price, volume)

	acc := newEventAccumulator(side, symbol, price, volume, trader)
	err := m.ledger.Update(func(tx *store.LedgerTx) error {
		if side == domain.SideBuy {
			if err := tx.ReserveCurrency(trader, &escrow); err != nil {
				return err
			}
		} else {
			if err := tx.ReserveToken(trader, symbol, &escrow); err != nil {
				return err
			}
		}
		for _, pf := range plan {
			if err := settle(tx, side, symbol, price, pf, trader); err != nil {
				return fmt.Errorf("%w: settle %s order %d: %v", domain.ErrInvariantViolation, pf.resting.Side, pf.resting.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	executedAt := time.Now().UTC()
	for _, pf := range plan {
		if err := book.Reduce(pf.resting.Side, pf.resting.Key, &pf.qty); err != nil {
			return Result{}, fmt.Errorf("%w: reduce %s order %d: %v", domain.ErrInvariantViolation, pf.resting.Side, pf.resting.Key, err)
		}
		acc.add(domain.Fill{
			Symbol:     symbol,
			MakerSide:  pf.resting.Side,
			MakerKey:   pf.resting.Key,
			Price:      pf.resting.Price,
			Quantity:   pf.qty,
			Maker:      pf.resting.Owner,
			Taker:      trader,
			ExecutedAt: executedAt,
		})
	}

	var resting *domain.Order
	if !remaining.IsZero() {
		resting = book.Insert(side, price, &remaining, trader)
	}
	return acc.result(resting), nil
}

// planFills walks the opposing side without mutating it and returns the
// fills the incoming order would take, plus its unmatched remainder.
func planFills(book *OrderBook, side domain.Side, price, volume *uint256.Int) ([]plannedFill, uint256.Int) {
	remaining := *volume
	var plan []plannedFill
	book.Walk(side.Opposite(), func(resting *domain.Order) bool {
		if remaining.IsZero() || !crosses(side, price, &resting.Price) {
			return false
		}
		qty := resting.Remaining
		if remaining.Lt(&qty) {
			qty = remaining
		}
		remaining.Sub(&remaining, &qty)
		plan = append(plan, plannedFill{resting: resting, qty: qty})
		return true
	})
	return plan, remaining
}

// crosses reports whether an incoming order at price can trade with a
// resting order at restingPrice.
func crosses(side domain.Side, price, restingPrice *uint256.Int) bool {
	if side == domain.SideBuy {
		return !restingPrice.Gt(price)
	}
	return !restingPrice.Lt(price)
}

// settle moves currency and tokens for one fill. Both parties draw from
// escrow reserved at placement.
func settle(tx *store.LedgerTx, side domain.Side, symbol string, price *uint256.Int, pf plannedFill, trader common.Address) error {
	var cost uint256.Int
	cost.Mul(&pf.resting.Price, &pf.qty)

	buyer, seller := trader, pf.resting.Owner
	if side == domain.SideSell {
		buyer, seller = pf.resting.Owner, trader
	}

	if err := tx.SpendReservedCurrency(buyer, &cost); err != nil {
		return fmt.Errorf("buyer currency: %w", err)
	}
	if side == domain.SideBuy && price.Gt(&pf.resting.Price) {
		var improvement uint256.Int
		improvement.Sub(price, &pf.resting.Price)
		improvement.Mul(&improvement, &pf.qty)
		if err := tx.ReleaseCurrency(buyer, &improvement); err != nil {
			return fmt.Errorf("buyer refund: %w", err)
		}
	}
	if err := tx.SpendReservedToken(seller, symbol, &pf.qty); err != nil {
		return fmt.Errorf("seller tokens: %w", err)
	}
	if err := tx.CreditToken(buyer, symbol, &pf.qty); err != nil {
		return fmt.Errorf("buyer tokens: %w", err)
	}
	if err := tx.CreditCurrency(seller, &cost); err != nil {
		return fmt.Errorf("seller currency: %w", err)
	}
	return nil
}

// Cancel zeroes a resting order and releases its escrow to the owner.
// The order must exist at price on the given side, and caller must own
// it. Cancelling an order that has no remaining volume is a no-op and
// reports false.
func (m *Matcher) Cancel(symbol string, side domain.Side, price *uint256.Int, key uint64, caller common.Address) (*domain.Order, bool, error) {
	book, ok := m.books.Get(symbol)
	if !ok {
		return nil, false, domain.ErrUnknownOrder
	}
	book.mu.Lock()
	defer book.mu.Unlock()

	o, ok := book.Order(side, key)
	if !ok || !o.Price.Eq(price) {
		return nil, false, domain.ErrUnknownOrder
	}
	if o.Owner != caller {
		return nil, false, domain.ErrNotOrderOwner
	}
	if !o.Live() {
		return o, false, nil
	}

	escrow := o.Escrow()
	err := m.ledger.Update(func(tx *store.LedgerTx) error {
		if side == domain.SideBuy {
			return tx.ReleaseCurrency(o.Owner, &escrow)
		}
		return tx.ReleaseToken(o.Owner, symbol, &escrow)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: release %s order %d: %v", domain.ErrInvariantViolation, side, key, err)
	}

	return book.Cancel(side, key)
}

// Quote simulates matching volume on side against the current book
// without changing it. Price is not limited.
func (m *Matcher) Quote(side domain.Side, symbol string, volume *uint256.Int) QuoteResult {
	var res QuoteResult
	book, ok := m.books.Get(symbol)
	if !ok {
		return res
	}
	book.RLock()
	defer book.RUnlock()

	remaining := *volume
	book.Walk(side.Opposite(), func(o *domain.Order) bool {
		if remaining.IsZero() {
			return false
		}
		qty := o.Remaining
		if remaining.Lt(&qty) {
			qty = remaining
		}
		remaining.Sub(&remaining, &qty)
		res.Available.Add(&res.Available, &qty)

		if !res.NotionalOverflow {
			var cost uint256.Int
			_, mulOverflow := cost.MulOverflow(&o.Price, &qty)
			_, addOverflow := res.Notional.AddOverflow(&res.Notional, &cost)
			if mulOverflow || addOverflow {
				res.NotionalOverflow = true
				res.Notional.Clear()
			}
		}

		if n := len(res.Levels); n > 0 && res.Levels[n-1].Price.Eq(&o.Price) {
			res.Levels[n-1].Volume.Add(&res.Levels[n-1].Volume, &qty)
		} else {
			res.Levels = append(res.Levels, QuoteLevel{Price: o.Price, Volume: qty})
		}
		return true
	})
	res.FullyFillable = remaining.IsZero()
	return res
}

// Snapshot returns a copy of one side of a symbol's book, best price first.
// A symbol without a book yields empty sequences.
func (m *Matcher) Snapshot(symbol string, side domain.Side) (prices, volumes []uint256.Int) {
	book, ok := m.books.Get(symbol)
	if !ok {
		return []uint256.Int{}, []uint256.Int{}
	}
	book.RLock()
	defer book.RUnlock()
	return book.Snapshot(side)
}

// Order looks up an order by symbol, side and key.
func (m *Matcher) Order(symbol string, side domain.Side, key uint64) (domain.Order, error) {
	book, ok := m.books.Get(symbol)
	if !ok {
		return domain.Order{}, domain.ErrUnknownOrder
	}
	book.RLock()
	defer book.RUnlock()
	o, ok := book.Order(side, key)
	if !ok {
		return domain.Order{}, domain.ErrUnknownOrder
	}
	return *o, nil
}

// eventAccumulator collects fills during the crossing loop and produces
// the single event for the call.
type eventAccumulator struct {
	side   domain.Side
	symbol string
	price  uint256.Int
	volume uint256.Int
	trader common.Address
	fills  []domain.Fill
}

func newEventAccumulator(side domain.Side, symbol string, price, volume *uint256.Int, trader common.Address) *eventAccumulator {
	return &eventAccumulator{
		side:   side,
		symbol: symbol,
		price:  *price,
		volume: *volume,
		trader: trader,
	}
}

func (a *eventAccumulator) add(f domain.Fill) {
	a.fills = append(a.fills, f)
}

// result builds the call's outcome. A nil resting order means the
// incoming volume was fully consumed.
func (a *eventAccumulator) result(resting *domain.Order) Result {
	ev := domain.Event{
		Symbol: a.symbol,
		Price:  a.price,
		Placed: a.volume,
		Trader: a.trader,
	}
	if resting == nil {
		ev.Kind = domain.OrderFulfilledKind(a.side)
		ev.Volume = a.volume
	} else {
		ev.Kind = domain.OrderCreatedKind(a.side)
		ev.Key = resting.Key
		ev.Volume = resting.Remaining
	}
	return Result{Event: ev, Fills: a.fills, Resting: resting}
}
