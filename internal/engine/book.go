package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// bookEntry is the sort key of an order in a side's index.
type bookEntry struct {
	price uint256.Int
	seq   uint64
	key   uint64
}

// bidLess defines ordering for the bid side: price descending, then
// insertion sequence ascending. Min() returns the best bid.
func bidLess(a, b bookEntry) bool {
	if c := a.price.Cmp(&b.price); c != 0 {
		return c > 0
	}
	return a.seq < b.seq
}

// askLess defines ordering for the ask side: price ascending, then
// insertion sequence ascending. Min() returns the best ask.
func askLess(a, b bookEntry) bool {
	if c := a.price.Cmp(&b.price); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// bookSide holds every order ever placed on one side of a book. Orders
// live in an arena indexed by key-1; the B-tree indexes the entries that
// are still enumerated.
type bookSide struct {
	index  *btree.BTreeG[bookEntry]
	orders []*domain.Order
}

func (s *bookSide) order(key uint64) (*domain.Order, bool) {
	if key == 0 || key > uint64(len(s.orders)) {
		return nil, false
	}
	return s.orders[key-1], true
}

// OrderBook maintains the bid and ask sides for a single symbol.
//
// Orders filled by matching leave the index but keep their arena slot, so
// lookups by key still work. Cancelled orders stay in the index with zero
// remaining volume and keep their position in snapshots.
//
// OrderBook does no locking of its own: writers hold Lock, readers RLock.
type OrderBook struct {
	symbol string
	mu     sync.RWMutex
	bids   *bookSide
	asks   *bookSide
	seq    uint64
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		bids:   &bookSide{index: btree.NewG[bookEntry](degree, bidLess)},
		asks:   &bookSide{index: btree.NewG[bookEntry](degree, askLess)},
	}
}

// Symbol returns the symbol the book trades.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() {
	ob.mu.RLock()
}

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() {
	ob.mu.RUnlock()
}

func (ob *OrderBook) side(s domain.Side) *bookSide {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert rests a new order and returns it. Keys start at 1 per side and
// are never reused; the insertion sequence is shared by both sides.
func (ob *OrderBook) Insert(side domain.Side, price, volume *uint256.Int, owner common.Address) *domain.Order {
	s := ob.side(side)
	ob.seq++
	o := &domain.Order{
		Key:       uint64(len(s.orders)) + 1,
		Seq:       ob.seq,
		Side:      side,
		Symbol:    ob.symbol,
		Price:     *price,
		Volume:    *volume,
		Remaining: *volume,
		Owner:     owner,
		Status:    domain.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	s.orders = append(s.orders, o)
	s.index.ReplaceOrInsert(bookEntry{price: o.Price, seq: o.Seq, key: o.Key})
	return o
}

// Order looks up an order by key, including filled and cancelled ones.
func (ob *OrderBook) Order(side domain.Side, key uint64) (*domain.Order, bool) {
	return ob.side(side).order(key)
}

// Best returns the first order with remaining volume in priority order.
func (ob *OrderBook) Best(side domain.Side) (*domain.Order, bool) {
	var best *domain.Order
	ob.Walk(side, func(o *domain.Order) bool {
		best = o
		return false
	})
	return best, best != nil
}

// BestPrice returns the price of Best.
func (ob *OrderBook) BestPrice(side domain.Side) (uint256.Int, bool) {
	o, ok := ob.Best(side)
	if !ok {
		return uint256.Int{}, false
	}
	return o.Price, true
}

// Walk iterates orders with remaining volume in priority order. The
// callback returns true to continue, false to stop.
func (ob *OrderBook) Walk(side domain.Side, fn func(*domain.Order) bool) {
	s := ob.side(side)
	s.index.Ascend(func(e bookEntry) bool {
		o := s.orders[e.key-1]
		if !o.Live() {
			return true
		}
		return fn(o)
	})
}

// Reduce decrements an order's remaining volume by amount. It fails with
// domain.ErrUnderflow if amount exceeds the remaining volume. An order
// reduced to zero is marked filled and leaves the index.
func (ob *OrderBook) Reduce(side domain.Side, key uint64, amount *uint256.Int) error {
	s := ob.side(side)
	o, ok := s.order(key)
	if !ok {
		return domain.ErrUnknownOrder
	}
	if amount.Gt(&o.Remaining) {
		return domain.ErrUnderflow
	}
	o.Remaining.Sub(&o.Remaining, amount)
	o.Filled.Add(&o.Filled, amount)
	if o.Remaining.IsZero() && o.Status == domain.OrderStatusOpen {
		o.Status = domain.OrderStatusFilled
		s.index.Delete(bookEntry{price: o.Price, seq: o.Seq, key: o.Key})
	}
	return nil
}

// Cancel zeroes an order's remaining volume. It is idempotent and reports
// whether the order still had volume before the call. It fails with
// domain.ErrUnknownOrder if the key was never allocated. The entry keeps
// its place in the index.
func (ob *OrderBook) Cancel(side domain.Side, key uint64) (*domain.Order, bool, error) {
	o, ok := ob.side(side).order(key)
	if !ok {
		return nil, false, domain.ErrUnknownOrder
	}
	if !o.Live() {
		return o, false, nil
	}
	now := time.Now().UTC()
	o.Remaining.Clear()
	o.Status = domain.OrderStatusCancelled
	o.CancelledAt = &now
	return o, true, nil
}

// Snapshot returns the prices and remaining volumes of every indexed
// entry, zero-volume ones included, best price first: bids highest to
// lowest, asks lowest to highest, equal prices in insertion order.
func (ob *OrderBook) Snapshot(side domain.Side) (prices, volumes []uint256.Int) {
	s := ob.side(side)
	prices = make([]uint256.Int, 0, s.index.Len())
	volumes = make([]uint256.Int, 0, s.index.Len())
	s.index.Ascend(func(e bookEntry) bool {
		o := s.orders[e.key-1]
		prices = append(prices, o.Price)
		volumes = append(volumes, o.Remaining)
		return true
	})
	return prices, volumes
}

// Len returns the number of indexed entries on a side, cancelled ones included.
func (ob *OrderBook) Len(side domain.Side) int {
	return ob.side(side).index.Len()
}

// Live returns the number of orders on a side with remaining volume.
func (ob *OrderBook) Live(side domain.Side) int {
	n := 0
	ob.Walk(side, func(*domain.Order) bool {
		n++
		return true
	})
	return n
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// Get returns the order book for symbol if one exists.
func (bm *BookManager) Get(symbol string) (*OrderBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[symbol]
	return book, ok
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// Symbols returns the symbols with a book, sorted.
func (bm *BookManager) Symbols() []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	out := make([]string, 0, len(bm.books))
	for sym := range bm.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
