package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/engine"
	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/store"
	"github.com/efreitasn/tokenexchange/internal/tokenledger"
)

// Exchange is the call surface of the exchange. Calls are applied one at
// a time; queries may run concurrently with each other but never observe
// a call half-applied.
type Exchange struct {
	mu sync.RWMutex

	registry *domain.TokenRegistry
	ledger   *store.Ledger
	books    *engine.BookManager
	matcher  *engine.Matcher
	orders   *store.OrderStore
	fills    *store.FillStore
	currency tokenledger.Ledger
	tokens   tokenledger.Resolver
	bus      *events.Bus
}

// NewExchange creates a new Exchange with the given dependencies.
// currency is the native ledger bound to the escrow account and tokens
// resolves registered token handles.
func NewExchange(
	registry *domain.TokenRegistry,
	ledger *store.Ledger,
	books *engine.BookManager,
	orders *store.OrderStore,
	fills *store.FillStore,
	currency tokenledger.Ledger,
	tokens tokenledger.Resolver,
	bus *events.Bus,
) *Exchange {
	return &Exchange{
		registry: registry,
		ledger:   ledger,
		books:    books,
		matcher:  engine.NewMatcher(books, ledger),
		orders:   orders,
		fills:    fills,
		currency: currency,
		tokens:   tokens,
		bus:      bus,
	}
}

func (x *Exchange) publish(ctx context.Context, e domain.Event) domain.Event {
	return x.bus.Publish(ctx, e)
}

// external wraps a failure reported by an external ledger.
func external(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrExternalLedgerFailure, op, err)
}

// tokenLedger returns the external ledger of a registered symbol.
func (x *Exchange) tokenLedger(symbol string) (tokenledger.Ledger, error) {
	t, ok := x.registry.Get(symbol)
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	l, err := x.tokens.Resolve(t.Handle)
	if err != nil {
		return nil, external("resolve "+symbol, err)
	}
	return l, nil
}
