package service

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/store"
)

// restorePageSize is how many events Restore reads per page.
const restorePageSize = 1000

// EventLog is a replayable, sequence-ordered log of published events.
type EventLog interface {
	Range(from uint64, limit int) ([]domain.Event, error)
}

// Restore rebuilds the registry, balances, books, orders and fills by
// applying every event in log in sequence order. External ledgers are not
// called and nothing is published. It returns the number of events applied
// and must run before the exchange serves any call.
func (x *Exchange) Restore(log EventLog) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := 0
	from := uint64(0)
	for {
		page, err := log.Range(from, restorePageSize)
		if err != nil {
			return n, fmt.Errorf("read events from %d: %w", from, err)
		}
		for _, e := range page {
			if err := x.apply(e); err != nil {
				return n, fmt.Errorf("replay event %d (%s): %w", e.Seq, e.Kind, err)
			}
			n++
			from = e.Seq + 1
		}
		if len(page) < restorePageSize {
			return n, nil
		}
	}
}

// apply re-executes the internal effect of one journaled event.
func (x *Exchange) apply(e domain.Event) error {
	switch e.Kind {
	case domain.EventTokenRegistered:
		_, err := x.registry.Register(e.Symbol, e.Handle)
		return err
	case domain.EventCurrencyDeposited:
		return x.ledger.Update(func(tx *store.LedgerTx) error {
			return tx.CreditCurrency(e.Trader, &e.Amount)
		})
	case domain.EventCurrencyWithdrawn:
		return x.ledger.Update(func(tx *store.LedgerTx) error {
			return tx.DebitCurrency(e.Trader, &e.Amount)
		})
	case domain.EventTokenDeposited:
		return x.ledger.Update(func(tx *store.LedgerTx) error {
			return tx.CreditToken(e.Trader, e.Symbol, &e.Amount)
		})
	case domain.EventTokenWithdrawn:
		return x.ledger.Update(func(tx *store.LedgerTx) error {
			return tx.DebitToken(e.Trader, e.Symbol, &e.Amount)
		})
	case domain.EventLimitBuyOrderCreated, domain.EventBuyOrderFulfilled:
		return x.replayPlacement(domain.SideBuy, e)
	case domain.EventLimitSellOrderCreated, domain.EventSellOrderFulfilled:
		return x.replayPlacement(domain.SideSell, e)
	case domain.EventBuyOrderCancelled:
		return x.replayCancel(domain.SideBuy, e)
	case domain.EventSellOrderCancelled:
		return x.replayCancel(domain.SideSell, e)
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}

// replayPlacement places the journaled order again and checks the engine
// reaches the same outcome.
func (x *Exchange) replayPlacement(side domain.Side, e domain.Event) error {
	volume := e.Placed
	if volume.IsZero() {
		volume = e.Volume
	}
	res, err := x.place(side, e.Symbol, &e.Price, &volume, e.Trader, e.Time)
	if err != nil {
		return err
	}
	if res.Event.Kind != e.Kind || res.Event.Key != e.Key {
		return fmt.Errorf("%w: replay produced %s key %d, journal has %s key %d",
			domain.ErrInvariantViolation, res.Event.Kind, res.Event.Key, e.Kind, e.Key)
	}
	return nil
}

func (x *Exchange) replayCancel(side domain.Side, e domain.Event) error {
	o, cancelled, err := x.matcher.Cancel(e.Symbol, side, &e.Price, e.Key, e.Trader)
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("%w: %s order %d had nothing left to cancel", domain.ErrInvariantViolation, side, e.Key)
	}
	at := e.Time
	o.CancelledAt = &at
	return nil
}

// Totals returns the currency and per-symbol token totals held for all
// accounts, reserved amounts included. Escrow must hold at least these.
func (x *Exchange) Totals() (uint256.Int, map[string]uint256.Int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ledger.Totals()
}
