package engine

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/store"
)

// newTestMatcher creates a Matcher with a fresh ledger for testing.
func newTestMatcher() (*Matcher, *store.Ledger) {
	ledger := store.NewLedger()
	return NewMatcher(NewBookManager(), ledger), ledger
}

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// fund credits currency and tokens to addr.
func fund(t fataler, l *store.Ledger, addr common.Address, currency uint64, tokens uint64) {
	t.Helper()
	err := l.Update(func(tx *store.LedgerTx) error {
		if currency > 0 {
			if err := tx.CreditCurrency(addr, u(currency)); err != nil {
				return err
			}
		}
		if tokens > 0 {
			return tx.CreditToken(addr, "FIXED", u(tokens))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fund %s: %v", addr.Hex(), err)
	}
}

func place(t *testing.T, m *Matcher, side domain.Side, price, volume uint64, trader common.Address) Result {
	t.Helper()
	res, err := m.Place(side, "FIXED", u(price), u(volume), trader)
	if err != nil {
		t.Fatalf("Place(%s %d@%d): %v", side, volume, price, err)
	}
	return res
}

func balances(l *store.Ledger, addr common.Address) (currency, tokens uint64) {
	c := l.CurrencyBalance(addr)
	tk := l.TokenBalance(addr, "FIXED")
	return c.Uint64(), tk.Uint64()
}

func TestPlace_BuyNoMatch_RestsOnBook(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 1000, 0)

	res := place(t, m, domain.SideBuy, 10, 5, alice)

	if res.Event.Kind != domain.EventLimitBuyOrderCreated {
		t.Errorf("event = %s, want LimitBuyOrderCreated", res.Event.Kind)
	}
	if res.Event.Key != 1 || res.Event.Volume.Uint64() != 5 || res.Event.Price.Uint64() != 10 || res.Event.Trader != alice {
		t.Errorf("event fields = %+v", res.Event)
	}
	if res.Resting == nil || len(res.Fills) != 0 {
		t.Fatalf("resting = %v fills = %d", res.Resting, len(res.Fills))
	}
	if got, _ := balances(l, alice); got != 950 {
		t.Errorf("available currency = %d, want 950 (50 escrowed)", got)
	}
	prices, volumes := m.Snapshot("FIXED", domain.SideBuy)
	if len(prices) != 1 || prices[0].Uint64() != 10 || volumes[0].Uint64() != 5 {
		t.Errorf("bid book = %v / %v", uints(prices), uints(volumes))
	}
}

func TestPlace_SellNoMatch_RestsOnBook(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 10)

	res := place(t, m, domain.SideSell, 10, 4, alice)

	if res.Event.Kind != domain.EventLimitSellOrderCreated || res.Event.Key != 1 {
		t.Errorf("event = %+v, want LimitSellOrderCreated key 1", res.Event)
	}
	if _, tokens := balances(l, alice); tokens != 6 {
		t.Errorf("available tokens = %d, want 6", tokens)
	}
}

func TestPlace_FullMatch_Fulfilled(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 5)
	fund(t, l, bob, 100, 0)

	place(t, m, domain.SideSell, 10, 5, alice)
	res := place(t, m, domain.SideBuy, 10, 5, bob)

	if res.Event.Kind != domain.EventBuyOrderFulfilled {
		t.Fatalf("event = %s, want BuyOrderFulfilled", res.Event.Kind)
	}
	if res.Event.Volume.Uint64() != 5 || res.Event.Price.Uint64() != 10 || res.Event.Trader != bob {
		t.Errorf("event fields = %+v", res.Event)
	}
	if res.Resting != nil {
		t.Error("fulfilled order should not rest")
	}
	if c, tk := balances(l, alice); c != 50 || tk != 0 {
		t.Errorf("seller = %d/%d, want 50/0", c, tk)
	}
	if c, tk := balances(l, bob); c != 50 || tk != 5 {
		t.Errorf("buyer = %d/%d, want 50/5", c, tk)
	}
	if prices, _ := m.Snapshot("FIXED", domain.SideSell); len(prices) != 0 {
		t.Errorf("ask book has %d entries after full fill, want 0", len(prices))
	}
}

func TestPlace_PartialMatch_CreatesRemainder(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 20)
	fund(t, l, bob, 1000, 0)

	place(t, m, domain.SideSell, 10, 20, alice)
	res := place(t, m, domain.SideBuy, 10, 35, bob)

	if res.Event.Kind != domain.EventLimitBuyOrderCreated {
		t.Fatalf("event = %s, want LimitBuyOrderCreated", res.Event.Kind)
	}
	if res.Event.Volume.Uint64() != 15 {
		t.Errorf("event volume = %d, want 15", res.Event.Volume.Uint64())
	}
	if len(res.Fills) != 1 || res.Fills[0].Quantity.Uint64() != 20 {
		t.Errorf("fills = %+v", res.Fills)
	}
	if asks, _ := m.Snapshot("FIXED", domain.SideSell); len(asks) != 0 {
		t.Errorf("ask book len = %d, want 0", len(asks))
	}
	_, bidVolumes := m.Snapshot("FIXED", domain.SideBuy)
	if len(bidVolumes) != 1 || bidVolumes[0].Uint64() != 15 {
		t.Errorf("bid volumes = %v, want [15]", uints(bidVolumes))
	}
	// 200 paid, 150 escrowed for the remainder.
	if c, tk := balances(l, bob); c != 650 || tk != 20 {
		t.Errorf("buyer = %d/%d, want 650/20", c, tk)
	}
}

func TestPlace_PriceTimePriorityAcrossLevels(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 15)
	fund(t, l, bob, 1000, 0)

	place(t, m, domain.SideSell, 1, 5, alice)
	place(t, m, domain.SideSell, 2, 5, alice)
	place(t, m, domain.SideSell, 3, 5, alice)

	res := place(t, m, domain.SideBuy, 3, 15, bob)

	if res.Event.Kind != domain.EventBuyOrderFulfilled {
		t.Fatalf("event = %s, want BuyOrderFulfilled", res.Event.Kind)
	}
	if len(res.Fills) != 3 {
		t.Fatalf("fills = %d, want 3", len(res.Fills))
	}
	for i, want := range []uint64{1, 2, 3} {
		if res.Fills[i].Price.Uint64() != want {
			t.Errorf("fill[%d] price = %d, want %d", i, res.Fills[i].Price.Uint64(), want)
		}
	}
	// Cost 5+10+15 = 30; the 45 escrow minus 30 comes back.
	if c, tk := balances(l, bob); c != 970 || tk != 15 {
		t.Errorf("buyer = %d/%d, want 970/15", c, tk)
	}
	if c, _ := balances(l, alice); c != 30 {
		t.Errorf("seller currency = %d, want 30", c)
	}
}

func TestPlace_EqualPriceEarlierFirst(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 5)
	fund(t, l, carol, 0, 5)
	fund(t, l, bob, 100, 0)

	place(t, m, domain.SideSell, 4, 5, alice)
	place(t, m, domain.SideSell, 4, 5, carol)
	res := place(t, m, domain.SideBuy, 4, 5, bob)

	if len(res.Fills) != 1 || res.Fills[0].Maker != alice {
		t.Errorf("fills = %+v, want one fill against alice", res.Fills)
	}
}

func TestPlace_IncomingSell_SettlesAtBidPrice(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, bob, 120, 0)
	fund(t, l, alice, 0, 10)

	place(t, m, domain.SideBuy, 12, 10, bob)
	res := place(t, m, domain.SideSell, 9, 10, alice)

	if res.Event.Kind != domain.EventSellOrderFulfilled {
		t.Fatalf("event = %s, want SellOrderFulfilled", res.Event.Kind)
	}
	if c, _ := balances(l, alice); c != 120 {
		t.Errorf("seller currency = %d, want 120 (bid price)", c)
	}
	if c, tk := balances(l, bob); c != 0 || tk != 10 {
		t.Errorf("buyer = %d/%d, want 0/10", c, tk)
	}
}

func TestPlace_NoCrossLeavesBothResting(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 5)
	fund(t, l, bob, 100, 0)

	place(t, m, domain.SideSell, 11, 5, alice)
	res := place(t, m, domain.SideBuy, 10, 5, bob)

	if res.Event.Kind != domain.EventLimitBuyOrderCreated || len(res.Fills) != 0 {
		t.Errorf("event = %s fills = %d", res.Event.Kind, len(res.Fills))
	}
}

func TestPlace_SkipsCancelledEntries(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 10)
	fund(t, l, bob, 100, 0)

	first := place(t, m, domain.SideSell, 5, 5, alice)
	place(t, m, domain.SideSell, 6, 5, alice)
	if _, _, err := m.Cancel("FIXED", domain.SideSell, u(5), first.Event.Key, alice); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	res := place(t, m, domain.SideBuy, 6, 5, bob)
	if len(res.Fills) != 1 || res.Fills[0].MakerKey != 2 {
		t.Errorf("fills = %+v, want one fill against key 2", res.Fills)
	}
}

func TestPlace_InsufficientBalance_NoChange(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 5)
	fund(t, l, bob, 49, 0)

	place(t, m, domain.SideSell, 10, 5, alice)
	_, err := m.Place(domain.SideBuy, "FIXED", u(10), u(5), bob)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	if c, tk := balances(l, bob); c != 49 || tk != 0 {
		t.Errorf("buyer changed to %d/%d", c, tk)
	}
	_, volumes := m.Snapshot("FIXED", domain.SideSell)
	if len(volumes) != 1 || volumes[0].Uint64() != 5 {
		t.Errorf("ask book changed: %v", uints(volumes))
	}

	if _, err := m.Place(domain.SideSell, "FIXED", u(10), u(1), bob); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("sell without tokens error = %v, want ErrInsufficientBalance", err)
	}
}

func TestPlace_InvalidAmounts(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 100)
	max := new(uint256.Int).SetAllOne()

	tests := []struct {
		name          string
		side          domain.Side
		price, volume *uint256.Int
	}{
		{"zero price", domain.SideBuy, u(0), u(1)},
		{"zero volume", domain.SideSell, u(1), u(0)},
		{"notional overflow", domain.SideBuy, max, u(2)},
	}
	for _, tt := range tests {
		if _, err := m.Place(tt.side, "FIXED", tt.price, tt.volume, alice); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("%s: error = %v, want ErrInvalidAmount", tt.name, err)
		}
	}
}

func TestPlace_SelfTrade(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 10)

	place(t, m, domain.SideSell, 10, 5, alice)
	res := place(t, m, domain.SideBuy, 10, 5, alice)

	if res.Event.Kind != domain.EventBuyOrderFulfilled {
		t.Errorf("event = %s, want BuyOrderFulfilled", res.Event.Kind)
	}
	if c, tk := balances(l, alice); c != 100 || tk != 10 {
		t.Errorf("self trade changed balances to %d/%d", c, tk)
	}
}

func TestCancel_BuyReleasesCurrency(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 0)
	res := place(t, m, domain.SideBuy, 10, 5, alice)

	o, cancelled, err := m.Cancel("FIXED", domain.SideBuy, u(10), res.Event.Key, alice)
	if err != nil || !cancelled {
		t.Fatalf("Cancel() = %v, %v", cancelled, err)
	}
	if o.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
	if c, _ := balances(l, alice); c != 100 {
		t.Errorf("currency = %d after cancel, want 100", c)
	}
	prices, volumes := m.Snapshot("FIXED", domain.SideBuy)
	if len(prices) != 1 || !volumes[0].IsZero() {
		t.Errorf("bid book = %v / %v, want one zero-volume entry", uints(prices), uints(volumes))
	}
}

func TestCancel_PartiallyFilledSellReleasesRemainder(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 10)
	fund(t, l, bob, 100, 0)

	res := place(t, m, domain.SideSell, 10, 10, alice)
	place(t, m, domain.SideBuy, 10, 4, bob)

	if _, _, err := m.Cancel("FIXED", domain.SideSell, u(10), res.Event.Key, alice); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c, tk := balances(l, alice); c != 40 || tk != 6 {
		t.Errorf("seller = %d/%d, want 40/6", c, tk)
	}
	acct, _ := l.Account(alice)
	if h := acct.Tokens["FIXED"]; !h.Reserved.IsZero() {
		t.Errorf("reserved tokens = %s after cancel, want 0", h.Reserved.Dec())
	}
}

func TestCancel_Idempotent(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 0)
	res := place(t, m, domain.SideBuy, 10, 5, alice)

	if _, _, err := m.Cancel("FIXED", domain.SideBuy, u(10), res.Event.Key, alice); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	_, cancelled, err := m.Cancel("FIXED", domain.SideBuy, u(10), res.Event.Key, alice)
	if err != nil || cancelled {
		t.Errorf("second Cancel() = %v, %v, want false, nil", cancelled, err)
	}
	if c, _ := balances(l, alice); c != 100 {
		t.Errorf("currency = %d after double cancel, want 100", c)
	}
}

func TestCancel_FilledOrderIsNoop(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 5)
	fund(t, l, bob, 50, 0)
	res := place(t, m, domain.SideSell, 10, 5, alice)
	place(t, m, domain.SideBuy, 10, 5, bob)

	o, cancelled, err := m.Cancel("FIXED", domain.SideSell, u(10), res.Event.Key, alice)
	if err != nil || cancelled {
		t.Errorf("Cancel(filled) = %v, %v, want false, nil", cancelled, err)
	}
	if o.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want filled", o.Status)
	}
}

func TestCancel_Errors(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 0)
	res := place(t, m, domain.SideBuy, 10, 5, alice)

	tests := []struct {
		name   string
		symbol string
		side   domain.Side
		price  uint64
		key    uint64
		caller common.Address
		want   error
	}{
		{"unknown symbol", "NONE", domain.SideBuy, 10, res.Event.Key, alice, domain.ErrUnknownOrder},
		{"unknown key", "FIXED", domain.SideBuy, 10, 7, alice, domain.ErrUnknownOrder},
		{"wrong side", "FIXED", domain.SideSell, 10, res.Event.Key, alice, domain.ErrUnknownOrder},
		{"wrong price", "FIXED", domain.SideBuy, 11, res.Event.Key, alice, domain.ErrUnknownOrder},
		{"not owner", "FIXED", domain.SideBuy, 10, res.Event.Key, bob, domain.ErrNotOrderOwner},
	}
	for _, tt := range tests {
		_, _, err := m.Cancel(tt.symbol, tt.side, u(tt.price), tt.key, tt.caller)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if c, _ := balances(l, alice); c != 50 {
		t.Errorf("failed cancels released escrow: currency = %d, want 50", c)
	}
}

func TestQuote(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 30)
	place(t, m, domain.SideSell, 10, 5, alice)
	place(t, m, domain.SideSell, 10, 5, alice)
	place(t, m, domain.SideSell, 12, 20, alice)

	q := m.Quote(domain.SideBuy, "FIXED", u(15))
	if !q.FullyFillable || q.Available.Uint64() != 15 {
		t.Errorf("quote = %+v", q)
	}
	if q.Notional.Uint64() != 160 {
		t.Errorf("notional = %d, want 160", q.Notional.Uint64())
	}
	if len(q.Levels) != 2 || q.Levels[0].Volume.Uint64() != 10 || q.Levels[1].Volume.Uint64() != 5 {
		t.Errorf("levels = %+v", q.Levels)
	}

	partial := m.Quote(domain.SideBuy, "FIXED", u(100))
	if partial.FullyFillable || partial.Available.Uint64() != 30 {
		t.Errorf("partial quote = %+v", partial)
	}
	if empty := m.Quote(domain.SideBuy, "NONE", u(1)); empty.FullyFillable || len(empty.Levels) != 0 {
		t.Errorf("quote on unknown symbol = %+v", empty)
	}
}

func TestQuote_NotionalOverflow(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 0, 2)
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	if _, err := m.Place(domain.SideSell, "FIXED", huge, u(2), alice); err != nil {
		t.Fatalf("Place(sell 2@2^255): %v", err)
	}

	q := m.Quote(domain.SideBuy, "FIXED", u(2))
	if !q.NotionalOverflow {
		t.Errorf("NotionalOverflow = false, want true for 2 @ 2^255")
	}
	if !q.Notional.IsZero() {
		t.Errorf("Notional = %s on overflow, want 0", q.Notional.Dec())
	}
	if !q.FullyFillable || q.Available.Uint64() != 2 {
		t.Errorf("quote = %+v, want 2 available", q)
	}

	// One unit at 2^255 fits.
	if one := m.Quote(domain.SideBuy, "FIXED", u(1)); one.NotionalOverflow || !one.Notional.Eq(huge) {
		t.Errorf("Quote(1) notional = %s overflow = %v, want 2^255", one.Notional.Dec(), one.NotionalOverflow)
	}
}

func TestOrderLookup(t *testing.T) {
	m, l := newTestMatcher()
	fund(t, l, alice, 100, 0)
	res := place(t, m, domain.SideBuy, 10, 5, alice)

	o, err := m.Order("FIXED", domain.SideBuy, res.Event.Key)
	if err != nil || o.Owner != alice {
		t.Errorf("Order() = %+v, %v", o, err)
	}
	if _, err := m.Order("FIXED", domain.SideBuy, 9); !errors.Is(err, domain.ErrUnknownOrder) {
		t.Errorf("Order(unknown) error = %v", err)
	}
}
