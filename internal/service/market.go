package service

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// DefaultFillsLimit caps the fills returned when no limit is given.
const DefaultFillsLimit = 50

// BookSnapshot is one side of a book as parallel sequences, best price
// first. Cancelled orders appear with zero volume.
type BookSnapshot struct {
	Symbol  string
	Side    domain.Side
	Prices  []uint256.Int
	Volumes []uint256.Int
}

// QuotePriceLevel represents a single price level in the quote response.
type QuotePriceLevel struct {
	Price  uint256.Int
	Volume uint256.Int
}

// QuoteResponse is a simulation of matching volume against the book.
type QuoteResponse struct {
	Symbol          string
	Side            domain.Side
	VolumeRequested uint256.Int
	VolumeAvailable uint256.Int
	FullyFillable   bool
	EstimatedTotal  *uint256.Int // nil when no liquidity or beyond 256 bits
	PriceLevels     []QuotePriceLevel
	QuotedAt        time.Time
}

// BidBook returns the buy side of symbol's book.
func (x *Exchange) BidBook(symbol string) (*BookSnapshot, error) {
	return x.snapshot(symbol, domain.SideBuy)
}

// AskBook returns the sell side of symbol's book.
func (x *Exchange) AskBook(symbol string) (*BookSnapshot, error) {
	return x.snapshot(symbol, domain.SideSell)
}

func (x *Exchange) snapshot(symbol string, side domain.Side) (*BookSnapshot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.registry.Exists(symbol) {
		return nil, domain.ErrUnknownSymbol
	}
	prices, volumes := x.matcher.Snapshot(symbol, side)
	return &BookSnapshot{
		Symbol:  symbol,
		Side:    side,
		Prices:  prices,
		Volumes: volumes,
	}, nil
}

// Quote simulates taking volume on side against the current book without
// placing an order.
func (x *Exchange) Quote(symbol string, side domain.Side, volume *uint256.Int) (*QuoteResponse, error) {
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if volume.IsZero() {
		return nil, domain.ErrInvalidAmount
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.registry.Exists(symbol) {
		return nil, domain.ErrUnknownSymbol
	}

	result := x.matcher.Quote(side, symbol, volume)

	levels := make([]QuotePriceLevel, len(result.Levels))
	for i, l := range result.Levels {
		levels[i] = QuotePriceLevel{Price: l.Price, Volume: l.Volume}
	}
	resp := &QuoteResponse{
		Symbol:          symbol,
		Side:            side,
		VolumeRequested: *volume,
		VolumeAvailable: result.Available,
		FullyFillable:   result.FullyFillable,
		PriceLevels:     levels,
		QuotedAt:        time.Now().UTC(),
	}
	if !result.Available.IsZero() && !result.NotionalOverflow {
		total := result.Notional
		resp.EstimatedTotal = &total
	}
	return resp, nil
}

// Fills returns up to limit of symbol's most recent fills in execution order.
func (x *Exchange) Fills(symbol string, limit int) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = DefaultFillsLimit
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.registry.Exists(symbol) {
		return nil, domain.ErrUnknownSymbol
	}
	return x.fills.BySymbol(symbol, limit), nil
}

// LastPrice returns the price of symbol's most recent fill.
func (x *Exchange) LastPrice(symbol string) (uint256.Int, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.registry.Exists(symbol) {
		return uint256.Int{}, false, domain.ErrUnknownSymbol
	}
	f, ok := x.fills.Last(symbol)
	if !ok {
		return uint256.Int{}, false, nil
	}
	return f.Price, true, nil
}
