package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/engine"
)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:      true,
	domain.OrderStatusFilled:    true,
	domain.OrderStatusCancelled: true,
}

// PlaceOrderResponse is the outcome of a placement call.
type PlaceOrderResponse struct {
	Event   domain.Event
	Fills   []domain.Fill
	Resting *domain.Order // copy of the resting remainder, nil when fulfilled
}

// PlaceBuyOrder places a limit buy of volume tokens at up to price per token.
func (x *Exchange) PlaceBuyOrder(ctx context.Context, caller common.Address, symbol string, price, volume *uint256.Int) (*PlaceOrderResponse, error) {
	return x.PlaceOrder(ctx, caller, domain.SideBuy, symbol, price, volume)
}

// PlaceSellOrder places a limit sell of volume tokens at no less than price per token.
func (x *Exchange) PlaceSellOrder(ctx context.Context, caller common.Address, symbol string, price, volume *uint256.Int) (*PlaceOrderResponse, error) {
	return x.PlaceOrder(ctx, caller, domain.SideSell, symbol, price, volume)
}

// PlaceOrder runs a limit order through the matching engine and publishes
// the single event describing its outcome.
func (x *Exchange) PlaceOrder(ctx context.Context, caller common.Address, side domain.Side, symbol string, price, volume *uint256.Int) (*PlaceOrderResponse, error) {
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.place(side, symbol, price, volume, caller, time.Time{})
	if err != nil {
		return nil, err
	}
	resp := &PlaceOrderResponse{Fills: res.Fills}
	if res.Resting != nil {
		o := *res.Resting
		resp.Resting = &o
	}
	resp.Event = x.publish(ctx, res.Event)
	return resp, nil
}

// place matches an order and records the outcome in the order and fill
// stores. A placement that fills completely is recorded as a filled order
// with key 0, since it never rests. A non-zero at overrides the engine's
// timestamps. The caller must hold x.mu.
func (x *Exchange) place(side domain.Side, symbol string, price, volume *uint256.Int, caller common.Address, at time.Time) (engine.Result, error) {
	if !x.registry.Exists(symbol) {
		return engine.Result{}, domain.ErrUnknownSymbol
	}

	res, err := x.matcher.Place(side, symbol, price, volume, caller)
	if err != nil {
		return engine.Result{}, err
	}
	if !at.IsZero() {
		for i := range res.Fills {
			res.Fills[i].ExecutedAt = at
		}
		if res.Resting != nil {
			res.Resting.CreatedAt = at
		}
	}
	if len(res.Fills) > 0 {
		x.fills.Append(res.Fills...)
	}

	if res.Resting != nil {
		x.orders.Create(res.Resting)
		return res, nil
	}
	createdAt := at
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	x.orders.Create(&domain.Order{
		Side:      side,
		Symbol:    symbol,
		Price:     *price,
		Volume:    *volume,
		Filled:    *volume,
		Owner:     caller,
		Status:    domain.OrderStatusFilled,
		CreatedAt: createdAt,
	})
	return res, nil
}

// CancelOrder zeroes caller's resting order and returns its escrow.
// The returned bool is false when the order had nothing left to cancel;
// no event is published in that case.
func (x *Exchange) CancelOrder(ctx context.Context, caller common.Address, symbol string, isBuy bool, price *uint256.Int, key uint64) (domain.Event, bool, error) {
	side := domain.SideSell
	if isBuy {
		side = domain.SideBuy
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	_, cancelled, err := x.matcher.Cancel(symbol, side, price, key, caller)
	if err != nil {
		return domain.Event{}, false, err
	}
	if !cancelled {
		return domain.Event{}, false, nil
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.OrderCancelledKind(side),
		Symbol: symbol,
		Key:    key,
		Price:  *price,
		Trader: caller,
	}), true, nil
}

// Order retrieves an order by symbol, side and key.
func (x *Exchange) Order(symbol string, side domain.Side, key uint64) (domain.Order, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.matcher.Order(symbol, side, key)
}

// ListOrders returns a paginated list of caller's orders with optional
// status filtering, newest first.
func (x *Exchange) ListOrders(caller common.Address, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if status != nil {
		if !ValidOrderStatuses[*status] {
			return nil, 0, &domain.ValidationError{
				Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: open, filled, cancelled", *status),
			}
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	list, total := x.orders.ListByAccount(caller, status, page, limit)
	out := make([]domain.Order, len(list))
	for i, o := range list {
		out[i] = *o
	}
	return out, total, nil
}

