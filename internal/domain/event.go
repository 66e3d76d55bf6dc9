package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a domain event.
type EventKind string

const (
	EventTokenRegistered       EventKind = "TokenRegistered"
	EventCurrencyDeposited     EventKind = "CurrencyDeposited"
	EventCurrencyWithdrawn     EventKind = "CurrencyWithdrawn"
	EventTokenDeposited        EventKind = "TokenDeposited"
	EventTokenWithdrawn        EventKind = "TokenWithdrawn"
	EventLimitBuyOrderCreated  EventKind = "LimitBuyOrderCreated"
	EventLimitSellOrderCreated EventKind = "LimitSellOrderCreated"
	EventBuyOrderFulfilled     EventKind = "BuyOrderFulfilled"
	EventSellOrderFulfilled    EventKind = "SellOrderFulfilled"
	EventBuyOrderCancelled     EventKind = "BuyOrderCancelled"
	EventSellOrderCancelled    EventKind = "SellOrderCancelled"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventTokenRegistered,
	EventCurrencyDeposited,
	EventCurrencyWithdrawn,
	EventTokenDeposited,
	EventTokenWithdrawn,
	EventLimitBuyOrderCreated,
	EventLimitSellOrderCreated,
	EventBuyOrderFulfilled,
	EventSellOrderFulfilled,
	EventBuyOrderCancelled,
	EventSellOrderCancelled,
}

// ValidEventKind reports whether k is a known event kind.
func ValidEventKind(k EventKind) bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the single notification a state-changing call produces.
// Fields not carried by a kind are left zero. Seq and Time are set
// when the event is published.
type Event struct {
	Seq    uint64
	Kind   EventKind
	Time   time.Time
	Symbol string
	Handle common.Address
	Key    uint64
	Price  uint256.Int
	Volume uint256.Int
	Placed uint256.Int // volume requested by a placement
	Amount uint256.Int
	Trader common.Address
}

// OrderCreatedKind returns the Limit*OrderCreated kind for side.
func OrderCreatedKind(side Side) EventKind {
	if side == SideBuy {
		return EventLimitBuyOrderCreated
	}
	return EventLimitSellOrderCreated
}

// OrderFulfilledKind returns the *OrderFulfilled kind for side.
func OrderFulfilledKind(side Side) EventKind {
	if side == SideBuy {
		return EventBuyOrderFulfilled
	}
	return EventSellOrderFulfilled
}

// OrderCancelledKind returns the *OrderCancelled kind for side.
func OrderCancelledKind(side Side) EventKind {
	if side == SideBuy {
		return EventBuyOrderCancelled
	}
	return EventSellOrderCancelled
}
