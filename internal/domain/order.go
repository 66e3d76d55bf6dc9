package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side indicates whether an order buys or sells tokens.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide converts a wire value into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", &ValidationError{
		Message: fmt.Sprintf("Unknown side: %s. Must be one of: buy, sell", s),
	}
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a placed limit order. Key is unique per symbol and side and is
// never reused; it is zero for a placement that filled completely and
// never rested. Seq orders entries of equal price.
type Order struct {
	Key         uint64
	Seq         uint64
	Side        Side
	Symbol      string
	Price       uint256.Int // wei per token unit
	Volume      uint256.Int // volume at insertion
	Remaining   uint256.Int
	Filled      uint256.Int
	Owner       common.Address
	Status      OrderStatus
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Live reports whether the order still has volume to match.
func (o *Order) Live() bool {
	return !o.Remaining.IsZero()
}

// Escrow returns what is still locked for the order's remaining volume:
// price × remaining currency for a buy, remaining tokens for a sell.
func (o *Order) Escrow() uint256.Int {
	if o.Side == SideSell {
		return o.Remaining
	}
	var out uint256.Int
	out.Mul(&o.Price, &o.Remaining)
	return out
}
