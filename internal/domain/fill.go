package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Fill records the volume exchanged between an incoming order and one
// resting order. Fills always execute at the resting order's price.
type Fill struct {
	Symbol     string
	MakerSide  Side
	MakerKey   uint64
	Price      uint256.Int
	Quantity   uint256.Int
	Maker      common.Address
	Taker      common.Address
	ExecutedAt time.Time
}

// Notional returns price × quantity.
func (f *Fill) Notional() uint256.Int {
	var out uint256.Int
	out.Mul(&f.Price, &f.Quantity)
	return out
}
