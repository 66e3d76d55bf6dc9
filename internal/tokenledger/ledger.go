// Package tokenledger models the external ledgers that hold tokens and
// currency outside the exchange. The exchange only ever sees a Ledger
// bound to its own escrow address.
package tokenledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds     = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("transfer amount exceeds allowance")
	ErrUnknownHandle         = errors.New("no ledger at handle")
)

// Ledger is an external ledger as seen from the exchange's escrow account.
type Ledger interface {
	// BalanceOf returns owner's balance on the external ledger.
	BalanceOf(ctx context.Context, owner common.Address) (uint256.Int, error)
	// TransferFrom pulls amount from owner into escrow.
	TransferFrom(ctx context.Context, owner common.Address, amount *uint256.Int) error
	// Transfer pushes amount from escrow to recipient.
	Transfer(ctx context.Context, recipient common.Address, amount *uint256.Int) error
}

// Resolver finds the ledger behind a registered token handle.
type Resolver interface {
	Resolve(handle common.Address) (Ledger, error)
}

// balances is an address → amount map with checked arithmetic.
type balances map[common.Address]*uint256.Int

func (b balances) get(addr common.Address) uint256.Int {
	if v, ok := b[addr]; ok {
		return *v
	}
	return uint256.Int{}
}

// move transfers amount from one address to another.
func (b balances) move(from, to common.Address, amount *uint256.Int) error {
	fromBal := b.get(from)
	if amount.Gt(&fromBal) {
		return ErrInsufficientFunds
	}
	fromBal.Sub(&fromBal, amount)
	toBal := b.get(to)
	if from == to {
		toBal = fromBal
	}
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&toBal, amount); overflow {
		return ErrInsufficientFunds
	}
	b[from] = &fromBal
	b[to] = &sum
	return nil
}
