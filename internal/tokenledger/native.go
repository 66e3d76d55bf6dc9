package tokenledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Native is an in-memory ledger of the base currency. Deposits carry
// value with the call, so pulls into escrow need no allowance.
type Native struct {
	mu       sync.Mutex
	balances balances
}

// NewNative creates an empty currency ledger.
func NewNative() *Native {
	return &Native{balances: make(balances)}
}

// Mint credits amount to addr out of thin air. Used to seed dev accounts.
func (n *Native) Mint(addr common.Address, amount *uint256.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	bal := n.balances.get(addr)
	if _, overflow := bal.AddOverflow(&bal, amount); overflow {
		return ErrInsufficientFunds
	}
	n.balances[addr] = &bal
	return nil
}

// BalanceOf returns the balance of addr.
func (n *Native) BalanceOf(addr common.Address) uint256.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balances.get(addr)
}

// Transfer moves amount between two holders.
func (n *Native) Transfer(from, to common.Address, amount *uint256.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balances.move(from, to, amount)
}

// Bind returns the currency ledger as seen by the escrow account.
func (n *Native) Bind(escrow common.Address) Ledger {
	return &boundNative{native: n, escrow: escrow}
}

type boundNative struct {
	native *Native
	escrow common.Address
}

func (b *boundNative) BalanceOf(_ context.Context, owner common.Address) (uint256.Int, error) {
	return b.native.BalanceOf(owner), nil
}

func (b *boundNative) TransferFrom(_ context.Context, owner common.Address, amount *uint256.Int) error {
	return b.native.Transfer(owner, b.escrow, amount)
}

func (b *boundNative) Transfer(_ context.Context, recipient common.Address, amount *uint256.Int) error {
	return b.native.Transfer(b.escrow, recipient, amount)
}
