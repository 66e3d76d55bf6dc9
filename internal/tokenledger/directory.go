package tokenledger

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Directory holds in-memory tokens by handle and resolves them for the
// exchange's escrow account.
type Directory struct {
	mu     sync.RWMutex
	escrow common.Address
	tokens map[common.Address]*Token
	nonces map[common.Address]uint64
}

// NewDirectory creates an empty Directory bound to escrow.
func NewDirectory(escrow common.Address) *Directory {
	return &Directory{
		escrow: escrow,
		tokens: make(map[common.Address]*Token),
		nonces: make(map[common.Address]uint64),
	}
}

// Deploy mints a fixed-supply token to deployer and returns its handle.
// Handles are derived from the deployer and a per-deployer nonce.
func (d *Directory) Deploy(symbol string, deployer common.Address, supply *uint256.Int) (common.Address, *Token) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nonce := d.nonces[deployer]
	d.nonces[deployer] = nonce + 1
	handle := crypto.CreateAddress(deployer, nonce)
	t := NewFixedSupplyToken(symbol, deployer, supply)
	d.tokens[handle] = t
	return handle, t
}

// Token returns the token at handle.
func (d *Directory) Token(handle common.Address) (*Token, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tokens[handle]
	return t, ok
}

// Handles returns every deployed handle, sorted.
func (d *Directory) Handles() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]common.Address, 0, len(d.tokens))
	for h := range d.tokens {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Resolve implements Resolver.
func (d *Directory) Resolve(handle common.Address) (Ledger, error) {
	t, ok := d.Token(handle)
	if !ok {
		return nil, ErrUnknownHandle
	}
	return Bind(t, d.escrow), nil
}
