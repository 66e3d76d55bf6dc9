package tokenledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrow = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestFixedSupplyToken_MintsToOwner(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, nil)

	supply := tok.TotalSupply()
	bal := tok.BalanceOf(alice)
	assert.Equal(t, uint64(DefaultSupply), supply.Uint64())
	assert.Equal(t, uint64(DefaultSupply), bal.Uint64())
	assert.Equal(t, "FIXED", tok.Symbol())
}

func TestToken_Transfer(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, u(100))

	require.NoError(t, tok.Transfer(alice, bob, u(40)))
	a, b := tok.BalanceOf(alice), tok.BalanceOf(bob)
	assert.Equal(t, uint64(60), a.Uint64())
	assert.Equal(t, uint64(40), b.Uint64())

	assert.ErrorIs(t, tok.Transfer(bob, alice, u(41)), ErrInsufficientFunds)
}

func TestToken_SelfTransferKeepsBalance(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, u(100))

	require.NoError(t, tok.Transfer(alice, alice, u(30)))
	bal := tok.BalanceOf(alice)
	assert.Equal(t, uint64(100), bal.Uint64())
}

func TestToken_TransferFromNeedsAllowance(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, u(100))

	err := tok.TransferFrom(escrow, alice, escrow, u(10))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	tok.Approve(alice, escrow, u(25))
	require.NoError(t, tok.TransferFrom(escrow, alice, escrow, u(10)))

	left := tok.Allowance(alice, escrow)
	assert.Equal(t, uint64(15), left.Uint64())
	held := tok.BalanceOf(escrow)
	assert.Equal(t, uint64(10), held.Uint64())

	assert.ErrorIs(t, tok.TransferFrom(escrow, alice, escrow, u(16)), ErrInsufficientAllowance)
}

func TestToken_ZeroTransferFromWithoutApproval(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, u(100))

	require.NoError(t, tok.TransferFrom(escrow, bob, escrow, u(0)))
}

func TestToken_ApproveReplaces(t *testing.T) {
	tok := NewFixedSupplyToken("FIXED", alice, u(100))

	tok.Approve(alice, escrow, u(50))
	tok.Approve(alice, escrow, u(5))
	a := tok.Allowance(alice, escrow)
	assert.Equal(t, uint64(5), a.Uint64())
}

func TestBoundToken_PullAndPush(t *testing.T) {
	ctx := context.Background()
	tok := NewFixedSupplyToken("FIXED", alice, u(100))
	l := Bind(tok, escrow)

	tok.Approve(alice, escrow, u(30))
	require.NoError(t, l.TransferFrom(ctx, alice, u(30)))

	held, err := l.BalanceOf(ctx, escrow)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), held.Uint64())

	require.NoError(t, l.Transfer(ctx, bob, u(12)))
	got, err := l.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.Uint64())

	assert.ErrorIs(t, l.Transfer(ctx, bob, u(19)), ErrInsufficientFunds)
}

func TestNative_BindPullsWithoutAllowance(t *testing.T) {
	ctx := context.Background()
	n := NewNative()
	require.NoError(t, n.Mint(alice, u(1000)))
	l := n.Bind(escrow)

	require.NoError(t, l.TransferFrom(ctx, alice, u(400)))
	a := n.BalanceOf(alice)
	e := n.BalanceOf(escrow)
	assert.Equal(t, uint64(600), a.Uint64())
	assert.Equal(t, uint64(400), e.Uint64())

	require.NoError(t, l.Transfer(ctx, bob, u(400)))
	assert.ErrorIs(t, l.Transfer(ctx, bob, u(1)), ErrInsufficientFunds)
	assert.ErrorIs(t, l.TransferFrom(ctx, alice, u(601)), ErrInsufficientFunds)
}

func TestNative_MintOverflow(t *testing.T) {
	n := NewNative()
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, n.Mint(alice, max))
	assert.Error(t, n.Mint(alice, u(1)))
}

func TestDirectory_DeployAndResolve(t *testing.T) {
	d := NewDirectory(escrow)

	h1, tok := d.Deploy("FIXED", alice, nil)
	h2, _ := d.Deploy("OTHER", alice, u(10))
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, "FIXED", tok.Symbol())
	assert.Len(t, d.Handles(), 2)

	got, ok := d.Token(h1)
	require.True(t, ok)
	assert.Same(t, tok, got)

	l, err := d.Resolve(h1)
	require.NoError(t, err)
	bal, err := l.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultSupply), bal.Uint64())

	_, err = d.Resolve(bob)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestDirectory_HandlesAreDeterministic(t *testing.T) {
	a := NewDirectory(escrow)
	b := NewDirectory(escrow)

	ha, _ := a.Deploy("FIXED", alice, nil)
	hb, _ := b.Deploy("FIXED", alice, nil)
	assert.Equal(t, ha, hb)
}
