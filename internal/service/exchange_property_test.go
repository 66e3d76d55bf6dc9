package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// Feature: token-exchange, Property 6: Round-trip deposit/withdraw

// TestProperty_DepositWithdrawRoundTrip verifies that depositing an amount
// and withdrawing it again restores both the internal and the external
// balances exactly.
func TestProperty_DepositWithdrawRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestExchangeEnv(t)
		ctx := context.Background()
		start := rapid.Uint64Range(0, 1_000).Draw(t, "start")
		amount := rapid.Uint64Range(1, 1_000).Draw(t, "amount")
		env.native.Mint(bob, u(start+amount))
		if start > 0 {
			env.x.DepositCurrency(ctx, bob, u(start))
		}

		if _, err := env.x.DepositCurrency(ctx, bob, u(amount)); err != nil {
			t.Fatalf("DepositCurrency() error = %v", err)
		}
		if _, err := env.x.WithdrawCurrency(ctx, bob, u(amount)); err != nil {
			t.Fatalf("WithdrawCurrency() error = %v", err)
		}
		if got := env.currency(bob); got != start {
			t.Fatalf("internal balance = %d, want %d", got, start)
		}
		ext := env.native.BalanceOf(bob)
		if ext.Uint64() != amount {
			t.Fatalf("external balance = %d, want %d", ext.Uint64(), amount)
		}

		env.fundTokens(t, bob, amount)
		if _, err := env.x.WithdrawToken(ctx, bob, testSymbol, u(amount)); err != nil {
			t.Fatalf("WithdrawToken() error = %v", err)
		}
		if got := env.tokens(bob); got != 0 {
			t.Fatalf("internal token balance = %d, want 0", got)
		}
	})
}

// Feature: token-exchange, Property 7: Conservation against the external ledgers

// TestProperty_EscrowMatchesInternalTotals verifies that after any sequence
// of deposits, placements, cancellations and withdrawals, the escrow
// account's external holdings equal the sum of all internal balances, and
// every call emits exactly one event or none on failure.
func TestProperty_EscrowMatchesInternalTotals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newTestExchangeEnv(t)
		ctx := context.Background()
		traders := []common.Address{bob, carol}
		for _, tr := range traders {
			env.native.Mint(tr, u(10_000))
			env.token.Transfer(alice, tr, u(1_000))
			env.token.Approve(tr, escrow, u(1_000))
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			tr := rapid.SampledFrom(traders).Draw(t, "trader")
			amount := u(rapid.Uint64Range(1, 50).Draw(t, "amount"))
			before := env.rec.Len()
			var err error
			cancelNoop := false

			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				_, err = env.x.DepositCurrency(ctx, tr, amount)
			case 1:
				_, err = env.x.WithdrawCurrency(ctx, tr, amount)
			case 2:
				_, err = env.x.DepositToken(ctx, tr, testSymbol, amount)
			case 3:
				_, err = env.x.WithdrawToken(ctx, tr, testSymbol, amount)
			case 4:
				price := u(rapid.Uint64Range(1, 10).Draw(t, "price"))
				_, err = env.x.PlaceBuyOrder(ctx, tr, testSymbol, price, amount)
			case 5:
				price := u(rapid.Uint64Range(1, 10).Draw(t, "price"))
				_, err = env.x.PlaceSellOrder(ctx, tr, testSymbol, price, amount)
			case 6:
				isBuy := rapid.Bool().Draw(t, "isBuy")
				side := domain.SideSell
				if isBuy {
					side = domain.SideBuy
				}
				key := rapid.Uint64Range(1, 5).Draw(t, "key")
				o, lookupErr := env.x.Order(testSymbol, side, key)
				if lookupErr != nil {
					continue
				}
				var ok bool
				_, ok, err = env.x.CancelOrder(ctx, o.Owner, testSymbol, isBuy, &o.Price, key)
				cancelNoop = err == nil && !ok
			}

			emitted := env.rec.Len() - before
			switch {
			case err != nil && emitted != 0:
				t.Fatalf("step %d failed with %v but emitted %d events", i, err, emitted)
			case err == nil && !cancelNoop && emitted != 1:
				t.Fatalf("step %d emitted %d events, want 1", i, emitted)
			case cancelNoop && emitted != 0:
				t.Fatalf("step %d no-op cancel emitted %d events", i, emitted)
			}

			currency, tokens := env.ledger.Totals()
			held := env.native.BalanceOf(escrow)
			if !held.Eq(&currency) {
				t.Fatalf("escrow holds %s currency, internal total %s", held.Dec(), currency.Dec())
			}
			heldTokens := env.token.BalanceOf(escrow)
			total := tokens[testSymbol]
			if !heldTokens.Eq(&total) {
				t.Fatalf("escrow holds %s tokens, internal total %s", heldTokens.Dec(), total.Dec())
			}
			assertReservationsCovered(t, env)
		}
	})
}

// assertReservationsCovered checks that no account reserves more than it holds.
func assertReservationsCovered(t *rapid.T, env *testExchangeEnv) {
	for _, addr := range []common.Address{bob, carol} {
		b := env.x.Balance(addr)
		if b.ReservedCurrency.Gt(&b.Currency) {
			t.Fatalf("%s reserves %s of %s currency", addr.Hex(), b.ReservedCurrency.Dec(), b.Currency.Dec())
		}
		for _, tb := range b.Tokens {
			if tb.Reserved.Gt(&tb.Balance) {
				t.Fatalf("%s reserves %s of %s %s", addr.Hex(), tb.Reserved.Dec(), tb.Balance.Dec(), tb.Symbol)
			}
		}
	}
}
