package engine

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// Feature: token-exchange, Property 2: Order book sorting invariant
// Snapshots list entries best price first, equal prices in insertion order,
// whatever mix of inserts and cancellations produced them.

func TestProperty_SnapshotSortingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side")
		n := rapid.IntRange(1, 50).Draw(t, "numOrders")
		book := NewOrderBook("TEST")

		for i := 0; i < n; i++ {
			// A small price range forces ties.
			price := rapid.Uint64Range(1, 10).Draw(t, fmt.Sprintf("price-%d", i))
			book.Insert(side, u(price), u(1), alice)
			if rapid.Bool().Draw(t, fmt.Sprintf("cancel-%d", i)) {
				key := rapid.Uint64Range(1, uint64(i+1)).Draw(t, fmt.Sprintf("cancelKey-%d", i))
				if _, _, err := book.Cancel(side, key); err != nil {
					t.Fatalf("Cancel(%d): %v", key, err)
				}
			}
		}

		if book.Len(side) != n {
			t.Fatalf("Len() = %d, want %d (cancellation must not remove entries)", book.Len(side), n)
		}

		var prev *domain.Order
		book.side(side).index.Ascend(func(e bookEntry) bool {
			cur := book.side(side).orders[e.key-1]
			if prev != nil {
				c := cur.Price.Cmp(&prev.Price)
				if side == domain.SideBuy && c > 0 {
					t.Fatalf("bid side: price should be descending, got %s after %s", cur.Price.Dec(), prev.Price.Dec())
				}
				if side == domain.SideSell && c < 0 {
					t.Fatalf("ask side: price should be ascending, got %s after %s", cur.Price.Dec(), prev.Price.Dec())
				}
				if c == 0 && cur.Seq < prev.Seq {
					t.Fatalf("same price %s: seq should be ascending, got %d after %d", cur.Price.Dec(), cur.Seq, prev.Seq)
				}
			}
			prev = cur
			return true
		})
	})
}

// Feature: token-exchange, Property 3: Cancellation idempotence
// Cancelling twice equals cancelling once; the snapshot keeps a zero at the
// same index and its length never changes.

func TestProperty_CancellationIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "numOrders")
		book := NewOrderBook("TEST")
		for i := 0; i < n; i++ {
			price := rapid.Uint64Range(1, 100).Draw(t, fmt.Sprintf("price-%d", i))
			vol := rapid.Uint64Range(1, 100).Draw(t, fmt.Sprintf("vol-%d", i))
			book.Insert(domain.SideSell, u(price), u(vol), alice)
		}
		key := rapid.Uint64Range(1, uint64(n)).Draw(t, "key")
		target, _ := book.Order(domain.SideSell, key)
		targetPrice := target.Price

		pricesBefore, _ := book.Snapshot(domain.SideSell)

		_, first, err := book.Cancel(domain.SideSell, key)
		if err != nil || !first {
			t.Fatalf("first Cancel() = %v, %v", first, err)
		}
		_, volumesOnce := snapshotPair(book)
		_, second, err := book.Cancel(domain.SideSell, key)
		if err != nil || second {
			t.Fatalf("second Cancel() = %v, %v, want no-op", second, err)
		}
		pricesAfter, volumesAfter := book.Snapshot(domain.SideSell)

		if len(pricesAfter) != len(pricesBefore) {
			t.Fatalf("snapshot length changed: %d → %d", len(pricesBefore), len(pricesAfter))
		}
		if fmt.Sprint(uints(volumesAfter)) != fmt.Sprint(volumesOnce) {
			t.Fatalf("second cancel changed the snapshot: %v vs %v", uints(volumesAfter), volumesOnce)
		}

		zeroAtTarget := false
		for i := range pricesAfter {
			if pricesAfter[i].Eq(&targetPrice) && volumesAfter[i].IsZero() {
				zeroAtTarget = true
			}
		}
		if !zeroAtTarget {
			t.Fatalf("no zero-volume entry at price %s", targetPrice.Dec())
		}
	})
}

// snapshotPair returns the ask snapshot with volumes flattened.
func snapshotPair(book *OrderBook) ([]uint256.Int, []uint64) {
	prices, volumes := book.Snapshot(domain.SideSell)
	return prices, uints(volumes)
}
