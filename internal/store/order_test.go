package store

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

func newTestOrder(key uint64, owner common.Address, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		Key:       key,
		Side:      domain.SideBuy,
		Symbol:    "FIXED",
		Price:     *uint256.NewInt(100),
		Volume:    *uint256.NewInt(10),
		Remaining: *uint256.NewInt(10),
		Owner:     owner,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestOrderStore_ListByAccount_ReverseChronological(t *testing.T) {
	s := NewOrderStore()
	for k := uint64(1); k <= 5; k++ {
		s.Create(newTestOrder(k, alice, domain.OrderStatusOpen))
	}
	s.Create(newTestOrder(6, bob, domain.OrderStatusOpen))

	orders, total := s.ListByAccount(alice, nil, 1, 10)
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	for i, o := range orders {
		want := uint64(5 - i)
		if o.Key != want {
			t.Errorf("orders[%d].Key = %d, want %d", i, o.Key, want)
		}
	}
}

func TestOrderStore_ListByAccount_StatusFilter(t *testing.T) {
	s := NewOrderStore()
	s.Create(newTestOrder(1, alice, domain.OrderStatusOpen))
	s.Create(newTestOrder(2, alice, domain.OrderStatusCancelled))
	s.Create(newTestOrder(3, alice, domain.OrderStatusOpen))

	status := domain.OrderStatusOpen
	orders, total := s.ListByAccount(alice, &status, 1, 10)
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
	for _, o := range orders {
		if o.Status != domain.OrderStatusOpen {
			t.Errorf("order %d has status %s, want open", o.Key, o.Status)
		}
	}
}

func TestOrderStore_ListByAccount_Pagination(t *testing.T) {
	s := NewOrderStore()
	for k := uint64(1); k <= 5; k++ {
		s.Create(newTestOrder(k, alice, domain.OrderStatusOpen))
	}

	tests := []struct {
		page, limit int
		wantLen     int
		wantFirst   uint64
	}{
		{1, 2, 2, 5},
		{2, 2, 2, 3},
		{3, 2, 1, 1},
		{4, 2, 0, 0},
	}
	for _, tt := range tests {
		orders, total := s.ListByAccount(alice, nil, tt.page, tt.limit)
		if total != 5 {
			t.Errorf("page %d: total = %d, want 5", tt.page, total)
		}
		if len(orders) != tt.wantLen {
			t.Errorf("page %d: len = %d, want %d", tt.page, len(orders), tt.wantLen)
			continue
		}
		if tt.wantLen > 0 && orders[0].Key != tt.wantFirst {
			t.Errorf("page %d: first key = %d, want %d", tt.page, orders[0].Key, tt.wantFirst)
		}
	}
}

func TestOrderStore_ConcurrentCreate(t *testing.T) {
	s := NewOrderStore()
	var wg sync.WaitGroup
	for k := uint64(1); k <= 100; k++ {
		wg.Add(1)
		go func(k uint64) {
			defer wg.Done()
			s.Create(newTestOrder(k, alice, domain.OrderStatusOpen))
		}(k)
	}
	wg.Wait()

	if _, total := s.ListByAccount(alice, nil, 1, 1); total != 100 {
		t.Errorf("expected 100 orders, got %d", total)
	}
}

func TestFillStore_AppendAndBySymbol(t *testing.T) {
	s := NewFillStore()
	s.Append(
		domain.Fill{Symbol: "FIXED", MakerKey: 1, Quantity: *uint256.NewInt(5)},
		domain.Fill{Symbol: "OTHER", MakerKey: 1, Quantity: *uint256.NewInt(1)},
		domain.Fill{Symbol: "FIXED", MakerKey: 2, Quantity: *uint256.NewInt(7)},
	)

	fills := s.BySymbol("FIXED", 0)
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if fills[0].MakerKey != 1 || fills[1].MakerKey != 2 {
		t.Errorf("fills out of order: %d, %d", fills[0].MakerKey, fills[1].MakerKey)
	}

	recent := s.BySymbol("FIXED", 1)
	if len(recent) != 1 || recent[0].MakerKey != 2 {
		t.Errorf("BySymbol(limit=1) = %+v, want the latest fill", recent)
	}

	last, ok := s.Last("FIXED")
	if !ok || last.MakerKey != 2 {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
	if _, ok := s.Last("NONE"); ok {
		t.Error("Last(NONE) found a fill")
	}
	if got := s.BySymbol("NONE", 0); got == nil || len(got) != 0 {
		t.Errorf("BySymbol(NONE) = %v, want empty non-nil slice", got)
	}
}
