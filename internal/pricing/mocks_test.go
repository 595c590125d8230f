package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/shopspring/decimal"
)

type mockUsageCounter struct {
	m      sync.RWMutex
	counts map[string]int
	err    error
	calls  int
}

func newMockUsageCounter() *mockUsageCounter {
	return &mockUsageCounter{counts: map[string]int{}}
}

func (m *mockUsageCounter) CountCustomerUses(_ context.Context, _ int64, userID string) (int, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.counts[userID], nil
}

func (m *mockUsageCounter) set(userID string, n int) {
	m.m.Lock()
	defer m.m.Unlock()
	m.counts[userID] = n
}

func (m *mockUsageCounter) callCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.calls
}

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func intPtr(v int) *int { return &v }

func moneyPtr(s string) *domain.Money {
	m := domain.MustParseMoney(s)
	return &m
}

func timePtr(t time.Time) *time.Time { return &t }

// cart400 is a 400.00 cart: two products in two categories.
func cart400() domain.CartSnapshot {
	return domain.CartSnapshot{
		UserID: "user-1",
		Items: []domain.LineItem{
			{ProductID: 1, ProductName: "Vitamin C", CategoryID: 10, UnitPrice: domain.MustParseMoney("100.00"), Quantity: 3},
			{ProductID: 2, ProductName: "Magnesium", CategoryID: 20, UnitPrice: domain.MustParseMoney("50.00"), Quantity: 2},
		},
	}
}

func percentCode(code string, pct int64) *domain.DiscountCode {
	return &domain.DiscountCode{
		ID:       1,
		Code:     code,
		Name:     "Ten off",
		Kind:     domain.KindPercentage,
		Value:    decimal.NewFromInt(pct),
		Scope:    domain.Scope{Kind: domain.ScopeAll},
		IsActive: true,
	}
}
