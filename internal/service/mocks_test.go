package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/cache"
	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
)

type mockRepository struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
	err   error
	// afterGet runs once a GetCart read has been taken, outside the lock.
	afterGet func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: map[string]*domain.Cart{}}
}

func (m *mockRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	cart, hook, err := m.read(userID)
	if hook != nil {
		hook()
	}
	return cart, err
}

func (m *mockRepository) read(userID string) (*domain.Cart, func(), error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.afterGet, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, m.afterGet, repository.ErrCartNotFound
	}
	copied := *cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	return &copied, m.afterGet, nil
}

func (m *mockRepository) AddItem(_ context.Context, userID string, item domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		cart = &domain.Cart{UserID: userID}
		m.carts[userID] = cart
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity = item.Quantity
			return nil
		}
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (m *mockRepository) UpdateItemQuantity(_ context.Context, userID string, productID int64, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if cart, ok := m.carts[userID]; ok {
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return repository.ErrItemNotFound
}

func (m *mockRepository) RemoveItem(_ context.Context, userID string, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if cart, ok := m.carts[userID]; ok {
		for i, item := range cart.Items {
			if item.ProductID == productID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
	}
	return repository.ErrItemNotFound
}

func (m *mockRepository) DeleteCart(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[userID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	deletes int
	sets    int
	// beforeSet runs ahead of every Set, outside the lock.
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.RLock()
	hook := m.beforeSet
	m.m.RUnlock()
	if hook != nil {
		hook()
	}

	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	m.carts[userID] = cart
	return m.err
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) getCart(userID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

func (m *mockCache) setCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.sets
}

func (m *mockCache) deleteCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.deletes
}

type mockCatalog struct {
	m        sync.RWMutex
	products map[int64]domain.Product
	err      error
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	c := &mockCatalog{products: map[int64]domain.Product{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetProducts(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[int64]domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type mockDiscountStore struct {
	m     sync.RWMutex
	codes []*domain.DiscountCode
	uses  map[string]int
	err   error
}

func newMockDiscountStore(codes ...*domain.DiscountCode) *mockDiscountStore {
	return &mockDiscountStore{codes: codes, uses: map[string]int{}}
}

func (m *mockDiscountStore) FindByCode(_ context.Context, code string) (*domain.DiscountCode, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.codes {
		if strings.EqualFold(c.Code, code) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, repository.ErrDiscountCodeNotFound
}

func (m *mockDiscountStore) ListActive(_ context.Context, now time.Time, filter domain.PromotionFilter) ([]*domain.DiscountCode, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.DiscountCode
	for _, c := range m.codes {
		if c.IsActive && c.InWindow(now) && filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDiscountStore) CountCustomerUses(_ context.Context, _ int64, userID string) (int, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.uses[userID], nil
}

func (m *mockDiscountStore) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

type mockPromoStore struct {
	m      sync.RWMutex
	promos map[string]domain.AppliedPromo
	err    error
	sets   int
}

func newMockPromoStore() *mockPromoStore {
	return &mockPromoStore{promos: map[string]domain.AppliedPromo{}}
}

func (m *mockPromoStore) Get(_ context.Context, userID string) (*domain.AppliedPromo, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.promos[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockPromoStore) Set(_ context.Context, promo domain.AppliedPromo) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets++
	m.promos[promo.UserID] = promo
	return nil
}

func (m *mockPromoStore) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.promos, userID)
	return nil
}

func (m *mockPromoStore) stored(userID string) (domain.AppliedPromo, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	p, ok := m.promos[userID]
	return p, ok
}
