package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/cache"
	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog ProductCatalog
	sfg     singleflight.Group // Prevents cache stampede
	logger  *zap.Logger

	// generations counts invalidations per user; a fill started under an
	// older generation must not outlive the write that bumped it.
	genMu       sync.Mutex
	generations map[string]uint64
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog ProductCatalog, log *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog:     catalog,
		logger:      log,
		generations: make(map[string]uint64),
	}
}

// GetCart returns the stored cart, or an empty one if the user has none.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	log := logger.WithContext(ctx, s.logger)

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
		}

		gen := s.generation(userID)
		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go s.fillCache(userID, cart, gen)

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// Snapshot prices the cart against the catalog. Lines whose product is
// missing or inactive are left out, as they cannot be bought.
func (s *CartService) Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	snapshot := domain.CartSnapshot{UserID: userID, Items: make([]domain.LineItem, 0, len(cart.Items))}
	if len(cart.Items) == 0 {
		return snapshot, nil
	}

	ids := make([]int64, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	for _, item := range cart.Items {
		p, ok := products[item.ProductID]
		if !ok || !p.Active {
			logger.WithContext(ctx, s.logger).Debug("skipping unavailable product",
				zap.String("user_id", userID), zap.Int64("product_id", item.ProductID))
			continue
		}
		snapshot.Items = append(snapshot.Items, domain.LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			CategoryID:  p.CategoryID,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
		})
	}
	return snapshot, nil
}

// Summary counts the purchasable lines and their subtotal.
func (s *CartService) Summary(ctx context.Context, userID string) (domain.CartSummary, error) {
	snapshot, err := s.Snapshot(ctx, userID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	return snapshot.Summary(), nil
}

// Sync replaces the cart with items. Repeated products are merged, lines
// are capped at domain.MaxItemQuantity, and lines with an unknown or
// inactive product or a non-positive quantity are skipped. It returns the
// number of lines written.
func (s *CartService) Sync(ctx context.Context, userID string, items []domain.CartItem) (int, error) {
	log := logger.WithContext(ctx, s.logger).With(zap.String("user_id", userID))

	var order []int64
	quantities := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			continue
		}
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] = min(quantities[item.ProductID]+item.Quantity, domain.MaxItemQuantity)
	}

	var products map[int64]domain.Product
	if len(order) > 0 {
		var err error
		if products, err = s.catalog.GetProducts(ctx, order); err != nil {
			return 0, err
		}
	}

	defer s.invalidateCache(userID)
	if err := s.repo.DeleteCart(ctx, userID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		log.Error("repo delete cart error", zap.Error(err))
		return 0, err
	}

	added := 0
	for _, id := range order {
		if p, ok := products[id]; !ok || !p.Active {
			log.Debug("sync skipping unavailable product", zap.Int64("product_id", id))
			continue
		}
		if err := s.repo.AddItem(ctx, userID, domain.CartItem{ProductID: id, Quantity: quantities[id]}); err != nil {
			log.Error("repo add item error", zap.Error(err))
			return added, err
		}
		added++
	}
	return added, nil
}

// AddItem adds quantity to the product's line, creating it if needed. The
// resulting line quantity must stay within domain.MaxItemQuantity.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return domain.ErrProductNotFound
	}

	// read past the cache so a stale copy is never written back after the update
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart, err = &domain.Cart{UserID: userID}, nil
	}
	if err != nil {
		return err
	}
	newQuantity := quantity
	for _, item := range cart.Items {
		if item.ProductID == productID {
			newQuantity += item.Quantity
			break
		}
	}
	if err := domain.ValidateQuantity(newQuantity); err != nil {
		return err
	}

	if err := s.repo.AddItem(ctx, userID, domain.CartItem{ProductID: productID, Quantity: newQuantity}); err != nil {
		logger.WithContext(ctx, s.logger).Error("repo add item error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	if err := s.repo.UpdateItemQuantity(ctx, userID, productID, quantity); err != nil {
		logger.WithContext(ctx, s.logger).Error("repo update item quantity error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) error {
	if err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		logger.WithContext(ctx, s.logger).Error("repo remove item error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// ClearCart empties the cart. Clearing a cart that does not exist succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.WithContext(ctx, s.logger).Error("repo delete cart error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// fillCache stores a cart read under generation gen. If a write invalidated
// the user in the meantime the entry is dropped again.
func (s *CartService) fillCache(userID string, cart *domain.Cart, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if s.generation(userID) != gen {
		return
	}
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.logger.Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s.generation(userID) != gen {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *CartService) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

func (s *CartService) invalidateCache(userID string) {
	s.genMu.Lock()
	s.generations[userID]++
	s.genMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}
