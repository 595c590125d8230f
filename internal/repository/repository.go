package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
)

var (
	ErrCartNotFound         = errors.New("cart not found")
	ErrItemNotFound         = errors.New("item not found in cart")
	ErrDiscountCodeNotFound = errors.New("discount code not found")
	ErrDuplicateCode        = errors.New("discount code already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID int64) error
	DeleteCart(ctx context.Context, userID string) error
}

// DiscountRepository reads discount codes and owns the usage ledger.
type DiscountRepository interface {
	FindByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	ListActive(ctx context.Context, now time.Time, filter domain.PromotionFilter) ([]*domain.DiscountCode, error)
	CountGlobalUses(ctx context.Context, discountCodeID int64) (int, error)
	CountCustomerUses(ctx context.Context, discountCodeID int64, userID string) (int, error)
	Record(ctx context.Context, rec domain.UsageRecord) error
}
