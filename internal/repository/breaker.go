package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/pkg/circuitbreaker"
	"go.uber.org/zap"
)

// BreakerRepository guards a DiscountRepository with a circuit breaker.
// While the breaker is open every call fails fast with
// domain.ErrStorageUnavailable.
type BreakerRepository struct {
	next    DiscountRepository
	breaker *circuitbreaker.Breaker
}

func NewBreakerRepository(next DiscountRepository, settings circuitbreaker.Settings, log *zap.Logger) *BreakerRepository {
	settings.IsSuccessful = isBreakerSuccess
	return &BreakerRepository{
		next:    next,
		breaker: circuitbreaker.New(settings, log),
	}
}

// isBreakerSuccess keeps business outcomes and caller cancellations from
// counting as database failures.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrDiscountCodeNotFound) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, domain.ErrUsageAlreadyRecorded) ||
		errors.Is(err, context.Canceled)
}

func guard[T any](b *BreakerRepository, op string, fn func() (T, error)) (T, error) {
	v, err := circuitbreaker.Do(b.breaker, fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return v, domain.StorageError(op, err)
	}
	return v, err
}

func (b *BreakerRepository) FindByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	return guard(b, "find discount code", func() (*domain.DiscountCode, error) {
		return b.next.FindByCode(ctx, code)
	})
}

func (b *BreakerRepository) ListActive(ctx context.Context, now time.Time, filter domain.PromotionFilter) ([]*domain.DiscountCode, error) {
	return guard(b, "list active discount codes", func() ([]*domain.DiscountCode, error) {
		return b.next.ListActive(ctx, now, filter)
	})
}

func (b *BreakerRepository) CountGlobalUses(ctx context.Context, discountCodeID int64) (int, error) {
	return guard(b, "count global uses", func() (int, error) {
		return b.next.CountGlobalUses(ctx, discountCodeID)
	})
}

func (b *BreakerRepository) CountCustomerUses(ctx context.Context, discountCodeID int64, userID string) (int, error) {
	return guard(b, "count customer uses", func() (int, error) {
		return b.next.CountCustomerUses(ctx, discountCodeID, userID)
	})
}

func (b *BreakerRepository) Record(ctx context.Context, rec domain.UsageRecord) error {
	_, err := guard(b, "record usage", func() (struct{}, error) {
		return struct{}{}, b.next.Record(ctx, rec)
	})
	return err
}
