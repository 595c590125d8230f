package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"go.uber.org/zap"
)

type DiscountStore interface {
	FindByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	ListActive(ctx context.Context, now time.Time, filter domain.PromotionFilter) ([]*domain.DiscountCode, error)
}

// AppliedPromoStore holds at most one applied code per user. Get returns
// nil, nil when nothing is applied.
type AppliedPromoStore interface {
	Get(ctx context.Context, userID string) (*domain.AppliedPromo, error)
	Set(ctx context.Context, promo domain.AppliedPromo) error
	Delete(ctx context.Context, userID string) error
}

type CartSnapshotter interface {
	Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error)
}

type CodeValidator interface {
	Validate(ctx context.Context, code *domain.DiscountCode, userID string) error
	CheckMinimum(code *domain.DiscountCode, subtotal domain.Money) error
}

type TotalCalculator interface {
	ComputeTotal(ctx context.Context, cart domain.CartSnapshot, code *domain.DiscountCode) (domain.CartTotal, error)
}

type PromoService struct {
	carts      CartSnapshotter
	discounts  DiscountStore
	promos     AppliedPromoStore
	validator  CodeValidator
	calculator TotalCalculator
	now        func() time.Time
	logger     *zap.Logger
}

func NewPromoService(
	carts CartSnapshotter,
	discounts DiscountStore,
	promos AppliedPromoStore,
	validator CodeValidator,
	calculator TotalCalculator,
	log *zap.Logger,
) *PromoService {
	return &PromoService{
		carts:      carts,
		discounts:  discounts,
		promos:     promos,
		validator:  validator,
		calculator: calculator,
		now:        time.Now,
		logger:     log,
	}
}

// Apply validates code for userID and makes it the cart's only applied
// promo, replacing any previous one. Rejections are *domain.RejectionError.
func (s *PromoService) Apply(ctx context.Context, userID, rawCode string) (domain.CartTotal, error) {
	log := logger.WithContext(ctx, s.logger).With(zap.String("user_id", userID))

	code := strings.TrimSpace(rawCode)
	if code == "" {
		return domain.CartTotal{}, domain.Reject(domain.ReasonCodeRequired, "")
	}

	discount, err := s.discounts.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrDiscountCodeNotFound) {
		log.Info("promo rejected", zap.String("code", code), zap.String("reason", string(domain.ReasonUnknownCode)))
		return domain.CartTotal{}, domain.Reject(domain.ReasonUnknownCode, code)
	}
	if err != nil {
		return domain.CartTotal{}, domain.StorageError("find discount code", err)
	}

	if err := s.validator.Validate(ctx, discount, userID); err != nil {
		logRejection(log, discount.Code, err)
		return domain.CartTotal{}, err
	}

	cart, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return domain.CartTotal{}, err
	}
	if err := s.validator.CheckMinimum(discount, cart.Subtotal()); err != nil {
		logRejection(log, discount.Code, err)
		return domain.CartTotal{}, err
	}

	promo := domain.AppliedPromo{UserID: userID, Code: discount.Code, AppliedAt: s.now().UTC()}
	if err := s.promos.Set(ctx, promo); err != nil {
		return domain.CartTotal{}, err
	}
	log.Info("promo applied", zap.String("code", discount.Code))

	return s.calculator.ComputeTotal(ctx, cart, discount)
}

// Remove detaches any applied promo. Removing when nothing is applied is a no-op.
func (s *PromoService) Remove(ctx context.Context, userID string) (domain.CartTotal, error) {
	if err := s.promos.Delete(ctx, userID); err != nil {
		return domain.CartTotal{}, err
	}
	return s.Total(ctx, userID)
}

// Total prices the user's cart with whatever promo is currently applied.
func (s *PromoService) Total(ctx context.Context, userID string) (domain.CartTotal, error) {
	cart, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return domain.CartTotal{}, err
	}

	discount, err := s.appliedDiscount(ctx, userID)
	if err != nil {
		return domain.CartTotal{}, err
	}

	return s.calculator.ComputeTotal(ctx, cart, discount)
}

// appliedDiscount resolves the stored code. A code that no longer exists
// counts as no promo.
func (s *PromoService) appliedDiscount(ctx context.Context, userID string) (*domain.DiscountCode, error) {
	promo, err := s.promos.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, nil
	}

	discount, err := s.discounts.FindByCode(ctx, promo.Code)
	if errors.Is(err, repository.ErrDiscountCodeNotFound) {
		logger.WithContext(ctx, s.logger).Info("applied promo no longer exists",
			zap.String("user_id", userID), zap.String("code", promo.Code))
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("find applied discount code", err)
	}
	return discount, nil
}

// ActivePromotions lists public promotions that are active right now.
func (s *PromoService) ActivePromotions(ctx context.Context, filter domain.PromotionFilter) ([]domain.PromotionSummary, error) {
	codes, err := s.discounts.ListActive(ctx, s.now().UTC(), filter)
	if err != nil {
		return nil, domain.StorageError("list active promotions", err)
	}

	summaries := make([]domain.PromotionSummary, 0, len(codes))
	for _, c := range codes {
		summaries = append(summaries, domain.NewPromotionSummary(c))
	}
	return summaries, nil
}

func logRejection(log *zap.Logger, code string, err error) {
	var rej *domain.RejectionError
	if errors.As(err, &rej) {
		log.Info("promo rejected", zap.String("code", code), zap.String("reason", string(rej.Reason)))
	}
}
