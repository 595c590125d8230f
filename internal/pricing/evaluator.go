package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"go.uber.org/zap"
)

// UsageCounter is the read side of the usage ledger needed for cap checks.
type UsageCounter interface {
	CountCustomerUses(ctx context.Context, discountCodeID int64, userID string) (int, error)
}

type Option func(*Evaluator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// Evaluator decides whether a single discount code applies to a cart and
// how much it takes off.
type Evaluator struct {
	ledger UsageCounter
	now    func() time.Time
	logger *zap.Logger
}

func NewEvaluator(ledger UsageCounter, log *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		ledger: ledger,
		now:    time.Now,
		logger: log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs the eligibility checks that do not depend on the cart:
// active flag, start and end of the window, global cap and per-customer cap.
// A failed check is returned as *domain.RejectionError; ledger failures wrap
// domain.ErrStorageUnavailable.
func (e *Evaluator) Validate(ctx context.Context, code *domain.DiscountCode, userID string) error {
	now := e.now()

	if !code.IsActive {
		return domain.Reject(domain.ReasonCodeInactive, code.Code)
	}
	if code.StartsAt != nil && now.Before(*code.StartsAt) {
		return domain.Reject(domain.ReasonCodeNotYetStarted, code.Code)
	}
	if code.EndsAt != nil && now.After(*code.EndsAt) {
		return domain.Reject(domain.ReasonCodeExpired, code.Code)
	}
	if code.UsageLimitGlobal != nil && code.UsedCountGlobal >= *code.UsageLimitGlobal {
		return domain.Reject(domain.ReasonGlobalUsageLimit, code.Code)
	}

	if code.UsageLimitPerCustomer != nil && *code.UsageLimitPerCustomer > 0 {
		used, err := e.ledger.CountCustomerUses(ctx, code.ID, userID)
		if err != nil {
			return domain.StorageError("count customer uses", err)
		}
		if used >= *code.UsageLimitPerCustomer {
			return domain.Reject(domain.ReasonCustomerUsageLimit, code.Code)
		}
	}

	return nil
}

// CheckMinimum compares the full cart subtotal, not the scoped one, with the
// code's minimum order amount.
func (e *Evaluator) CheckMinimum(code *domain.DiscountCode, subtotal domain.Money) error {
	if code.MinimumOrderAmount == nil || !subtotal.LessThan(*code.MinimumOrderAmount) {
		return nil
	}
	threshold := *code.MinimumOrderAmount
	return &domain.RejectionError{
		Reason:    domain.ReasonMinimumOrderNotMet,
		Code:      code.Code,
		Threshold: &threshold,
	}
}

// Evaluate computes the discount a code gives on cart. Business rule
// failures never surface as errors: they produce an empty result, except a
// missed minimum order which echoes the code with a zero amount.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	code *domain.DiscountCode,
	cart domain.CartSnapshot,
	userID string,
	shippingEstimate domain.Money,
) (domain.DiscountResult, error) {
	if code == nil {
		return domain.NoDiscount(), nil
	}
	log := logger.WithContext(ctx, e.logger).With(zap.String("code", code.Code), zap.String("user_id", userID))

	if err := e.Validate(ctx, code, userID); err != nil {
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			log.Debug("discount code not eligible", zap.String("reason", string(rej.Reason)))
			return domain.NoDiscount(), nil
		}
		return domain.DiscountResult{}, err
	}

	if err := e.CheckMinimum(code, cart.Subtotal()); err != nil {
		log.Debug("minimum order amount not met", zap.Stringer("subtotal", cart.Subtotal()))
		applied := code.Code
		return domain.DiscountResult{Amount: domain.Zero, AppliedCode: &applied, Lines: []domain.DiscountLine{}}, nil
	}

	amount := e.amount(code, EligibleSubtotal(code.Scope, cart), shippingEstimate)
	if code.MaximumDiscountAmount != nil {
		amount = domain.MinMoney(amount, *code.MaximumDiscountAmount)
	}
	if !amount.IsPositive() {
		return domain.NoDiscount(), nil
	}

	applied := code.Code
	return domain.DiscountResult{
		Amount:      amount,
		AppliedCode: &applied,
		Lines: []domain.DiscountLine{{
			Source:      domain.DiscountSourcePromotion,
			Code:        &applied,
			Description: code.Description(),
			Amount:      amount,
		}},
	}, nil
}

func (e *Evaluator) amount(code *domain.DiscountCode, eligible, shipping domain.Money) domain.Money {
	switch code.Kind {
	case domain.KindPercentage:
		return eligible.MulPercent(code.Value)
	case domain.KindFixedAmount:
		return domain.MinMoney(domain.NewMoneyFromDecimal(code.Value), eligible)
	case domain.KindFreeShipping:
		return shipping
	default:
		e.logger.Warn("unknown discount kind", zap.String("code", code.Code), zap.String("kind", string(code.Kind)))
		return domain.Zero
	}
}

// EligibleSubtotal sums the line totals the scope allows the discount to reduce.
func EligibleSubtotal(scope domain.Scope, cart domain.CartSnapshot) domain.Money {
	if !scope.Restricted() {
		return cart.Subtotal()
	}
	sum := domain.Zero
	for _, item := range cart.Items {
		if scope.Includes(item) {
			sum = sum.Add(item.LineTotal())
		}
	}
	return sum
}
