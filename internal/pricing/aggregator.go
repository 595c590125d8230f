package pricing

import (
	"context"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
)

// DiscountEvaluator is satisfied by *Evaluator.
type DiscountEvaluator interface {
	Evaluate(ctx context.Context, code *domain.DiscountCode, cart domain.CartSnapshot, userID string, shippingEstimate domain.Money) (domain.DiscountResult, error)
}

// Aggregator turns a priced cart and the currently applied code into a
// CartTotal. It never writes anything.
type Aggregator struct {
	tax       TaxPolicy
	shipping  ShippingPolicy
	evaluator DiscountEvaluator
}

func NewAggregator(tax TaxPolicy, shipping ShippingPolicy, evaluator DiscountEvaluator) *Aggregator {
	return &Aggregator{
		tax:       tax,
		shipping:  shipping,
		evaluator: evaluator,
	}
}

// ComputeTotal prices cart for cart.UserID. code is the resolved applied
// promo and may be nil. The only error it returns is a storage failure
// raised while checking usage caps.
func (a *Aggregator) ComputeTotal(ctx context.Context, cart domain.CartSnapshot, code *domain.DiscountCode) (domain.CartTotal, error) {
	subtotal := cart.Subtotal()
	shipping := a.shipping.Shipping(subtotal)
	tax := a.tax.Tax(subtotal)

	discount := domain.NoDiscount()
	if code != nil {
		var err error
		discount, err = a.evaluator.Evaluate(ctx, code, cart, cart.UserID, shipping)
		if err != nil {
			return domain.CartTotal{}, err
		}
	}

	items := make([]domain.CartTotalItem, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = domain.CartTotalItem{LineItem: item, Subtotal: item.LineTotal()}
	}

	return domain.CartTotal{
		Items:             items,
		TotalItems:        len(items),
		Subtotal:          subtotal,
		DiscountTotal:     discount.Amount,
		AppliedPromoCode:  discount.AppliedCode,
		Discounts:         discount.Lines,
		EstimatedTax:      tax,
		EstimatedShipping: shipping,
		EstimatedTotal:    subtotal.Add(tax).Add(shipping).SubClamped(discount.Amount),
	}, nil
}
