package pricing

import (
	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/shopspring/decimal"
)

type TaxPolicy interface {
	Tax(subtotal domain.Money) domain.Money
}

type ShippingPolicy interface {
	Shipping(subtotal domain.Money) domain.Money
}

var (
	DefaultVATRate               = decimal.NewFromInt(15)
	DefaultFreeShippingThreshold = domain.NewMoneyFromInt(500)
	DefaultShippingFee           = domain.NewMoneyFromInt(75)
)

// FlatRateVAT taxes the merchandise subtotal only. Shipping and discounts do
// not change the tax base.
type FlatRateVAT struct {
	RatePercent decimal.Decimal
}

func NewFlatRateVAT(ratePercent decimal.Decimal) FlatRateVAT {
	return FlatRateVAT{RatePercent: ratePercent}
}

func (p FlatRateVAT) Tax(subtotal domain.Money) domain.Money {
	return subtotal.MulPercent(p.RatePercent)
}

// ThresholdShipping is free at or above FreeThreshold, otherwise FlatFee.
type ThresholdShipping struct {
	FreeThreshold domain.Money
	FlatFee       domain.Money
}

func NewThresholdShipping(freeThreshold, flatFee domain.Money) ThresholdShipping {
	return ThresholdShipping{FreeThreshold: freeThreshold, FlatFee: flatFee}
}

func (p ThresholdShipping) Shipping(subtotal domain.Money) domain.Money {
	if !subtotal.LessThan(p.FreeThreshold) {
		return domain.Zero
	}
	return p.FlatFee
}
