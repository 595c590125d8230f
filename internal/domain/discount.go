package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	KindPercentage   DiscountKind = "percentage"
	KindFixedAmount  DiscountKind = "fixed_amount"
	KindFreeShipping DiscountKind = "free_shipping"
)

func (k DiscountKind) Valid() bool {
	switch k {
	case KindPercentage, KindFixedAmount, KindFreeShipping:
		return true
	}
	return false
}

type ScopeKind string

const (
	ScopeAll                ScopeKind = "all"
	ScopeSpecificProducts   ScopeKind = "specific_products"
	ScopeSpecificCategories ScopeKind = "specific_categories"
)

type Scope struct {
	Kind        ScopeKind `json:"applies_to"`
	ProductIDs  []int64   `json:"applicable_product_ids,omitempty"`
	CategoryIDs []int64   `json:"applicable_category_ids,omitempty"`
}

// Restricted reports whether the scope narrows the eligible subtotal. A
// product or category scope with an empty id set applies to the whole cart.
func (s Scope) Restricted() bool {
	switch s.Kind {
	case ScopeSpecificProducts:
		return len(s.ProductIDs) > 0
	case ScopeSpecificCategories:
		return len(s.CategoryIDs) > 0
	}
	return false
}

func (s Scope) Includes(item LineItem) bool {
	if !s.Restricted() {
		return true
	}
	if s.Kind == ScopeSpecificProducts {
		return slices.Contains(s.ProductIDs, item.ProductID)
	}
	return slices.Contains(s.CategoryIDs, item.CategoryID)
}

type DiscountCode struct {
	ID                    int64
	Code                  string
	Name                  string
	Kind                  DiscountKind
	Value                 decimal.Decimal
	MinimumOrderAmount    *Money
	MaximumDiscountAmount *Money
	UsageLimitGlobal      *int
	UsageLimitPerCustomer *int
	UsedCountGlobal       int
	Scope                 Scope
	StartsAt              *time.Time
	EndsAt                *time.Time
	IsActive              bool
}

func (d *DiscountCode) Description() string {
	if d.Name == "" {
		return "Promotion"
	}
	return d.Name
}

// InWindow reports whether now falls inside [StartsAt, EndsAt]; unset bounds are open.
func (d *DiscountCode) InWindow(now time.Time) bool {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

type PromotionScope string

const (
	PromotionScopeAny     PromotionScope = ""
	PromotionScopeCart    PromotionScope = "cart"
	PromotionScopeProduct PromotionScope = "product"
)

// PromotionFilter narrows the active promotion listing. ProductID and
// CategoryID only apply when Scope is PromotionScopeProduct; ProductID wins
// when both are set.
type PromotionFilter struct {
	Scope      PromotionScope
	ProductID  *int64
	CategoryID *int64
}

// Matches applies the filter in memory, mirroring the SQL used by the store.
func (f PromotionFilter) Matches(d *DiscountCode) bool {
	if f.Scope != PromotionScopeProduct {
		return true
	}
	// a code with an empty id list applies cart-wide, as in Scope.Includes
	switch {
	case f.ProductID != nil:
		return !d.Scope.Restricted() ||
			(d.Scope.Kind == ScopeSpecificProducts && slices.Contains(d.Scope.ProductIDs, *f.ProductID))
	case f.CategoryID != nil:
		return !d.Scope.Restricted() ||
			(d.Scope.Kind == ScopeSpecificCategories && slices.Contains(d.Scope.CategoryIDs, *f.CategoryID))
	}
	return true
}

// PromotionSummary is the public view of an active discount code.
type PromotionSummary struct {
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	Kind                  DiscountKind    `json:"type"`
	Value                 decimal.Decimal `json:"value"`
	MinimumOrderAmount    *Money          `json:"minimum_order_amount"`
	MaximumDiscountAmount *Money          `json:"maximum_discount_amount"`
	Scope                 Scope           `json:"scope"`
	StartsAt              *time.Time      `json:"starts_at"`
	EndsAt                *time.Time      `json:"ends_at"`
}

func NewPromotionSummary(d *DiscountCode) PromotionSummary {
	return PromotionSummary{
		Code:                  d.Code,
		Name:                  d.Name,
		Kind:                  d.Kind,
		Value:                 d.Value,
		MinimumOrderAmount:    d.MinimumOrderAmount,
		MaximumDiscountAmount: d.MaximumDiscountAmount,
		Scope:                 d.Scope,
		StartsAt:              d.StartsAt,
		EndsAt:                d.EndsAt,
	}
}
