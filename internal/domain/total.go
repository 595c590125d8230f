package domain

const DiscountSourcePromotion = "promotion"

type DiscountLine struct {
	Source      string  `json:"source"`
	Code        *string `json:"code"`
	Description string  `json:"description"`
	Amount      Money   `json:"amount"`
}

// DiscountResult is the outcome of evaluating one code against a cart.
// AppliedCode is nil when the code contributed nothing, except for the
// minimum-order case where the code is echoed with a zero amount.
type DiscountResult struct {
	Amount      Money
	AppliedCode *string
	Lines       []DiscountLine
}

func NoDiscount() DiscountResult {
	return DiscountResult{Amount: Zero, Lines: []DiscountLine{}}
}

type CartTotalItem struct {
	LineItem
	Subtotal Money `json:"subtotal"`
}

type CartTotal struct {
	Items             []CartTotalItem `json:"items"`
	TotalItems        int             `json:"total_items"`
	Subtotal          Money           `json:"subtotal"`
	DiscountTotal     Money           `json:"discount_total"`
	AppliedPromoCode  *string         `json:"applied_promo_code"`
	Discounts         []DiscountLine  `json:"discounts"`
	EstimatedTax      Money           `json:"estimated_tax"`
	EstimatedShipping Money           `json:"estimated_shipping"`
	EstimatedTotal    Money           `json:"estimated_total"`
}
