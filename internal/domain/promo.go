package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppliedPromo is the single promo code currently attached to a user's cart.
type AppliedPromo struct {
	UserID    string    `json:"-"`
	Code      string    `json:"code"`
	AppliedAt time.Time `json:"applied_at"`
}

// UsageRecord is one consumption of a discount code by a completed order.
type UsageRecord struct {
	ID             uuid.UUID
	DiscountCodeID int64
	UserID         string
	OrderID        string
	DiscountAmount Money
	UsedAt         time.Time
}
