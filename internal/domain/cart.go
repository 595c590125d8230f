package domain

import "time"

const (
	MinItemQuantity = 1
	MaxItemQuantity = 99
)

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID int64     `bson:"product_id" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// ValidateQuantity enforces the per-line bounds on insert and update.
func ValidateQuantity(quantity int) error {
	if quantity < MinItemQuantity || quantity > MaxItemQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

type Product struct {
	ID         int64
	Name       string
	CategoryID int64
	Price      Money
	Active     bool
}

// LineItem is a cart item joined with its current catalog price.
type LineItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	CategoryID  int64  `json:"category_id"`
	UnitPrice   Money  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

func (li LineItem) LineTotal() Money {
	return li.UnitPrice.MulInt(li.Quantity)
}

// CartSnapshot is the priced view of a cart at read time. Items keep the
// cart's insertion order.
type CartSnapshot struct {
	UserID string
	Items  []LineItem
}

// CartSummary is the light view behind the cart badge: priced lines and
// their pre-discount subtotal.
type CartSummary struct {
	ItemCount int   `json:"item_count"`
	Subtotal  Money `json:"subtotal"`
}

func (c CartSnapshot) Summary() CartSummary {
	return CartSummary{ItemCount: len(c.Items), Subtotal: c.Subtotal()}
}

func (c CartSnapshot) Subtotal() Money {
	sum := Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}
