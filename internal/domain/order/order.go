package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a durable record of a completed checkout. It is never mutated
// after creation.
type Order struct {
	ID        int64
	UserID    int64
	Total     decimal.Decimal
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderItem is a single line of an order. Price is the unit price captured
// at purchase time and is independent of the product's current price.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal

	// Product is filled by read queries only.
	Product *ProductSummary
}

// ProductSummary is the display data joined onto order items when listing.
type ProductSummary struct {
	ID    int64
	Name  string
	Image string
}

// CartItem is one entry of the client-held cart submitted at checkout.
type CartItem struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and all of its items in one transaction and
	// fills in the generated identifiers and creation time. Either every row
	// is written or none is.
	Create(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders newest first with items and
	// product summaries resolved.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
}
