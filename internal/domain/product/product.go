package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item available for purchase. Price is the
// current catalog price; orders keep their own copy captured at checkout.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Image string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	// GetByIDs returns the products matching ids. Unknown ids are skipped,
	// so callers compare the result against what they asked for.
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
