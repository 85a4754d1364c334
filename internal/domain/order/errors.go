package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when an order is placed with no cart entries.
var ErrEmptyCart = errors.New("cart is empty")

// ErrTotalTooLarge is returned when the cart total exceeds MaxAmount.
var ErrTotalTooLarge = errors.New("order total exceeds " + MaxAmount.StringFixed(2))

// InvalidItemError indicates a malformed cart entry.
type InvalidItemError struct {
	Index     int
	ProductID int64
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("cart item %d (product %d): %s", e.Index, e.ProductID, e.Reason)
}

// ProductNotFoundError indicates a cart entry references a product missing
// from the catalog. Only raised under the catalog pricing policy.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// PriceMismatchError indicates the submitted unit price differs from the
// current catalog price. Only raised under the catalog pricing policy.
type PriceMismatchError struct {
	ProductID int64
	Submitted decimal.Decimal
	Current   decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price %s for product %d does not match current price %s",
		e.Submitted.StringFixed(2), e.ProductID, e.Current.StringFixed(2))
}

// Storage operations reported in PersistenceError.Op.
const (
	OpCreate        = "create order"
	OpList          = "list orders"
	OpProductLookup = "lookup products"
)

// PersistenceError wraps a storage failure. Nothing was written when it is
// returned from PlaceOrder.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Op == OpCreate {
		return "order creation failed: " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err was raised before any storage write
// because of the submitted cart.
func IsValidation(err error) bool {
	if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrTotalTooLarge) {
		return true
	}
	var (
		invalid  *InvalidItemError
		notFound *ProductNotFoundError
		mismatch *PriceMismatchError
	)
	return errors.As(err, &invalid) || errors.As(err, &notFound) || errors.As(err, &mismatch)
}
