package order

import (
	"context"
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// MaxQuantity is the largest quantity an order_items row holds (INTEGER).
const MaxQuantity = math.MaxInt32

// MaxAmount is the largest unit price or order total NUMERIC(10,2) holds.
var MaxAmount = decimal.RequireFromString("99999999.99")

// PricingPolicy selects where unit prices come from at checkout.
type PricingPolicy string

const (
	// PricingClient trusts the unit prices submitted with the cart.
	PricingClient PricingPolicy = "client"
	// PricingCatalog requires every submitted unit price to equal the
	// current catalog price.
	PricingCatalog PricingPolicy = "catalog"
)

// ParsePricingPolicy converts a configuration value into a PricingPolicy.
// An empty string selects PricingClient.
func ParsePricingPolicy(s string) (PricingPolicy, error) {
	switch p := PricingPolicy(s); p {
	case "", PricingClient:
		return PricingClient, nil
	case PricingCatalog:
		return p, nil
	default:
		return "", errors.Errorf("unknown pricing policy %q", s)
	}
}

// Options holds optional Service settings. Zero values select client
// pricing and no-op telemetry.
type Options struct {
	Pricing        PricingPolicy
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service places and lists orders.
type Service struct {
	orders   Repository
	products product.Repository
	pricing  PricingPolicy

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service. products is only consulted under
// PricingCatalog.
func NewService(orders Repository, products product.Repository, opts Options) (*Service, error) {
	if opts.Pricing == "" {
		opts.Pricing = PricingClient
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	placed, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders committed to storage"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	failed, err := meter.Int64Counter("storefront.orders.failed",
		metric.WithDescription("Order placements rejected or rolled back"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		orders:   orders,
		products: products,
		pricing:  opts.Pricing,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		placed:   placed,
		failed:   failed,
	}, nil
}

// PlaceOrder validates the cart, computes the total from the cart's unit
// prices and persists one order with one item per cart entry in a single
// transaction. The caller has already authenticated userID.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, cart []CartItem) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Place", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("cart.size", len(cart)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(rerr))))
		}
		span.End()
	}()

	if err := ValidateCart(cart); err != nil {
		return nil, err
	}
	if s.pricing == PricingCatalog {
		if err := s.checkCatalogPrices(ctx, cart); err != nil {
			return nil, err
		}
	}

	o := &Order{
		UserID: userID,
		Total:  Total(cart),
		Items:  make([]OrderItem, len(cart)),
	}
	for i, c := range cart {
		o.Items[i] = OrderItem{
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			Price:     c.UnitPrice,
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, &PersistenceError{Op: OpCreate, Err: err}
	}

	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	return o, nil
}

// ListOrders returns the user's orders newest first. A user without orders
// gets an empty, non-nil slice.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.List", trace.WithAttributes(
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &PersistenceError{Op: OpList, Err: err}
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// ValidateCart checks the cart shape and storage limits without touching
// storage.
func ValidateCart(cart []CartItem) error {
	if len(cart) == 0 {
		return ErrEmptyCart
	}
	for i, c := range cart {
		reason := ""
		switch {
		case c.ProductID <= 0:
			reason = "product id must be positive"
		case c.Quantity < 1:
			reason = "quantity must be at least 1"
		case c.Quantity > MaxQuantity:
			reason = "quantity is too large"
		case c.UnitPrice.IsNegative():
			reason = "price must not be negative"
		case c.UnitPrice.GreaterThan(MaxAmount):
			reason = "price must not exceed " + MaxAmount.StringFixed(2)
		case !c.UnitPrice.Equal(c.UnitPrice.Truncate(2)):
			reason = "price must have at most 2 decimal places"
		}
		if reason != "" {
			return &InvalidItemError{Index: i, ProductID: c.ProductID, Reason: reason}
		}
	}
	if Total(cart).GreaterThan(MaxAmount) {
		return ErrTotalTooLarge
	}
	return nil
}

// Total returns the exact sum of unit price times quantity over the cart.
func Total(cart []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cart {
		total = total.Add(c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity))))
	}
	return total
}

// checkCatalogPrices rejects carts whose products are unknown or whose unit
// prices drifted from the catalog.
func (s *Service) checkCatalogPrices(ctx context.Context, cart []CartItem) error {
	ids := make([]int64, 0, len(cart))
	seen := make(map[int64]struct{}, len(cart))
	for _, c := range cart {
		if _, ok := seen[c.ProductID]; ok {
			continue
		}
		seen[c.ProductID] = struct{}{}
		ids = append(ids, c.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return &PersistenceError{Op: OpProductLookup, Err: err}
	}

	current := make(map[int64]decimal.Decimal, len(fetched))
	for _, p := range fetched {
		current[p.ID] = p.Price
	}

	for _, c := range cart {
		price, ok := current[c.ProductID]
		if !ok {
			return &ProductNotFoundError{ProductID: c.ProductID}
		}
		if !price.Equal(c.UnitPrice) {
			return &PriceMismatchError{
				ProductID: c.ProductID,
				Submitted: c.UnitPrice,
				Current:   price,
			}
		}
	}
	return nil
}

func failureReason(err error) string {
	var pErr *PersistenceError
	switch {
	case errors.As(err, &pErr):
		return "persistence"
	case IsValidation(err):
		return "validation"
	default:
		return "other"
	}
}
