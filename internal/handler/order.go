package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// decodeCart reads {"cart":[{"id","price","quantity"},...]}. Unknown fields
// are ignored. A missing or null cart decodes as empty.
func decodeCart(d *jx.Decoder) ([]order.CartItem, error) {
	var cart []order.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "cart" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeCartItem(d, len(cart))
			if err != nil {
				return err
			}
			cart = append(cart, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if err := ensureEOF(d); err != nil {
		return nil, err
	}
	return cart, nil
}

func decodeCartItem(d *jx.Decoder, index int) (order.CartItem, error) {
	var item order.CartItem
	var hasID, hasPrice, hasQty bool
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			item.ProductID, err = d.Int64()
			hasID = true
		case "price":
			item.UnitPrice, err = product.DecodePrice(d)
			hasPrice = true
		case "quantity":
			item.Quantity, err = d.Int()
			hasQty = true
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "cart item %d: %s", index, key)
		}
		return nil
	})
	if err != nil {
		return item, err
	}

	switch {
	case !hasID:
		return item, &order.InvalidItemError{Index: index, Reason: "missing id"}
	case !hasPrice:
		return item, &order.InvalidItemError{Index: index, ProductID: item.ProductID, Reason: "missing price"}
	case !hasQty:
		return item, &order.InvalidItemError{Index: index, ProductID: item.ProductID, Reason: "missing quantity"}
	}
	return item, nil
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order, withProducts bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					h.encodeOrderItem(e, it, withProducts)
				}
			})
		})
	})
}

func (h *Handler) encodeOrderItem(e *jx.Encoder, it order.OrderItem, withProduct bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(it.OrderID) })
		e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
		if withProduct && it.Product != nil {
			p := it.Product
			e.Field("product", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
					e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image)) })
				})
			})
		}
	})
}

// PlaceOrder creates an order for the logged-in user from the submitted
// cart.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "You must be logged in to do that.")
		return
	}

	d, err := readBody(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	cart, err := decodeCart(d)
	if err != nil {
		var iiErr *order.InvalidItemError
		if errors.As(err, &iiErr) {
			writeMessage(w, http.StatusBadRequest, iiErr.Error())
			return
		}
		writeMessage(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	o, err := h.orders.PlaceOrder(ctx, userID, cart)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.Total.StringFixed(2)),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o, false) })
}

// ListOrders returns the logged-in user's orders newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "You must be logged in to do that.")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		zctx.From(ctx).Error("List orders", zap.Error(err))
		writeFailure(w, "Error fetching orders.", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				h.encodeOrder(e, &orders[i], true)
			}
		})
	})
}

// writeOrderError maps order placement errors to status codes.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iiErr *order.InvalidItemError
		pnErr *order.ProductNotFoundError
		pmErr *order.PriceMismatchError
		peErr *order.PersistenceError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeMessage(w, http.StatusBadRequest, "Cart is empty.")
	case errors.Is(err, order.ErrTotalTooLarge):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iiErr):
		writeMessage(w, http.StatusBadRequest, iiErr.Error())
	case errors.As(err, &pnErr):
		writeMessage(w, http.StatusUnprocessableEntity, pnErr.Error())
	case errors.As(err, &pmErr):
		writeMessage(w, http.StatusUnprocessableEntity, pmErr.Error())
	case errors.As(err, &peErr):
		zctx.From(r.Context()).Error("Place order", zap.Error(err))
		writeFailure(w, "Error creating order.", peErr.Err)
	default:
		zctx.From(r.Context()).Error("Place order", zap.Error(err))
		writeFailure(w, "Error creating order.", err)
	}
}
