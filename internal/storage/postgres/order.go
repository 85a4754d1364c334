package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const insertOrderSQL = `INSERT INTO orders (user_id, total) VALUES ($1, $2) RETURNING id, created_at`

const insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4) RETURNING id`

// Create persists the order and its items in one transaction. Generated
// identifiers are copied into o only after the commit succeeds.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("creating order: no items")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// No-op after Commit. Runs on cancellation too, hence the detached ctx.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var (
		orderID   int64
		createdAt time.Time
	)
	if err := tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.Total).Scan(&orderID, &createdAt); err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("inserting order: user %d does not exist: %w", o.UserID, err)
		}
		return fmt.Errorf("inserting order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(insertOrderItemSQL, orderID, it.ProductID, it.Quantity, it.Price)
	}

	itemIDs := make([]int64, len(o.Items))
	br := tx.SendBatch(ctx, batch)
	for i, it := range o.Items {
		if err := br.QueryRow().Scan(&itemIDs[i]); err != nil {
			_ = br.Close()
			if pgErrorCode(err) == codeForeignKeyViolation {
				return fmt.Errorf("inserting order item %d: product %d does not exist: %w", i, it.ProductID, err)
			}
			return fmt.Errorf("inserting order item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing item batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}

	o.ID = orderID
	o.CreatedAt = createdAt
	for i := range o.Items {
		o.Items[i].ID = itemIDs[i]
		o.Items[i].OrderID = orderID
	}
	return nil
}

const listOrdersByUserSQL = `SELECT o.id, o.user_id, o.total, o.created_at,
       oi.id, oi.product_id, oi.quantity, oi.price,
       p.name, p.image
FROM orders o
JOIN order_items oi ON oi.order_id = o.id
JOIN products p ON p.id = oi.product_id
WHERE o.user_id = $1
ORDER BY o.created_at DESC, o.id DESC, oi.id`

type orderItemRow struct {
	OrderID      int64
	UserID       int64
	Total        decimal.Decimal
	CreatedAt    time.Time
	ItemID       int64
	ProductID    int64
	Quantity     int
	Price        decimal.Decimal
	ProductName  string
	ProductImage string
}

// ListByUser returns the user's orders newest first with items in insertion
// order. Rows arrive grouped by order, so a single pass rebuilds the tree.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	flat, err := pgx.CollectRows(rows, pgx.RowToStructByPos[orderItemRow])
	if err != nil {
		return nil, fmt.Errorf("scanning orders for user %d: %w", userID, err)
	}

	orders := make([]order.Order, 0)
	for _, row := range flat {
		if n := len(orders); n == 0 || orders[n-1].ID != row.OrderID {
			orders = append(orders, order.Order{
				ID:        row.OrderID,
				UserID:    row.UserID,
				Total:     row.Total,
				CreatedAt: row.CreatedAt,
			})
		}
		cur := &orders[len(orders)-1]
		cur.Items = append(cur.Items, order.OrderItem{
			ID:        row.ItemID,
			OrderID:   row.OrderID,
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			Price:     row.Price,
			Product: &order.ProductSummary{
				ID:    row.ProductID,
				Name:  row.ProductName,
				Image: row.ProductImage,
			},
		})
	}
	return orders, nil
}
