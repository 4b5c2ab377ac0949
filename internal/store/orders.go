package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"storefront/internal/models"
)

const orderColumns = "id, user_id, total_price, status, idempotency_key, created_at, updated_at"

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_price, status, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.q.QueryRowxContext(ctx, query,
		order.UserID, order.TotalPrice, order.Status, order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderForUpdate retrieves an order and locks its row until the transaction ends
func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key, nil if none
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, "user_id = ?")
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, "status = ?")
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	orders := []models.Order{}
	err := s.q.SelectContext(ctx, &orders, s.q.Rebind(query), args...)
	return orders, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return s.q.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.q.SelectContext(ctx, &items,
		"SELECT id, order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY id",
		orderID)
	return items, err
}

// AppendStatusHistory appends a timeline entry
func (s *Store) AppendStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_histories (order_id, from_status, to_status, changed_by, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.q.QueryRowxContext(ctx, query,
		entry.OrderID, entry.FromStatus, entry.ToStatus, entry.ChangedBy, entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// GetStatusHistory retrieves an order's timeline, oldest first
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	entries := []models.OrderStatusHistory{}
	err := s.q.SelectContext(ctx, &entries, `
		SELECT id, order_id, from_status, to_status, changed_by, note, created_at
		FROM order_status_histories
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, orderID)
	return entries, err
}
