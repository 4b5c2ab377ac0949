package store

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, name, price, stock, created_at, updated_at"

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.q.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.q.SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var products []models.Product
	err = s.q.SelectContext(ctx, &products, query, args...)
	return products, err
}

// TryDecrementStock removes quantity from a product's stock only if enough is
// left. The check and the write are one statement, so concurrent callers can
// never drive stock below zero; false means insufficient stock.
func (s *Store) TryDecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IncrementStock returns quantity to a product's stock
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}
