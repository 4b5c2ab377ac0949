package service

import (
	"context"
	"fmt"
	"sort"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger is the only writer of product stock. Every call runs
// inside the caller's unit of work, so a failed decrement aborts whatever
// else the transaction has written, including earlier decrements.
type InventoryLedger struct {
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{logger: util.GetLogger()}
}

// TryDecrement removes quantity from a product's stock or fails with
// INSUFFICIENT_STOCK. It never reads stock separately from the write.
func (l *InventoryLedger) TryDecrement(ctx context.Context, repo store.Repository, productID int64, quantity int) error {
	ok, err := repo.TryDecrementStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	if !ok {
		util.StockDecrementsFailed.Inc()
		return apperr.New(apperr.KindInsufficientStock, "product %d: requested %d", productID, quantity)
	}
	return nil
}

// Increment returns quantity to a product's stock
func (l *InventoryLedger) Increment(ctx context.Context, repo store.Repository, productID int64, quantity int) error {
	if err := repo.IncrementStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to increment stock for product %d: %w", productID, err)
	}
	return nil
}

// DecrementItems takes the stock for every line of an order. Lines are
// merged per product and applied in product id order so that concurrent
// transactions lock product rows in the same sequence.
func (l *InventoryLedger) DecrementItems(ctx context.Context, repo store.Repository, items []models.OrderItem) ([]models.StockAdjustment, error) {
	adjustments := mergeByProduct(items, -1)
	for _, adj := range adjustments {
		if err := l.TryDecrement(ctx, repo, adj.ProductID, -adj.Delta); err != nil {
			l.logger.Warn("Stock decrement rejected",
				zap.Int64("product_id", adj.ProductID),
				zap.Int("quantity", -adj.Delta),
				zap.Error(err))
			return nil, err
		}
	}
	return adjustments, nil
}

// RestockItems returns the stock of every line of an order
func (l *InventoryLedger) RestockItems(ctx context.Context, repo store.Repository, items []models.OrderItem) ([]models.StockAdjustment, error) {
	adjustments := mergeByProduct(items, 1)
	for _, adj := range adjustments {
		if err := l.Increment(ctx, repo, adj.ProductID, adj.Delta); err != nil {
			return nil, err
		}
	}
	return adjustments, nil
}

func mergeByProduct(items []models.OrderItem, sign int) []models.StockAdjustment {
	totals := make(map[int64]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	adjustments := make([]models.StockAdjustment, 0, len(totals))
	for productID, quantity := range totals {
		adjustments = append(adjustments, models.StockAdjustment{ProductID: productID, Delta: sign * quantity})
	}
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].ProductID < adjustments[j].ProductID
	})
	return adjustments
}
