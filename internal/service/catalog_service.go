package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockCache is a read-side cache of product stock
type StockCache interface {
	GetStock(ctx context.Context, productID int64) (int, bool, error)
	SetStock(ctx context.Context, productID int64, stock int, ttl time.Duration) error
}

// StockView is the stock of a product as served to callers
type StockView struct {
	ProductID int64  `json:"product_id"`
	Stock     int    `json:"stock"`
	Source    string `json:"source"`
}

// CatalogService serves product stock, from the cache when it can
type CatalogService struct {
	uow    store.UnitOfWork
	cache  StockCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(uow store.UnitOfWork, cache StockCache, ttl time.Duration) *CatalogService {
	return &CatalogService{
		uow:    uow,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// GetStock returns a product's stock. A cache hit may lag the database by
// up to the cache TTL; any cache failure falls back to the database.
func (cs *CatalogService) GetStock(ctx context.Context, productID int64) (*StockView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetStock")
	defer span.End()

	if cs.cache != nil {
		stock, ok, err := cs.cache.GetStock(ctx, productID)
		switch {
		case err != nil:
			cs.logger.Warn("Stock cache read failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		case ok:
			return &StockView{ProductID: productID, Stock: stock, Source: "cache"}, nil
		}
	}

	var product *models.Product
	err := cs.uow.View(ctx, func(repo store.Repository) error {
		var err error
		product, err = repo.GetProductByID(ctx, productID)
		return err
	})
	if err != nil {
		return nil, productLookupError(err, productID)
	}

	if cs.cache != nil {
		if err := cs.cache.SetStock(ctx, productID, product.Stock, cs.ttl); err != nil {
			cs.logger.Warn("Failed to populate stock cache",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}
	return &StockView{ProductID: productID, Stock: product.Stock, Source: "db"}, nil
}

// SyncStockToCache copies every product's stock into the cache
func (cs *CatalogService) SyncStockToCache(ctx context.Context) error {
	if cs.cache == nil {
		return nil
	}
	cs.logger.Info("Starting stock sync to cache")

	var products []models.Product
	err := cs.uow.View(ctx, func(repo store.Repository) error {
		var err error
		products, err = repo.GetProducts(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	synced := 0
	for _, product := range products {
		if err := cs.cache.SetStock(ctx, product.ID, product.Stock, cs.ttl); err != nil {
			cs.logger.Error("Failed to cache stock",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
			continue
		}
		synced++
	}

	cs.logger.Info("Stock sync completed", zap.Int("count", synced))
	return nil
}
