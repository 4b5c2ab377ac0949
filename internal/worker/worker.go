package worker

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Publisher delivers one outbox record to the message bus
type Publisher interface {
	PublishRecord(ctx context.Context, record models.OutboxRecord) error
}

// OutboxRelay publishes committed outbox records in insertion order and
// marks each one sent after the broker acknowledged it. A crash between the
// two steps republishes the record, so consumers dedupe on event_id.
type OutboxRelay struct {
	uow       store.UnitOfWork
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *zap.Logger
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(uow store.UnitOfWork, publisher Publisher, batchSize int, interval time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{
		uow:       uow,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		logger:    util.GetLogger(),
	}
}

// Start polls the outbox until ctx is done
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay",
		zap.Int("batch_size", r.batchSize),
		zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes up to one batch of pending records and returns how
// many were sent. It stops at the first failure so that later records of
// the same order are never published ahead of it.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var pending []models.OutboxRecord
	err := r.uow.View(ctx, func(repo store.Repository) error {
		var err error
		pending, err = repo.FetchPendingOutbox(ctx, r.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch outbox: %w", err)
	}

	sent := 0
	for _, record := range pending {
		if err := r.publisher.PublishRecord(ctx, record); err != nil {
			util.OutboxFailedTotal.Inc()
			return sent, fmt.Errorf("failed to publish %s %s: %w", record.EventType, record.EventID, err)
		}

		err := r.uow.WithTx(ctx, func(repo store.Repository) error {
			return repo.MarkOutboxSent(ctx, record.ID)
		})
		if err != nil {
			return sent, fmt.Errorf("failed to mark outbox record %d sent: %w", record.ID, err)
		}

		util.OutboxPublishedTotal.WithLabelValues(record.EventType).Inc()
		sent++
	}

	if sent > 0 {
		r.logger.Debug("Outbox records relayed", zap.Int("count", sent))
	}
	return sent, nil
}

// StockProjector evicts stale entries from the read-side stock cache
type StockProjector interface {
	InvalidateStock(ctx context.Context, eventID string, productID int64, markerTTL time.Duration) (redisclient.InvalidateResult, error)
}

// StockProjectionWorker evicts the cached stock of every product named in a
// committed STOCK_ADJUSTED event. Reads then refill the cache from the
// database, which already reflects the change.
type StockProjectionWorker struct {
	consumer  *broker.Consumer
	handler   *broker.EventHandler
	cache     StockProjector
	markerTTL time.Duration
	logger    *zap.Logger
}

// NewStockProjectionWorker creates a new stock projection worker
func NewStockProjectionWorker(consumer *broker.Consumer, cache StockProjector, markerTTL time.Duration) *StockProjectionWorker {
	w := &StockProjectionWorker{
		consumer:  consumer,
		handler:   broker.NewEventHandler(),
		cache:     cache,
		markerTTL: markerTTL,
		logger:    util.GetLogger(),
	}
	w.handler.OnStockAdjusted(w.HandleStockAdjusted)
	return w
}

// Start starts the worker
func (w *StockProjectionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock projection worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *StockProjectionWorker) Stop() error {
	w.logger.Info("Stopping stock projection worker")
	return w.consumer.Close()
}

// HandleStockAdjusted invalidates the cached stock of every adjusted product
func (w *StockProjectionWorker) HandleStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	for _, adj := range event.Adjustments {
		result, err := w.cache.InvalidateStock(ctx, event.EventID, adj.ProductID, w.markerTTL)
		if err != nil {
			util.StockCacheInvalidationsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to invalidate stock of product %d: %w", adj.ProductID, err)
		}
		util.StockCacheInvalidationsTotal.WithLabelValues(result.String()).Inc()
	}

	w.logger.Debug("Stock cache invalidated",
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", event.OrderID),
		zap.Int("products", len(event.Adjustments)))
	return nil
}
