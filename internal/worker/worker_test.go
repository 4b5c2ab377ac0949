package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/store/memstore"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []string
	failOn    string
}

func (p *fakePublisher) PublishRecord(ctx context.Context, record models.OutboxRecord) error {
	if record.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, record.EventID)
	return nil
}

func seedOutbox(t *testing.T, st *memstore.Store, n int) {
	t.Helper()
	err := st.WithTx(context.Background(), func(repo store.Repository) error {
		for i := 1; i <= n; i++ {
			err := repo.InsertOutbox(context.Background(), &models.OutboxRecord{
				EventID:   fmt.Sprintf("evt-%d", i),
				EventType: models.EventTypeOrderStatusChanged,
				Key:       "order-1",
				Payload:   []byte(`{}`),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func pendingCount(st *memstore.Store) int {
	n := 0
	for _, rec := range st.Outbox() {
		if rec.SentAt == nil {
			n++
		}
	}
	return n
}

func TestRelayOncePublishesInOrder(t *testing.T) {
	st := memstore.New()
	seedOutbox(t, st, 3)
	pub := &fakePublisher{}
	relay := NewOutboxRelay(st, pub, 10, time.Second)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, pub.published)
	assert.Equal(t, 0, pendingCount(st))

	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRelayOnceStopsAtFailure(t *testing.T) {
	st := memstore.New()
	seedOutbox(t, st, 3)
	pub := &fakePublisher{failOn: "evt-2"}
	relay := NewOutboxRelay(st, pub, 10, time.Second)

	sent, err := relay.RelayOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"evt-1"}, pub.published)
	assert.Equal(t, 2, pendingCount(st))

	pub.failOn = ""
	sent, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, pub.published)
}

func TestRelayOnceHonoursBatchSize(t *testing.T) {
	st := memstore.New()
	seedOutbox(t, st, 5)
	relay := NewOutboxRelay(st, &fakePublisher{}, 2, time.Second)

	sent, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 3, pendingCount(st))
}

func TestRelayStartStopsOnCancel(t *testing.T) {
	st := memstore.New()
	seedOutbox(t, st, 1)
	pub := &fakePublisher{}
	relay := NewOutboxRelay(st, pub, 10, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	assert.Eventually(t, func() bool { return pendingCount(st) == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

// fakeStockCache behaves like the Redis stock cache
type fakeStockCache struct {
	stock   map[int64]int
	handled map[string]bool
}

func newFakeStockCache() *fakeStockCache {
	return &fakeStockCache{stock: map[int64]int{}, handled: map[string]bool{}}
}

func (c *fakeStockCache) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	v, ok := c.stock[productID]
	return v, ok, nil
}

func (c *fakeStockCache) SetStock(ctx context.Context, productID int64, stock int, ttl time.Duration) error {
	c.stock[productID] = stock
	return nil
}

func (c *fakeStockCache) InvalidateStock(ctx context.Context, eventID string, productID int64, ttl time.Duration) (redisclient.InvalidateResult, error) {
	marker := fmt.Sprintf("%s:%d", eventID, productID)
	if c.handled[marker] {
		return redisclient.InvalidateDuplicate, nil
	}
	c.handled[marker] = true
	if _, ok := c.stock[productID]; !ok {
		return redisclient.InvalidateMiss, nil
	}
	delete(c.stock, productID)
	return redisclient.InvalidateEvicted, nil
}

// handlerPublisher delivers relayed records straight to an event handler
type handlerPublisher struct {
	handler *broker.EventHandler
}

func (p *handlerPublisher) PublishRecord(ctx context.Context, record models.OutboxRecord) error {
	return p.handler.HandleMessage(ctx, kafka.Message{Key: []byte(record.Key), Value: record.Payload})
}

func TestHandleStockAdjustedIsIdempotent(t *testing.T) {
	cache := newFakeStockCache()
	cache.stock[1] = 5
	w := NewStockProjectionWorker(nil, cache, time.Hour)
	event := &models.StockAdjustedEvent{
		BaseEvent:   models.BaseEvent{EventID: "evt-9", EventType: models.EventTypeStockAdjusted},
		OrderID:     3,
		Adjustments: []models.StockAdjustment{{ProductID: 1, Delta: -2}, {ProductID: 2, Delta: -1}},
	}

	require.NoError(t, w.HandleStockAdjusted(context.Background(), event))
	assert.Empty(t, cache.stock)

	cache.stock[1] = 3
	require.NoError(t, w.HandleStockAdjusted(context.Background(), event))
	assert.Equal(t, map[int64]int{1: 3}, cache.stock)
}

func TestCacheSyncedBeforeRelayServesDatabaseStock(t *testing.T) {
	st := memstore.New()
	ledger := service.NewInventoryLedger()
	orders := service.NewOrderService(st, ledger)
	payments := service.NewPaymentService(st, ledger)
	cache := newFakeStockCache()
	catalog := service.NewCatalogService(st, cache, time.Minute)
	ctx := context.Background()

	buyer := models.Principal{UserID: 7, Role: models.RoleCustomer}
	admin := models.Principal{UserID: 1, Role: models.RoleAdmin}
	productID := st.AddProduct(models.Product{Name: "mug", Price: decimal.RequireFromString("10.00"), Stock: 5})

	res, err := orders.CreateOrder(ctx, buyer, &service.CreateOrderRequest{
		Items: []service.OrderItemRequest{{ProductID: productID, Quantity: 3}},
	})
	require.NoError(t, err)
	_, err = payments.SubmitProof(ctx, buyer, res.Order.Payment.ID, &service.ProofUpload{ContentType: "image/png", Data: []byte("png")})
	require.NoError(t, err)
	_, err = payments.Verify(ctx, admin, res.Order.Payment.ID, nil)
	require.NoError(t, err)

	// the cache is filled while STOCK_ADJUSTED still waits in the outbox
	require.NoError(t, catalog.SyncStockToCache(ctx))
	assert.Equal(t, 2, cache.stock[productID])

	projection := NewStockProjectionWorker(nil, cache, time.Hour)
	relay := NewOutboxRelay(st, &handlerPublisher{handler: projection.handler}, 100, time.Second)
	_, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingCount(st))

	view, err := catalog.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Stock)
	assert.Equal(t, "db", view.Source)

	view, err = catalog.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Stock)
	assert.Equal(t, "cache", view.Source)
}
