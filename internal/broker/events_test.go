package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesStockAdjusted(t *testing.T) {
	event := models.StockAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeStockAdjusted,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     4,
		Adjustments: []models.StockAdjustment{{ProductID: 2, Delta: -3}},
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.StockAdjustedEvent
	h := NewEventHandler()
	h.OnStockAdjusted(func(ctx context.Context, e *models.StockAdjustedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, event.Adjustments, got.Adjustments)
}

func TestHandleMessageSkipsOtherEvents(t *testing.T) {
	called := false
	h := NewEventHandler()
	h.OnStockAdjusted(func(ctx context.Context, e *models.StockAdjustedEvent) error {
		called = true
		return nil
	})

	value := []byte(`{"event_id":"evt-2","event_type":"ORDER_CREATED","order_id":1}`)
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, ErrUndecodable)
}
