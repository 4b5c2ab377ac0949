package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Header names set on every relayed event
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventPublisher publishes outbox records
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRecord publishes the stored payload of an outbox record
func (ep *EventPublisher) PublishRecord(ctx context.Context, record models.OutboxRecord) error {
	return ep.producer.Publish(ctx, record.Key, record.Payload, map[string]string{
		HeaderEventID:   record.EventID,
		HeaderEventType: record.EventType,
	})
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onStockAdjusted func(context.Context, *models.StockAdjustedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnStockAdjusted registers a handler for StockAdjusted events
func (eh *EventHandler) OnStockAdjusted(handler func(context.Context, *models.StockAdjustedEvent) error) {
	eh.onStockAdjusted = handler
}

// HandleMessage routes messages to appropriate handlers. Event types
// without a handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrUndecodable, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeStockAdjusted:
		if eh.onStockAdjusted != nil {
			var event models.StockAdjustedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: StockAdjusted event: %v", ErrUndecodable, err)
			}
			return eh.onStockAdjusted(ctx, &event)
		}
	}

	return nil
}
