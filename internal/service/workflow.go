package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transitionOrder moves a locked order to status to and appends the matching
// history entry and event. Callers have already checked the move is allowed.
func transitionOrder(ctx context.Context, repo store.Repository, order *models.Order, to models.OrderStatus, changedBy string, note *string) (*models.OrderStatusHistory, error) {
	from := order.Status

	if err := repo.UpdateOrderStatus(ctx, order.ID, to); err != nil {
		return nil, fmt.Errorf("failed to update order %d status: %w", order.ID, err)
	}

	entry := &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: from.Ptr(),
		ToStatus:   to,
		ChangedBy:  changedBy,
		Note:       note,
	}
	if err := repo.AppendStatusHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append history for order %d: %w", order.ID, err)
	}
	order.Status = to

	event := &models.OrderStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:    order.ID,
		FromStatus: entry.FromStatus,
		ToStatus:   to,
		ChangedBy:  changedBy,
		Note:       note,
	}
	if err := recordEvent(ctx, repo, event.BaseEvent, order.ID, event); err != nil {
		return nil, err
	}
	return entry, nil
}

// recordPaymentChange persists a payment's new state and its event
func recordPaymentChange(ctx context.Context, repo store.Repository, payment *models.Payment, from models.PaymentStatus) error {
	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to update payment %d: %w", payment.ID, err)
	}

	event := &models.PaymentStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentStatusChanged),
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		FromStatus: from,
		ToStatus:   payment.Status,
		Amount:     payment.Amount,
		Reason:     payment.Reason,
	}
	return recordEvent(ctx, repo, event.BaseEvent, payment.OrderID, event)
}

func recordStockAdjusted(ctx context.Context, repo store.Repository, orderID int64, adjustments []models.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	event := &models.StockAdjustedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeStockAdjusted),
		OrderID:     orderID,
		Adjustments: adjustments,
	}
	return recordEvent(ctx, repo, event.BaseEvent, orderID, event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// recordEvent writes an event to the outbox of the current transaction
func recordEvent(ctx context.Context, repo store.Repository, base models.BaseEvent, orderID int64, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", base.EventType, err)
	}

	record := &models.OutboxRecord{
		EventID:   base.EventID,
		EventType: base.EventType,
		Key:       fmt.Sprintf("order-%d", orderID),
		Payload:   payload,
	}
	if err := repo.InsertOutbox(ctx, record); err != nil {
		return fmt.Errorf("failed to record %s event: %w", base.EventType, err)
	}
	return nil
}

// lockPaymentAndOrder resolves a payment's order and locks the order row
// before the payment row, the same order every workflow uses.
func lockPaymentAndOrder(ctx context.Context, repo store.Repository, paymentID int64) (*models.Order, *models.Payment, error) {
	payment, err := repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, nil, paymentLookupError(err, paymentID)
	}

	order, err := repo.GetOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, orderLookupError(err, payment.OrderID)
	}

	payment, err = repo.GetPaymentForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, paymentLookupError(err, paymentID)
	}
	return order, payment, nil
}

// lockPaymentOfOrder locks the payment linked to an already locked order
func lockPaymentOfOrder(ctx context.Context, repo store.Repository, orderID int64) (*models.Payment, error) {
	payment, err := repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return repo.GetPaymentForUpdate(ctx, payment.ID)
}

func orderLookupError(err error, orderID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindOrderNotFound, "order %d", orderID)
	}
	return fmt.Errorf("failed to load order %d: %w", orderID, err)
}

func paymentLookupError(err error, paymentID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindPaymentNotFound, "payment %d", paymentID)
	}
	return fmt.Errorf("failed to load payment %d: %w", paymentID, err)
}

// observe records the outcome of a workflow once its transaction has ended
func observe(logger *zap.Logger, operation string, start time.Time, err error, fields ...zap.Field) {
	util.WorkflowLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	if kind, ok := apperr.KindOf(err); ok {
		util.OrderRejectionsTotal.WithLabelValues(operation, string(kind)).Inc()
		logger.Warn("Workflow rejected", fields...)
		return
	}
	logger.Error("Workflow failed", fields...)
}

func productLookupError(err error, productID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindProductNotFound, "product %d", productID)
	}
	return fmt.Errorf("failed to load product %d: %w", productID, err)
}
