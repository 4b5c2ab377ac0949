package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles order creation, status transitions and cancellation
type OrderService struct {
	uow    store.UnitOfWork
	ledger *InventoryLedger
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(uow store.UnitOfWork, ledger *InventoryLedger) *OrderService {
	return &OrderService{
		uow:    uow,
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"dive"`
	IdempotencyKey string             `json:"-"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrderResult is the created order, or the earlier order when the
// idempotency key was already used
type CreateOrderResult struct {
	Order    *models.Order
	Replayed bool
}

// UpdateStatusRequest represents an administrative status change
type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

// CancelOrderRequest represents the cancellation of a paid order
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CreateOrder creates a PENDING order with captured prices, its first
// history entry and its PENDING payment in one transaction. Stock is not
// touched until the payment is verified.
func (s *OrderService) CreateOrder(ctx context.Context, principal models.Principal, req *CreateOrderRequest) (result *CreateOrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", principal.UserID))
	start := time.Now()
	defer func() {
		observe(s.logger, "create_order", start, err, zap.Int64("user_id", principal.UserID))
		util.EndSpan(span, err)
	}()

	if len(req.Items) == 0 {
		return nil, apperr.New(apperr.KindEmptyOrder, "no items")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	result = &CreateOrderResult{}
	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		if req.IdempotencyKey != "" {
			existing, err := repo.GetOrderByIdempotencyKey(ctx, principal.UserID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("failed to check idempotency: %w", err)
			}
			if existing != nil {
				result.Order, result.Replayed = existing, true
				return loadOrderDetails(ctx, repo, existing)
			}
		}

		items, err := s.priceItems(ctx, repo, req.Items)
		if err != nil {
			return err
		}

		order := &models.Order{
			UserID:         principal.UserID,
			TotalPrice:     models.TotalOf(items),
			Status:         models.OrderStatusPending,
			IdempotencyKey: models.StringPtr(req.IdempotencyKey),
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := repo.CreateOrderItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		order.Items = items

		entry := &models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.OrderStatusPending,
			ChangedBy: principal.Role,
			Note:      models.StringPtr("Order created"),
		}
		if err := repo.AppendStatusHistory(ctx, entry); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}

		payment := &models.Payment{
			OrderID: order.ID,
			UserID:  principal.UserID,
			Amount:  order.TotalPrice,
			Status:  models.PaymentStatusPending,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		order.Payment = payment

		if err := s.recordCreated(ctx, repo, order, entry); err != nil {
			return err
		}

		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		util.OrdersCreatedTotal.Inc()
		s.logger.Info("Order created",
			zap.Int64("order_id", result.Order.ID),
			zap.Int64("payment_id", result.Order.Payment.ID),
			zap.String("total_price", result.Order.TotalPrice.StringFixed(2)))
	} else {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", result.Order.ID))
	}
	return result, nil
}

// priceItems resolves every product against the catalog and captures its current price
func (s *OrderService) priceItems(ctx context.Context, repo store.Repository, reqItems []OrderItemRequest) ([]models.OrderItem, error) {
	productIDs := make([]int64, 0, len(reqItems))
	for _, item := range reqItems {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[int64]models.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	for _, item := range reqItems {
		product, ok := productMap[item.ProductID]
		if !ok {
			return nil, apperr.New(apperr.KindProductNotFound, "product %d", item.ProductID)
		}
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}
	return items, nil
}

func (s *OrderService) recordCreated(ctx context.Context, repo store.Repository, order *models.Order, entry *models.OrderStatusHistory) error {
	itemData := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		itemData = append(itemData, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	created := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		UserID:     order.UserID,
		PaymentID:  order.Payment.ID,
		TotalPrice: order.TotalPrice,
		Items:      itemData,
	}
	if err := recordEvent(ctx, repo, created.BaseEvent, order.ID, created); err != nil {
		return err
	}

	changed := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		ToStatus:  entry.ToStatus,
		ChangedBy: entry.ChangedBy,
		Note:      entry.Note,
	}
	return recordEvent(ctx, repo, changed.BaseEvent, order.ID, changed)
}

// UpdateOrderStatus applies an administrative transition along the order
// state machine. PENDING -> PAID also takes the stock for every item.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, principal models.Principal, orderID int64, req *UpdateStatusRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("to_status", string(req.Status)))
	start := time.Now()
	var from models.OrderStatus
	defer func() {
		observe(s.logger, "update_order_status", start, err, zap.Int64("order_id", orderID))
		util.EndSpan(span, err)
	}()

	if !req.Status.Valid() {
		return nil, apperr.Validation(apperr.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", req.Status)})
	}

	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		from = order.Status

		if order.Status.Terminal() {
			return apperr.New(apperr.KindOrderFinalized, "order %d is %s", orderID, order.Status)
		}
		if !models.CanTransition(order.Status, req.Status) {
			return apperr.New(apperr.KindInvalidTransition, "%s -> %s", order.Status, req.Status)
		}

		if req.Status.RequiresVerifiedPayment() {
			payment, err := repo.GetPaymentByOrderID(ctx, orderID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to load payment for order %d: %w", orderID, err)
			}
			if payment == nil || payment.Status != models.PaymentStatusVerified {
				return apperr.New(apperr.KindPaymentNotVerified, "order %d", orderID)
			}
		}

		order.Items, err = repo.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		if order.Status == models.OrderStatusPending && req.Status == models.OrderStatusPaid {
			adjustments, err := s.ledger.DecrementItems(ctx, repo, order.Items)
			if err != nil {
				return err
			}
			if err := recordStockAdjusted(ctx, repo, orderID, adjustments); err != nil {
				return err
			}
		}

		_, err = transitionOrder(ctx, repo, order, req.Status, principal.Role, models.StringPtr(req.Note))
		return err
	})
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(order.Status)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
		zap.String("changed_by", principal.Role))
	return order, nil
}

// CancelPaidOrder cancels a PAID or PROCESSING order whose payment is
// VERIFIED: every item is restocked and the payment is refunded.
func (s *OrderService) CancelPaidOrder(ctx context.Context, principal models.Principal, orderID int64, req *CancelOrderRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelPaidOrder", attribute.Int64("order_id", orderID))
	start := time.Now()
	var from models.OrderStatus
	defer func() {
		observe(s.logger, "cancel_paid_order", start, err, zap.Int64("order_id", orderID))
		util.EndSpan(span, err)
	}()

	reason := ""
	if req != nil {
		reason = req.Reason
	}
	if reason == "" {
		reason = "Order cancelled"
	}

	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		if !principal.CanAccess(order.UserID) {
			return apperr.New(apperr.KindForbidden, "user %d on order %d", principal.UserID, orderID)
		}
		from = order.Status

		if order.Status == models.OrderStatusCancelled {
			return apperr.New(apperr.KindAlreadyCancelled, "order %d", orderID)
		}
		if !models.CanCancelPaid(order.Status) {
			return apperr.New(apperr.KindOrderNotCancellable, "order %d is %s", orderID, order.Status)
		}

		payment, err := lockPaymentOfOrder(ctx, repo, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindPaymentNotFound, "order %d has no payment", orderID)
		}
		if err != nil {
			return fmt.Errorf("failed to load payment for order %d: %w", orderID, err)
		}
		if payment.Status != models.PaymentStatusVerified {
			return apperr.New(apperr.KindPaymentNotVerified, "payment %d is %s", payment.ID, payment.Status)
		}

		order.Items, err = repo.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		adjustments, err := s.ledger.RestockItems(ctx, repo, order.Items)
		if err != nil {
			return err
		}
		if err := recordStockAdjusted(ctx, repo, orderID, adjustments); err != nil {
			return err
		}

		payment.Status = models.PaymentStatusRefunded
		payment.Reason = &reason
		if err := recordPaymentChange(ctx, repo, payment, models.PaymentStatusVerified); err != nil {
			return err
		}
		order.Payment = payment

		_, err = transitionOrder(ctx, repo, order, models.OrderStatusCancelled, principal.Role, &reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	restocked := 0
	for _, item := range order.Items {
		restocked += item.Quantity
	}
	util.StockRestockedUnits.Add(float64(restocked))
	util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusRefunded)).Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(from), string(models.OrderStatusCancelled)).Inc()
	s.logger.Info("Paid order cancelled and refunded",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.Int("restocked_units", restocked))
	return order, nil
}

// GetOrder retrieves an order with its items and payment
func (s *OrderService) GetOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	var order *models.Order
	err := s.uow.View(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.GetOrderByID(ctx, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		if !principal.CanAccess(order.UserID) {
			return apperr.New(apperr.KindForbidden, "user %d on order %d", principal.UserID, orderID)
		}
		return loadOrderDetails(ctx, repo, order)
	})
	return order, err
}

// ListOrders retrieves orders matching filter, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var orders []models.Order
	err := s.uow.View(ctx, func(repo store.Repository) error {
		var err error
		orders, err = repo.ListOrders(ctx, filter)
		return err
	})
	return orders, err
}

// ListMyOrders retrieves the caller's orders with their items
func (s *OrderService) ListMyOrders(ctx context.Context, principal models.Principal) ([]models.Order, error) {
	userID := principal.UserID
	var orders []models.Order
	err := s.uow.View(ctx, func(repo store.Repository) error {
		var err error
		orders, err = repo.ListOrders(ctx, models.OrderFilter{UserID: &userID})
		if err != nil {
			return err
		}
		for i := range orders {
			orders[i].Items, err = repo.GetOrderItemsByOrderID(ctx, orders[i].ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return orders, err
}

// GetTimeline retrieves an order's status history, oldest first
func (s *OrderService) GetTimeline(ctx context.Context, principal models.Principal, orderID int64) ([]models.OrderStatusHistory, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetTimeline", attribute.Int64("order_id", orderID))
	defer span.End()

	var history []models.OrderStatusHistory
	err := s.uow.View(ctx, func(repo store.Repository) error {
		order, err := repo.GetOrderByID(ctx, orderID)
		if err != nil {
			return orderLookupError(err, orderID)
		}
		if !principal.CanAccess(order.UserID) {
			return apperr.New(apperr.KindForbidden, "user %d on order %d", principal.UserID, orderID)
		}
		history, err = repo.GetStatusHistory(ctx, orderID)
		return err
	})
	return history, err
}

func loadOrderDetails(ctx context.Context, repo store.Repository, order *models.Order) error {
	items, err := repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items

	payment, err := repo.GetPaymentByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	order.Payment = payment
	return nil
}

func validateItems(items []OrderItemRequest) error {
	var fields []apperr.FieldError
	for i, item := range items {
		if item.ProductID <= 0 {
			fields = append(fields, apperr.FieldError{
				Field:   fmt.Sprintf("items[%d].product_id", i),
				Message: "must be a positive id",
			})
		}
		if item.Quantity <= 0 {
			fields = append(fields, apperr.FieldError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be at least 1",
			})
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}
