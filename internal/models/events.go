package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated          = "ORDER_CREATED"
	EventTypeOrderStatusChanged    = "ORDER_STATUS_CHANGED"
	EventTypePaymentProofSubmitted = "PAYMENT_PROOF_SUBMITTED"
	EventTypePaymentStatusChanged  = "PAYMENT_STATUS_CHANGED"
	EventTypeStockAdjusted         = "STOCK_ADJUSTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order and its payment are created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	PaymentID  int64           `json:"payment_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent mirrors one appended status history entry
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64        `json:"order_id"`
	FromStatus *OrderStatus `json:"from_status"`
	ToStatus   OrderStatus  `json:"to_status"`
	ChangedBy  string       `json:"changed_by"`
	Note       *string      `json:"note,omitempty"`
}

// PaymentProofSubmittedEvent published when the buyer uploads a proof
type PaymentProofSubmittedEvent struct {
	BaseEvent
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	ProofURL  string `json:"proof_url"`
}

// PaymentStatusChangedEvent published on verification, rejection and refund
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID  int64           `json:"payment_id"`
	OrderID    int64           `json:"order_id"`
	FromStatus PaymentStatus   `json:"from_status"`
	ToStatus   PaymentStatus   `json:"to_status"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     *string         `json:"reason,omitempty"`
}

// StockAdjustedEvent carries the committed stock deltas of one workflow
type StockAdjustedEvent struct {
	BaseEvent
	OrderID     int64             `json:"order_id"`
	Adjustments []StockAdjustment `json:"adjustments"`
}

// StockAdjustment is a signed stock change of one product
type StockAdjustment struct {
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OutboxRecord is an event persisted in the same transaction as the state change it describes
type OutboxRecord struct {
	ID        int64           `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	EventType string          `db:"event_type" json:"event_type"`
	Key       string          `db:"key" json:"key"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	SentAt    *time.Time      `db:"sent_at" json:"sent_at"`
}
