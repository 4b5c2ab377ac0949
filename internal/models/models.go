package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product as seen by the order workflow
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	Status         OrderStatus     `db:"status" json:"status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Items   []OrderItem `db:"-" json:"items,omitempty"`
	Payment *Payment    `db:"-" json:"payment,omitempty"`
}

// OrderItem is a line of an order with the price captured at purchase time
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Subtotal returns quantity x captured unit price
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TotalOf sums the captured subtotals of items
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Payment is the one-to-one payment record of an order
type Payment struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    PaymentStatus   `db:"status" json:"status"`
	ProofURL  *string         `db:"proof_url" json:"proof_url"`
	Reason    *string         `db:"reason" json:"reason"`
	PaidAt    *time.Time      `db:"paid_at" json:"paid_at"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentProof holds the uploaded proof image of a payment
type PaymentProof struct {
	PaymentID   int64     `db:"payment_id" json:"payment_id"`
	ContentType string    `db:"content_type" json:"content_type"`
	Data        []byte    `db:"data" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// OrderStatusHistory is one append-only entry of an order's status timeline.
// FromStatus is nil only for the entry written at order creation.
type OrderStatusHistory struct {
	ID         int64        `db:"id" json:"id"`
	OrderID    int64        `db:"order_id" json:"order_id"`
	FromStatus *OrderStatus `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus  `db:"to_status" json:"to_status"`
	ChangedBy  string       `db:"changed_by" json:"changed_by"`
	Note       *string      `db:"note" json:"note"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID *int64
	Status *OrderStatus
}

// PaymentFilter narrows payment listings
type PaymentFilter struct {
	Status *PaymentStatus
}

// Roles
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Principal is the authenticated caller handed to the workflows
type Principal struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the principal carries the privileged role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the principal may read resources owned by userID
func (p Principal) CanAccess(userID int64) bool {
	return p.IsAdmin() || p.UserID == userID
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
