package models

// OrderStatus is a state of the order state machine
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus is a state of the payment lifecycle
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusVerified PaymentStatus = "VERIFIED"
	PaymentStatusRejected PaymentStatus = "REJECTED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// RequiresVerifiedPayment reports whether entering s needs a VERIFIED payment
func (s OrderStatus) RequiresVerifiedPayment() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted:
		return true
	}
	return false
}

// Ptr returns a pointer to a copy of s
func (s OrderStatus) Ptr() *OrderStatus {
	return &s
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusVerified, PaymentStatusRejected, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the order state machine.
// The cancellation of a paid order (PAID/PROCESSING -> CANCELLED) is not part of
// this table; it is a dedicated workflow, see CanCancelPaid.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusCancelled
	case OrderStatusPaid:
		return to == OrderStatusProcessing
	case OrderStatusProcessing:
		return to == OrderStatusShipped
	case OrderStatusShipped:
		return to == OrderStatusCompleted
	}
	return false
}

// CanCancelPaid reports whether a paid order in status s may be cancelled with a refund
func CanCancelPaid(s OrderStatus) bool {
	return s == OrderStatusPaid || s == OrderStatusProcessing
}

// ValidHistoryStep reports whether from -> to may appear as a timeline entry
func ValidHistoryStep(from *OrderStatus, to OrderStatus) bool {
	if from == nil {
		return to == OrderStatusPending
	}
	if CanTransition(*from, to) {
		return true
	}
	return to == OrderStatusCancelled && CanCancelPaid(*from)
}
