// Package apperr defines the closed set of errors the order and payment
// workflows can report to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a domain error. The set is closed: HTTPStatus and Message
// switch over every value.
type Kind string

const (
	KindValidation              Kind = "VALIDATION"
	KindUnauthenticated         Kind = "UNAUTHENTICATED"
	KindForbidden               Kind = "FORBIDDEN"
	KindEmptyOrder              Kind = "EMPTY_ORDER"
	KindProductNotFound         Kind = "PRODUCT_NOT_FOUND"
	KindOrderNotFound           Kind = "ORDER_NOT_FOUND"
	KindOrderFinalized          Kind = "ORDER_FINALIZED"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindPaymentNotVerified      Kind = "PAYMENT_NOT_VERIFIED"
	KindInsufficientStock       Kind = "INSUFFICIENT_STOCK"
	KindAlreadyCancelled        Kind = "ALREADY_CANCELLED"
	KindOrderNotCancellable     Kind = "ORDER_NOT_CANCELLABLE"
	KindPaymentNotFound         Kind = "PAYMENT_NOT_FOUND"
	KindPaymentAlreadyProcessed Kind = "PAYMENT_ALREADY_PROCESSED"
	KindInvalidOrderStatus      Kind = "INVALID_ORDER_STATUS"
	KindOrderAlreadyCompleted   Kind = "ORDER_ALREADY_COMPLETED"
	KindProofNotFound           Kind = "PROOF_NOT_FOUND"
)

// Kinds lists every Kind.
var Kinds = []Kind{
	KindValidation,
	KindUnauthenticated,
	KindForbidden,
	KindEmptyOrder,
	KindProductNotFound,
	KindOrderNotFound,
	KindOrderFinalized,
	KindInvalidTransition,
	KindPaymentNotVerified,
	KindInsufficientStock,
	KindAlreadyCancelled,
	KindOrderNotCancellable,
	KindPaymentNotFound,
	KindPaymentAlreadyProcessed,
	KindInvalidOrderStatus,
	KindOrderAlreadyCompleted,
	KindProofNotFound,
}

// Error is a domain error. Detail is logged but never rendered to clients;
// Fields carries per-field validation messages.
type Error struct {
	Kind   Kind
	Detail string
	Fields []FieldError
}

// FieldError is a validation failure of one request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error with per-field messages
func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Detail: "invalid request", Fields: fields}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Message returns the display message for the error's kind
func (e *Error) Message() string {
	return Message(e.Kind)
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err and whether err is a domain error
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps a kind to its response status
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation,
		KindEmptyOrder,
		KindProductNotFound,
		KindOrderFinalized,
		KindInvalidTransition,
		KindPaymentNotVerified,
		KindInsufficientStock,
		KindAlreadyCancelled,
		KindOrderNotCancellable,
		KindPaymentAlreadyProcessed,
		KindInvalidOrderStatus,
		KindOrderAlreadyCompleted:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindOrderNotFound, KindPaymentNotFound, KindProofNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Message maps a kind to its display message
func Message(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Invalid request."
	case KindUnauthenticated:
		return "Authentication required."
	case KindForbidden:
		return "Access denied."
	case KindEmptyOrder:
		return "Order items required."
	case KindProductNotFound:
		return "Product not found."
	case KindOrderNotFound:
		return "Order not found."
	case KindOrderFinalized:
		return "Order already finalized."
	case KindInvalidTransition:
		return "Invalid status transition."
	case KindPaymentNotVerified:
		return "Payment must be verified first."
	case KindInsufficientStock:
		return "Insufficient stock."
	case KindAlreadyCancelled:
		return "Order already cancelled."
	case KindOrderNotCancellable:
		return "Order cannot be cancelled in its current status."
	case KindPaymentNotFound:
		return "Payment not found."
	case KindPaymentAlreadyProcessed:
		return "Payment already processed."
	case KindInvalidOrderStatus:
		return "Order is not awaiting payment."
	case KindOrderAlreadyCompleted:
		return "Order already completed."
	case KindProofNotFound:
		return "No payment proof has been submitted."
	}
	return "Internal server error."
}
