package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

func TestCanTransition(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
		OrderStatusPaid:       {OrderStatusProcessing},
		OrderStatusProcessing: {OrderStatusShipped},
		OrderStatusShipped:    {OrderStatusCompleted},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, from := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled} {
		assert.True(t, from.Terminal())
		for _, to := range allStatuses {
			assert.False(t, CanTransition(from, to))
		}
	}
}

func TestRequiresVerifiedPayment(t *testing.T) {
	assert.False(t, OrderStatusPending.RequiresVerifiedPayment())
	assert.False(t, OrderStatusCancelled.RequiresVerifiedPayment())
	assert.True(t, OrderStatusPaid.RequiresVerifiedPayment())
	assert.True(t, OrderStatusProcessing.RequiresVerifiedPayment())
	assert.True(t, OrderStatusShipped.RequiresVerifiedPayment())
	assert.True(t, OrderStatusCompleted.RequiresVerifiedPayment())
}

func TestValidHistoryStep(t *testing.T) {
	assert.True(t, ValidHistoryStep(nil, OrderStatusPending))
	assert.False(t, ValidHistoryStep(nil, OrderStatusPaid))
	assert.True(t, ValidHistoryStep(OrderStatusPaid.Ptr(), OrderStatusCancelled))
	assert.True(t, ValidHistoryStep(OrderStatusProcessing.Ptr(), OrderStatusCancelled))
	assert.False(t, ValidHistoryStep(OrderStatusShipped.Ptr(), OrderStatusCancelled))
	assert.False(t, ValidHistoryStep(OrderStatusCancelled.Ptr(), OrderStatusPending))
}

func TestTotalOf(t *testing.T) {
	items := []OrderItem{
		{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: 2, Quantity: 2, UnitPrice: decimal.RequireFromString("0.35")},
	}

	assert.True(t, decimal.RequireFromString("30.70").Equal(TotalOf(items)))
	assert.True(t, decimal.Zero.Equal(TotalOf(nil)))
}

func TestPrincipalCanAccess(t *testing.T) {
	admin := Principal{UserID: 1, Role: RoleAdmin}
	buyer := Principal{UserID: 2, Role: RoleCustomer}

	assert.True(t, admin.CanAccess(99))
	assert.True(t, buyer.CanAccess(2))
	assert.False(t, buyer.CanAccess(3))
}
