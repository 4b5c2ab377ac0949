package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func proof() *ProofUpload {
	return &ProofUpload{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestSubmitProofAndVerify(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 3})
	ctx := context.Background()

	submitted, err := f.payments.SubmitProof(ctx, buyer, order.Payment.ID, proof())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, submitted.Status)
	require.NotNil(t, submitted.ProofURL)
	assert.Contains(t, *submitted.ProofURL, "/proof")
	assert.NotNil(t, submitted.PaidAt)

	stored, err := f.payments.GetProof(ctx, buyer, order.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", stored.ContentType)

	verified, err := f.payments.Verify(ctx, admin, order.Payment.ID, &ReviewRequest{Note: "transfer received"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusVerified, verified.Status)
	assert.Equal(t, 2, f.store.Stock(p))

	got, err := f.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	history, err := f.orders.GetTimeline(ctx, buyer, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleAdmin, history[1].ChangedBy)
	assert.Equal(t, "transfer received", *history[1].Note)
}

func TestSubmitProofRejections(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 1})
	ctx := context.Background()

	_, err := f.payments.SubmitProof(ctx, buyer, order.Payment.ID, &ProofUpload{})
	assertKind(t, err, apperr.KindValidation)

	_, err = f.payments.SubmitProof(ctx, stranger, order.Payment.ID, proof())
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.payments.SubmitProof(ctx, buyer, 999, proof())
	assertKind(t, err, apperr.KindPaymentNotFound)

	_, err = f.orders.UpdateOrderStatus(ctx, admin, order.ID, &UpdateStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	_, err = f.payments.SubmitProof(ctx, buyer, order.Payment.ID, proof())
	assertKind(t, err, apperr.KindInvalidOrderStatus)

	_, err = f.payments.GetProof(ctx, buyer, order.Payment.ID)
	assertKind(t, err, apperr.KindProofNotFound)
}

func TestResubmittedProofKeepsFirstSubmissionTime(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 1})
	ctx := context.Background()

	first, err := f.payments.SubmitProof(ctx, buyer, order.Payment.ID, proof())
	require.NoError(t, err)
	require.NotNil(t, first.PaidAt)
	paidAt := *first.PaidAt

	time.Sleep(5 * time.Millisecond)
	second, err := f.payments.SubmitProof(ctx, buyer, order.Payment.ID, &ProofUpload{ContentType: "image/png", Data: []byte("png")})
	require.NoError(t, err)
	require.NotNil(t, second.PaidAt)
	assert.True(t, paidAt.Equal(*second.PaidAt))
	assert.Equal(t, *first.ProofURL, *second.ProofURL)

	stored, err := f.payments.GetProof(ctx, buyer, order.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.ContentType)
	assert.Equal(t, []byte("png"), stored.Data)
}

func TestSubmitProofAfterVerification(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.paidOrder(t, OrderItemRequest{ProductID: p, Quantity: 1})

	_, err := f.payments.SubmitProof(context.Background(), buyer, order.Payment.ID, proof())
	assertKind(t, err, apperr.KindPaymentAlreadyProcessed)
}

func TestVerifyInsufficientStockIsAtomic(t *testing.T) {
	f := newFixture()
	a := f.product("1.00", 10)
	b := f.product("1.00", 10)
	c := f.product("1.00", 1)
	order := f.order(t,
		OrderItemRequest{ProductID: a, Quantity: 2},
		OrderItemRequest{ProductID: b, Quantity: 2},
		OrderItemRequest{ProductID: c, Quantity: 2})
	ctx := context.Background()
	events := len(f.store.Outbox())

	_, err := f.payments.Verify(ctx, admin, order.Payment.ID, nil)
	assertKind(t, err, apperr.KindInsufficientStock)

	assert.Equal(t, 10, f.store.Stock(a))
	assert.Equal(t, 10, f.store.Stock(b))
	assert.Equal(t, 1, f.store.Stock(c))
	assert.Len(t, f.store.Outbox(), events)

	got, err := f.payments.GetPayment(ctx, admin, order.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)

	history, err := f.orders.GetTimeline(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVerifyMergesRepeatedProducts(t *testing.T) {
	f := newFixture()
	p := f.product("1.00", 3)
	order := f.order(t,
		OrderItemRequest{ProductID: p, Quantity: 2},
		OrderItemRequest{ProductID: p, Quantity: 2})

	_, err := f.payments.Verify(context.Background(), admin, order.Payment.ID, nil)
	assertKind(t, err, apperr.KindInsufficientStock)
	assert.Equal(t, 3, f.store.Stock(p))
}

func TestVerifyRejections(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	ctx := context.Background()

	_, err := f.payments.Verify(ctx, admin, 999, nil)
	assertKind(t, err, apperr.KindPaymentNotFound)

	paid := f.paidOrder(t, OrderItemRequest{ProductID: p, Quantity: 1})
	_, err = f.payments.Verify(ctx, admin, paid.Payment.ID, nil)
	assertKind(t, err, apperr.KindPaymentAlreadyProcessed)

	cancelled := f.order(t, OrderItemRequest{ProductID: p, Quantity: 1})
	_, err = f.orders.UpdateOrderStatus(ctx, admin, cancelled.ID, &UpdateStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	_, err = f.payments.Verify(ctx, admin, cancelled.Payment.ID, nil)
	assertKind(t, err, apperr.KindOrderFinalized)
	assert.Equal(t, 4, f.store.Stock(p))
}

func TestRejectPayment(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 2})
	ctx := context.Background()

	_, err := f.payments.SubmitProof(ctx, buyer, order.Payment.ID, proof())
	require.NoError(t, err)

	rejected, err := f.payments.Reject(ctx, admin, order.Payment.ID, &ReviewRequest{Note: "blurry image"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, rejected.Status)
	assert.Equal(t, "blurry image", *rejected.Reason)
	assert.Equal(t, 5, f.store.Stock(p))

	got, err := f.orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	_, err = f.payments.Reject(ctx, admin, order.Payment.ID, nil)
	assertKind(t, err, apperr.KindPaymentAlreadyProcessed)
	_, err = f.payments.Verify(ctx, admin, order.Payment.ID, nil)
	assertKind(t, err, apperr.KindPaymentAlreadyProcessed)
}

func TestRejectPaymentOfCancelledOrder(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 1})
	ctx := context.Background()

	_, err := f.orders.UpdateOrderStatus(ctx, admin, order.ID, &UpdateStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)

	rejected, err := f.payments.Reject(ctx, admin, order.Payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, rejected.Status)

	history, err := f.orders.GetTimeline(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assertReplayable(t, history)
}

func TestPaymentReads(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	first := f.order(t, OrderItemRequest{ProductID: p, Quantity: 1})
	f.paidOrder(t, OrderItemRequest{ProductID: p, Quantity: 1})
	ctx := context.Background()

	_, err := f.payments.GetPayment(ctx, stranger, first.Payment.ID)
	assertKind(t, err, apperr.KindForbidden)

	all, err := f.payments.ListPayments(ctx, models.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.PaymentStatusVerified
	verified, err := f.payments.ListPayments(ctx, models.PaymentFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.NotEqual(t, first.Payment.ID, verified[0].ID)
}

func TestConcurrentVerifySamePayment(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	order := f.order(t, OrderItemRequest{ProductID: p, Quantity: 2})

	var ok, processed int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.payments.Verify(context.Background(), admin, order.Payment.ID, nil)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case apperr.IsKind(err, apperr.KindPaymentAlreadyProcessed):
				atomic.AddInt32(&processed, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, 1, processed)
	assert.Equal(t, 3, f.store.Stock(p))
}

func TestConcurrentVerifiesNeverOversell(t *testing.T) {
	const (
		stock  = 5
		orders = 12
	)
	f := newFixture()
	p := f.product("10.00", stock)

	paymentIDs := make([]int64, orders)
	for i := range paymentIDs {
		paymentIDs[i] = f.order(t, OrderItemRequest{ProductID: p, Quantity: 1}).Payment.ID
	}

	var ok, insufficient int32
	var g errgroup.Group
	for _, id := range paymentIDs {
		id := id
		g.Go(func() error {
			_, err := f.payments.Verify(context.Background(), admin, id, nil)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case apperr.IsKind(err, apperr.KindInsufficientStock):
				atomic.AddInt32(&insufficient, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, stock, ok)
	assert.EqualValues(t, orders-stock, insufficient)
	assert.Equal(t, 0, f.store.Stock(p))
}

func TestConcurrentVerifiesCompeteForStock(t *testing.T) {
	f := newFixture()
	p := f.product("10.00", 5)
	first := f.order(t, OrderItemRequest{ProductID: p, Quantity: 3})
	second := f.order(t, OrderItemRequest{ProductID: p, Quantity: 3})

	errs := make([]error, 2)
	var g errgroup.Group
	for i, order := range []*models.Order{first, second} {
		i, id := i, order.Payment.ID
		g.Go(func() error {
			_, errs[i] = f.payments.Verify(context.Background(), admin, id, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	loser := -1
	for i, err := range errs {
		if err != nil {
			assertKind(t, err, apperr.KindInsufficientStock)
			loser = i
		}
	}
	require.NotEqual(t, -1, loser, "one verification must fail")
	assert.Equal(t, 2, f.store.Stock(p))

	lost := []*models.Order{first, second}[loser]
	got, err := f.orders.GetOrder(context.Background(), buyer, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, models.PaymentStatusPending, got.Payment.Status)
}
