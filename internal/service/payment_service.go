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

// DefaultProofURLFormat is where a stored proof can be downloaded, by payment id
const DefaultProofURLFormat = "/api/v1/payments/%d/proof"

// PaymentService handles the payment lifecycle: proof submission,
// verification and rejection
type PaymentService struct {
	uow            store.UnitOfWork
	ledger         *InventoryLedger
	proofURLFormat string
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(uow store.UnitOfWork, ledger *InventoryLedger) *PaymentService {
	return &PaymentService{
		uow:            uow,
		ledger:         ledger,
		proofURLFormat: DefaultProofURLFormat,
		logger:         util.GetLogger(),
	}
}

// ProofUpload is the buyer's proof of an off-band payment
type ProofUpload struct {
	ContentType string
	Data        []byte
}

// ReviewRequest carries the administrator's note on a verification or rejection
type ReviewRequest struct {
	Note string `json:"note"`
}

// SubmitProof stores the buyer's proof on a PENDING payment of a PENDING
// order. The payment stays PENDING until an administrator verifies it.
// Until then a new upload replaces the stored proof.
func (s *PaymentService) SubmitProof(ctx context.Context, principal models.Principal, paymentID int64, proof *ProofUpload) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.SubmitProof", attribute.Int64("payment_id", paymentID))
	start := time.Now()
	defer func() {
		observe(s.logger, "submit_proof", start, err, zap.Int64("payment_id", paymentID))
		util.EndSpan(span, err)
	}()

	if proof == nil || len(proof.Data) == 0 {
		return nil, apperr.Validation(apperr.FieldError{Field: "image", Message: "proof file is required"})
	}

	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		order, p, err := lockPaymentAndOrder(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		payment = p

		if order.UserID != principal.UserID {
			return apperr.New(apperr.KindForbidden, "user %d on payment %d", principal.UserID, paymentID)
		}
		if payment.Status != models.PaymentStatusPending {
			return apperr.New(apperr.KindPaymentAlreadyProcessed, "payment %d is %s", paymentID, payment.Status)
		}
		if order.Status != models.OrderStatusPending {
			return apperr.New(apperr.KindInvalidOrderStatus, "order %d is %s", order.ID, order.Status)
		}

		if err := repo.SavePaymentProof(ctx, &models.PaymentProof{
			PaymentID:   paymentID,
			ContentType: proof.ContentType,
			Data:        proof.Data,
		}); err != nil {
			return fmt.Errorf("failed to store proof: %w", err)
		}

		// a replacement proof keeps the first submission time
		url := fmt.Sprintf(s.proofURLFormat, paymentID)
		payment.ProofURL = &url
		if payment.PaidAt == nil {
			now := time.Now().UTC()
			payment.PaidAt = &now
		}
		if err := repo.UpdatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment %d: %w", paymentID, err)
		}

		event := &models.PaymentProofSubmittedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentProofSubmitted),
			PaymentID: paymentID,
			OrderID:   order.ID,
			ProofURL:  url,
		}
		return recordEvent(ctx, repo, event.BaseEvent, order.ID, event)
	})
	if err != nil {
		return nil, err
	}

	util.PaymentProofsTotal.Inc()
	s.logger.Info("Payment proof submitted",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", payment.OrderID),
		zap.Int("bytes", len(proof.Data)))
	return payment, nil
}

// Verify confirms a PENDING payment. In the same transaction the order moves
// PENDING -> PAID and the stock of every item is taken; if any item lacks
// stock nothing is written.
func (s *PaymentService) Verify(ctx context.Context, principal models.Principal, paymentID int64, req *ReviewRequest) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Verify", attribute.Int64("payment_id", paymentID))
	start := time.Now()
	defer func() {
		observe(s.logger, "verify_payment", start, err, zap.Int64("payment_id", paymentID))
		util.EndSpan(span, err)
	}()

	note := "Payment verified"
	if req != nil && req.Note != "" {
		note = req.Note
	}

	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		order, p, err := lockPaymentAndOrder(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		payment = p

		if payment.Status != models.PaymentStatusPending {
			return apperr.New(apperr.KindPaymentAlreadyProcessed, "payment %d is %s", paymentID, payment.Status)
		}
		if order.Status.Terminal() {
			return apperr.New(apperr.KindOrderFinalized, "order %d is %s", order.ID, order.Status)
		}
		if !models.CanTransition(order.Status, models.OrderStatusPaid) {
			return apperr.New(apperr.KindInvalidTransition, "%s -> %s", order.Status, models.OrderStatusPaid)
		}

		items, err := repo.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		adjustments, err := s.ledger.DecrementItems(ctx, repo, items)
		if err != nil {
			return err
		}
		if err := recordStockAdjusted(ctx, repo, order.ID, adjustments); err != nil {
			return err
		}

		payment.Status = models.PaymentStatusVerified
		if err := recordPaymentChange(ctx, repo, payment, models.PaymentStatusPending); err != nil {
			return err
		}

		_, err = transitionOrder(ctx, repo, order, models.OrderStatusPaid, principal.Role, &note)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusVerified)).Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusPending), string(models.OrderStatusPaid)).Inc()
	s.logger.Info("Payment verified",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", payment.OrderID))
	return payment, nil
}

// Reject declines a PENDING payment and cancels its order. No stock was
// taken for the order, so none is returned.
func (s *PaymentService) Reject(ctx context.Context, principal models.Principal, paymentID int64, req *ReviewRequest) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Reject", attribute.Int64("payment_id", paymentID))
	start := time.Now()
	cancelled := false
	defer func() {
		observe(s.logger, "reject_payment", start, err, zap.Int64("payment_id", paymentID))
		util.EndSpan(span, err)
	}()

	reason := "Payment rejected"
	if req != nil && req.Note != "" {
		reason = req.Note
	}

	err = s.uow.WithTx(ctx, func(repo store.Repository) error {
		order, p, err := lockPaymentAndOrder(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		payment = p

		if payment.Status != models.PaymentStatusPending {
			return apperr.New(apperr.KindPaymentAlreadyProcessed, "payment %d is %s", paymentID, payment.Status)
		}
		if order.Status == models.OrderStatusCompleted {
			return apperr.New(apperr.KindOrderAlreadyCompleted, "order %d", order.ID)
		}

		payment.Status = models.PaymentStatusRejected
		payment.Reason = &reason
		if err := recordPaymentChange(ctx, repo, payment, models.PaymentStatusPending); err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusCancelled:
			// already cancelled by an administrator; only the payment changes
			return nil
		case models.OrderStatusPending:
			cancelled = true
			_, err = transitionOrder(ctx, repo, order, models.OrderStatusCancelled, principal.Role, &reason)
			return err
		}
		return apperr.New(apperr.KindInvalidTransition, "%s -> %s", order.Status, models.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusRejected)).Inc()
	if cancelled {
		util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusPending), string(models.OrderStatusCancelled)).Inc()
	}
	s.logger.Info("Payment rejected",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", payment.OrderID),
		zap.Bool("order_cancelled", cancelled))
	return payment, nil
}

// GetPayment retrieves a payment visible to the principal
func (s *PaymentService) GetPayment(ctx context.Context, principal models.Principal, paymentID int64) (*models.Payment, error) {
	var payment *models.Payment
	err := s.uow.View(ctx, func(repo store.Repository) error {
		var err error
		payment, err = repo.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err, paymentID)
		}
		if !principal.CanAccess(payment.UserID) {
			return apperr.New(apperr.KindForbidden, "user %d on payment %d", principal.UserID, paymentID)
		}
		return nil
	})
	return payment, err
}

// ListPayments retrieves payments matching filter, newest first
func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.uow.View(ctx, func(repo store.Repository) error {
		var err error
		payments, err = repo.ListPayments(ctx, filter)
		return err
	})
	return payments, err
}

// GetProof retrieves the stored proof of a payment visible to the principal
func (s *PaymentService) GetProof(ctx context.Context, principal models.Principal, paymentID int64) (*models.PaymentProof, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetProof", attribute.Int64("payment_id", paymentID))
	defer span.End()

	var proof *models.PaymentProof
	err := s.uow.View(ctx, func(repo store.Repository) error {
		payment, err := repo.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return paymentLookupError(err, paymentID)
		}
		if !principal.CanAccess(payment.UserID) {
			return apperr.New(apperr.KindForbidden, "user %d on payment %d", principal.UserID, paymentID)
		}

		proof, err = repo.GetPaymentProof(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindProofNotFound, "payment %d has no proof", paymentID)
		}
		return err
	})
	return proof, err
}
