package store

import (
	"context"

	"storefront/internal/models"
)

const paymentColumns = "id, order_id, user_id, amount, status, proof_url, reason, paid_at, created_at, updated_at"

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, user_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.q.QueryRowxContext(ctx, query,
		payment.OrderID, payment.UserID, payment.Amount, payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.q.GetContext(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &payment, nil
}

// GetPaymentForUpdate retrieves a payment and locks its row until the transaction ends
func (s *Store) GetPaymentForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.q.GetContext(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves the payment of an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.q.GetContext(ctx, &payment, "SELECT "+paymentColumns+" FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		return nil, notFound(err, "payment for order", orderID)
	}
	return &payment, nil
}

// ListPayments retrieves payments, newest first
func (s *Store) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	payments := []models.Payment{}
	if filter.Status != nil {
		err := s.q.SelectContext(ctx, &payments,
			"SELECT "+paymentColumns+" FROM payments WHERE status = $1 ORDER BY created_at DESC, id DESC",
			*filter.Status)
		return payments, err
	}
	err := s.q.SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments ORDER BY created_at DESC, id DESC")
	return payments, err
}

// UpdatePayment persists the mutable fields of a payment
func (s *Store) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return s.q.QueryRowxContext(ctx, `
		UPDATE payments
		SET status = $1, proof_url = $2, reason = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		payment.Status, payment.ProofURL, payment.Reason, payment.PaidAt, payment.ID,
	).Scan(&payment.UpdatedAt)
}

// SavePaymentProof stores or replaces the proof of a payment
func (s *Store) SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error {
	return s.q.QueryRowxContext(ctx, `
		INSERT INTO payment_proofs (payment_id, content_type, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_id) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, created_at = NOW()
		RETURNING created_at`,
		proof.PaymentID, proof.ContentType, proof.Data,
	).Scan(&proof.CreatedAt)
}

// GetPaymentProof retrieves the stored proof of a payment
func (s *Store) GetPaymentProof(ctx context.Context, paymentID int64) (*models.PaymentProof, error) {
	var proof models.PaymentProof
	err := s.q.GetContext(ctx, &proof,
		"SELECT payment_id, content_type, data, created_at FROM payment_proofs WHERE payment_id = $1", paymentID)
	if err != nil {
		return nil, notFound(err, "proof for payment", paymentID)
	}
	return &proof, nil
}
