package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the proof itself
const multipartOverhead = 1 << 20

// listPayments handles the administrative payment listing
func (h *Handler) listPayments(c *gin.Context) {
	var filter models.PaymentFilter
	if s := c.Query("status"); s != "" {
		status := models.PaymentStatus(s)
		if !status.Valid() {
			renderError(c, apperr.Validation(apperr.FieldError{Field: "status", Message: "unknown payment status"}))
			return
		}
		filter.Status = &status
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), filter)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// getPayment handles get payment by ID
func (h *Handler) getPayment(c *gin.Context) {
	paymentID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), principal(c), paymentID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// submitProof handles the multipart upload of a payment proof
func (h *Handler) submitProof(c *gin.Context) {
	paymentID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	upload, err := h.readProof(c)
	if err != nil {
		renderError(c, err)
		return
	}

	payment, err := h.payments.SubmitProof(c.Request.Context(), principal(c), paymentID, upload)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) readProof(c *gin.Context) (*service.ProofUpload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxProofBytes+multipartOverhead)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, proofTooLarge(h.maxProofBytes)
		}
		return nil, apperr.Validation(apperr.FieldError{Field: "image", Message: "proof file is required"})
	}
	if header.Size > h.maxProofBytes {
		return nil, proofTooLarge(h.maxProofBytes)
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxProofBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxProofBytes {
		return nil, proofTooLarge(h.maxProofBytes)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &service.ProofUpload{ContentType: contentType, Data: data}, nil
}

func proofTooLarge(limit int64) error {
	return apperr.Validation(apperr.FieldError{
		Field:   "image",
		Message: fmt.Sprintf("file exceeds %d bytes", limit),
	})
}

// getProof streams a stored payment proof
func (h *Handler) getProof(c *gin.Context) {
	paymentID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	proof, err := h.payments.GetProof(c.Request.Context(), principal(c), paymentID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.Data(http.StatusOK, proof.ContentType, proof.Data)
}

// verifyPayment handles payment verification
func (h *Handler) verifyPayment(c *gin.Context) {
	h.reviewPayment(c, h.payments.Verify)
}

// rejectPayment handles payment rejection
func (h *Handler) rejectPayment(c *gin.Context) {
	h.reviewPayment(c, h.payments.Reject)
}

type reviewFunc func(ctx context.Context, p models.Principal, paymentID int64, req *service.ReviewRequest) (*models.Payment, error)

func (h *Handler) reviewPayment(c *gin.Context, review reviewFunc) {
	paymentID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	var req service.ReviewRequest
	if err := bindJSON(c, &req); err != nil {
		renderError(c, err)
		return
	}

	payment, err := review(c.Request.Context(), principal(c), paymentID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
