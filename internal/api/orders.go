package api

import (
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry order creation safely
const HeaderIdempotencyKey = "Idempotency-Key"

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		renderError(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(HeaderIdempotencyKey)

	res, err := h.orders.CreateOrder(c.Request.Context(), principal(c), &req)
	if err != nil {
		renderError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res.Order)
}

// listOrders handles the administrative order listing
func (h *Handler) listOrders(c *gin.Context) {
	var filter models.OrderFilter
	if s := c.Query("status"); s != "" {
		status := models.OrderStatus(s)
		if !status.Valid() {
			renderError(c, apperr.Validation(apperr.FieldError{Field: "status", Message: "unknown order status"}))
			return
		}
		filter.Status = &status
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// listMyOrders handles the caller's order listing
func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListMyOrders(c.Request.Context(), principal(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), principal(c), orderID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// getTimeline handles the status history of an order
func (h *Handler) getTimeline(c *gin.Context) {
	orderID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	history, err := h.orders.GetTimeline(c.Request.Context(), principal(c), orderID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "history": history})
}

// updateOrderStatus handles administrative status changes
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	var req service.UpdateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		renderError(c, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), principal(c), orderID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// cancelOrder handles the cancellation of a paid order
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	var req service.CancelOrderRequest
	if err := bindJSON(c, &req); err != nil {
		renderError(c, err)
		return
	}

	order, err := h.orders.CancelPaidOrder(c.Request.Context(), principal(c), orderID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
