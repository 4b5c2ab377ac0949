package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStock handles the stock read of a product
func (h *Handler) getStock(c *gin.Context) {
	productID, err := parseID(c, "id")
	if err != nil {
		renderError(c, err)
		return
	}

	view, err := h.catalog.GetStock(c.Request.Context(), productID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
