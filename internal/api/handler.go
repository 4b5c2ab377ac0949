package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orders        *service.OrderService
	payments      *service.PaymentService
	catalog       *service.CatalogService
	maxProofBytes int64
	checks        map[string]ReadinessCheck
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, payments *service.PaymentService, catalog *service.CatalogService, maxProofBytes int64) *Handler {
	return &Handler{
		orders:        orders,
		payments:      payments,
		catalog:       catalog,
		maxProofBytes: maxProofBytes,
		checks:        map[string]ReadinessCheck{},
		logger:        util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", authenticate())
	admin := requireRole(models.RoleAdmin)
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", admin, h.listOrders)
		v1.GET("/orders/me", h.listMyOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/timeline", h.getTimeline)
		v1.PATCH("/orders/:id/status", admin, h.updateOrderStatus)
		v1.PATCH("/orders/:id/cancel", h.cancelOrder)

		v1.GET("/payments", admin, h.listPayments)
		v1.GET("/payments/:id", h.getPayment)
		v1.POST("/payments/:id/proof", h.submitProof)
		v1.GET("/payments/:id/proof", h.getProof)
		v1.PATCH("/payments/:id/verify", admin, h.verifyPayment)
		v1.PATCH("/payments/:id/reject", admin, h.rejectPayment)

		v1.GET("/products/:id/stock", h.getStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestLogger logs each request and stores a request-scoped logger in its context
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(util.ContextWithLogger(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.Info("Request handled",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
