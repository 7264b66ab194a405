package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/cart"
	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	carts     *cart.Service
	orders    *service.OrderService
	reviews   *service.ReviewService
	reports   *service.ReportService
	store     *store.Store
	redis     *redisclient.Client
	jwtSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *cart.Service,
	orders *service.OrderService,
	reviews *service.ReviewService,
	reports *service.ReportService,
	store *store.Store,
	redis *redisclient.Client,
	jwtSecret string,
) *Handler {
	return &Handler{
		carts:     carts,
		orders:    orders,
		reviews:   reviews,
		reports:   reports,
		store:     store,
		redis:     redis,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authRequired(h.jwtSecret))
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addToCart)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)

		v1.GET("/orders", h.listOrders)
		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.GET("/orders/:id/eta", h.getOrderETA)

		v1.GET("/reviews", h.listReviews)
		v1.POST("/reviews", h.createReview)

		v1.POST("/reports", h.fileReport)

		admin := v1.Group("/admin")
		admin.Use(roleRequired(models.RoleAdmin))
		{
			admin.GET("/reports", h.listReports)
			admin.PATCH("/reports/:id", h.moderateReport)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
	Force     bool  `json:"force"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	buyerCart, err := h.carts.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buyerCart)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), req.ProductID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "details": err.Error()})
		return
	}

	buyerID := currentUserID(c)

	if req.Force {
		buyerCart, err := h.carts.ForceAddToCart(c.Request.Context(), buyerID, product, req.Quantity)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, buyerCart)
		return
	}

	added, buyerCart, err := h.carts.AddToCart(c.Request.Context(), buyerID, product, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !added {
		// the caller should confirm and retry with force=true
		c.JSON(http.StatusConflict, gin.H{
			"error": "Product already in cart",
			"cart":  buyerCart,
		})
		return
	}
	c.JSON(http.StatusCreated, buyerCart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	buyerCart, err := h.carts.UpdateQuantity(c.Request.Context(), currentUserID(c), c.Param("id"), req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buyerCart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	buyerCart, err := h.carts.RemoveFromCart(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buyerCart)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listOrders(c *gin.Context) {
	buyerID, _ := strconv.ParseInt(c.Query("buyer_id"), 10, 64)
	sellerID, _ := strconv.ParseInt(c.Query("seller_id"), 10, 64)
	status := c.Query("status")

	orders, err := h.orders.FetchOrders(c.Request.Context(), buyerID, sellerID, status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.BuyerID = currentUserID(c)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	orders, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// checkout consumed the cart
	if err := h.carts.Clear(c.Request.Context(), req.BuyerID); err != nil {
		c.JSON(http.StatusCreated, gin.H{"orders": orders, "warning": "cart not cleared"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING PROCESSING SHIPPED DELIVERED CANCELLED"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var order *models.Order
	if req.Status == models.OrderStatusCancelled {
		order, err = h.orders.CancelOrder(c.Request.Context(), orderID, "cancelled via API")
	} else {
		order, err = h.orders.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderETA(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	eta, err := h.redis.GetDeliveryETA(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if eta == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No delivery estimate available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "eta": eta})
}

func (h *Handler) listReviews(c *gin.Context) {
	ctx := c.Request.Context()

	if sellerID, err := strconv.ParseInt(c.Query("seller_id"), 10, 64); err == nil && sellerID != 0 {
		reviews, err := h.reviews.FetchReviewsBySeller(ctx, sellerID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reviews": reviews})
		return
	}

	if productID, err := strconv.ParseInt(c.Query("product_id"), 10, 64); err == nil && productID != 0 {
		reviews, err := h.reviews.FetchReviewsByProduct(ctx, productID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reviews": reviews})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "seller_id or product_id is required"})
}

func (h *Handler) createReview(c *gin.Context) {
	var req service.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.BuyerID = currentUserID(c)

	review, err := h.reviews.CreateReview(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) fileReport(c *gin.Context) {
	var req service.FileReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.ReporterID = currentUserID(c)
	req.ReporterName = c.GetString(ctxUserName)

	report, err := h.reports.FileReport(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *Handler) listReports(c *gin.Context) {
	reports, err := h.reports.ListReports(c.Request.Context(), c.Query("status"), c.Query("priority"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) moderateReport(c *gin.Context) {
	reportID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	var req service.ModerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	report, err := h.reports.ModerateReport(c.Request.Context(), reportID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// respondError maps domain errors onto HTTP statuses, surfacing the error
// message in the body with a fallback string.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Request failed"

	switch {
	case errors.Is(err, cart.ErrStockExceeded),
		errors.Is(err, service.ErrInsufficientStock):
		status = http.StatusConflict
		message = "Insufficient stock"
	case errors.Is(err, cart.ErrItemNotFound):
		status = http.StatusNotFound
		message = "Cart item not found"
	case errors.Is(err, service.ErrEmptyOrder):
		status = http.StatusBadRequest
		message = "Cart is empty"
	case errors.Is(err, service.ErrInvalidTransition):
		status = http.StatusConflict
		message = "Illegal status transition"
	case errors.Is(err, service.ErrRatingOutOfRange),
		errors.Is(err, service.ErrCommentTooLong),
		errors.Is(err, service.ErrInvalidReportTarget):
		status = http.StatusBadRequest
		message = "Invalid request"
	case errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrDuplicateReport):
		status = http.StatusConflict
		message = "Already exists"
	case errors.Is(err, service.ErrNotReviewable),
		errors.Is(err, service.ErrReportClosed):
		status = http.StatusUnprocessableEntity
		message = "Operation not allowed"
	}

	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}
