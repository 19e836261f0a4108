package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/eventbus"
	"fulfillment-service/internal/guest"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	guests   *service.GuestService
	payments *service.PaymentService
	verifier *guest.Verifier
	bus      *eventbus.Bus
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	guests *service.GuestService,
	payments *service.PaymentService,
	verifier *guest.Verifier,
	bus *eventbus.Bus,
) *Handler {
	return &Handler{
		orders:   orders,
		guests:   guests,
		payments: payments,
		verifier: verifier,
		bus:      bus,
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
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateStatus)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/delivered", h.confirmDelivered)
		v1.GET("/orders/:id/payment", h.getPayment)
		v1.GET("/orders/:id/events", h.streamOrderEvents)

		v1.POST("/guest/orders", h.guestCheckout)
		v1.GET("/guest/order", h.guestGetOrder)
		v1.POST("/guest/order/delivered", h.guestConfirmDelivered)
		v1.GET("/guest/order/events", h.guestStreamEvents)

		v1.POST("/verify/request", h.verifyRequest)
		v1.POST("/verify/confirm", h.verifyConfirm)
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

// caller identity arrives from the gateway as trusted headers.
type caller struct {
	userID *int64
	role   string
	phone  string
}

func callerFrom(c *gin.Context) caller {
	var id *int64
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			id = &parsed
		}
	}
	return caller{
		userID: id,
		role:   c.GetHeader("X-User-Role"),
		phone:  c.GetHeader("X-User-Phone"),
	}
}

func orderIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return id, true
}

// writeError maps the application error taxonomy to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindTransient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	who := callerFrom(c)
	if err := h.orders.EnsureUserOwnsOrderOrAdmin(order, who.userID, who.role, who.phone); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// listOrders returns the caller's order history. An authenticated caller
// also sees legacy orders placed under their phone before signup.
func (h *Handler) listOrders(c *gin.Context) {
	who := callerFrom(c)

	if who.userID != nil {
		orders, err := h.orders.ListForUser(c.Request.Context(), *who.userID, who.phone)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
		return
	}

	phone := c.Query("phone")
	if phone == "" {
		writeError(c, apperr.New(apperr.KindUnauthorized, "login or phone query required"))
		return
	}
	orders, err := h.orders.ListByPhone(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type updateStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	DriverName string `json:"driver_name"`
}

// updateStatus moves an order along its lifecycle. Staff only.
func (h *Handler) updateStatus(c *gin.Context) {
	who := callerFrom(c)
	if who.role != "admin" && who.role != "staff" {
		writeError(c, apperr.New(apperr.KindForbidden, "staff role required"))
		return
	}

	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status, req.DriverName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	who := callerFrom(c)
	if err := h.orders.EnsureUserOwnsOrderOrAdmin(order, who.userID, who.role, who.phone); err != nil {
		writeError(c, err)
		return
	}

	cancelled, err := h.orders.Cancel(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

func (h *Handler) confirmDelivered(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	who := callerFrom(c)
	if err := h.orders.EnsureUserOwnsOrderOrAdmin(order, who.userID, who.role, who.phone); err != nil {
		writeError(c, err)
		return
	}

	delivered, err := h.orders.ConfirmDelivered(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivered)
}

func (h *Handler) getPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	who := callerFrom(c)
	if err := h.orders.EnsureUserOwnsOrderOrAdmin(order, who.userID, who.role, who.phone); err != nil {
		writeError(c, err)
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// streamOrderEvents pushes live order frames over SSE until the client
// disconnects.
func (h *Handler) streamOrderEvents(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	who := callerFrom(c)
	if err := h.orders.EnsureUserOwnsOrderOrAdmin(order, who.userID, who.role, who.phone); err != nil {
		writeError(c, err)
		return
	}

	h.streamFrames(c, orderID)
}

func (h *Handler) streamFrames(c *gin.Context, orderID int64) {
	sub := h.bus.Subscribe(orderID)
	defer h.bus.Unsubscribe(sub.ID)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case frame, open := <-sub.C:
			if !open {
				return false
			}
			c.SSEvent(frame.Type, frame)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type guestCheckoutRequest struct {
	service.CreateOrderRequest
	VerifyToken string `json:"verify_token"`
}

// guestCheckout places an order without an account and returns the
// session token scoping further reads.
func (h *Handler) guestCheckout(c *gin.Context) {
	var req guestCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, session, err := h.guests.CreateGuestOrder(c.Request.Context(), &req.CreateOrderRequest, req.VerifyToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":              order,
		"session_token":      session.Token,
		"session_expires_at": session.ExpiresAt,
	})
}

func guestToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer session token required"})
		return "", false
	}
	return token, true
}

func (h *Handler) guestGetOrder(c *gin.Context) {
	token, ok := guestToken(c)
	if !ok {
		return
	}

	view, err := h.guests.GetGuestOrder(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) guestConfirmDelivered(c *gin.Context) {
	token, ok := guestToken(c)
	if !ok {
		return
	}

	order, err := h.guests.ConfirmGuestDelivered(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":     order.ID,
		"status":       order.Status,
		"delivered_at": order.DeliveredAt,
	})
}

func (h *Handler) guestStreamEvents(c *gin.Context) {
	token, ok := guestToken(c)
	if !ok {
		return
	}

	view, err := h.guests.GetGuestOrder(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}

	h.streamFrames(c, view.OrderID)
}

type verifyRequestBody struct {
	Channel string `json:"channel" binding:"required"`
	Target  string `json:"target" binding:"required"`
}

func (h *Handler) verifyRequest(c *gin.Context) {
	var req verifyRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	requestID, err := h.verifier.Request(c.Request.Context(), req.Channel, req.Target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request_id": requestID})
}

type verifyConfirmBody struct {
	RequestID string `json:"request_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (h *Handler) verifyConfirm(c *gin.Context) {
	var req verifyConfirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := h.verifier.Confirm(req.RequestID, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verify_token": token})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
