package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/eventbus"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/pricing"
	"fulfillment-service/internal/taskqueue"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// Options carries the business configuration of the order service.
type Options struct {
	SheetSyncEnabled bool
	OpsEmail         string
	PromptPayID      string
}

// OrderService owns order and payment persistence, status transitions and
// the scheduling of retrying side-effect jobs. It is the only writer of
// order state.
type OrderService struct {
	store     Storage
	queue     *taskqueue.Queue
	pricing   *pricing.Engine
	bus       *eventbus.Bus
	publisher DomainPublisher

	sheets  SheetSync
	email   EmailSender
	chat    ChatSender
	printer ReceiptPrinter

	opts   Options
	now    func() time.Time
	logger *zap.Logger
}

// NewOrderService wires the state machine. publisher, sheets, email, chat
// and printer may each be nil; the matching side effects are skipped.
func NewOrderService(
	store Storage,
	queue *taskqueue.Queue,
	pricingEngine *pricing.Engine,
	bus *eventbus.Bus,
	publisher DomainPublisher,
	sheets SheetSync,
	email EmailSender,
	chat ChatSender,
	printer ReceiptPrinter,
	opts Options,
) *OrderService {
	return &OrderService{
		store:     store,
		queue:     queue,
		pricing:   pricingEngine,
		bus:       bus,
		publisher: publisher,
		sheets:    sheets,
		email:     email,
		chat:      chat,
		printer:   printer,
		opts:      opts,
		now:       time.Now,
		logger:    util.NamedLogger("orders"),
	}
}

// CartItem is one line of a submitted cart.
type CartItem struct {
	Name      string `json:"name" binding:"required"`
	Category  string `json:"category"`
	UnitPrice int64  `json:"unit_price" binding:"required,min=0"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CreateOrderRequest is a submitted cart plus delivery parameters.
type CreateOrderRequest struct {
	CustomerName        string     `json:"customer_name" binding:"required"`
	Phone               string     `json:"phone" binding:"required"`
	Address             string     `json:"address"`
	Email               string     `json:"email"`
	ChatID              string     `json:"chat_id"`
	DeliveryType        string     `json:"delivery_type" binding:"required"`
	DistanceKm          float64    `json:"distance_km"`
	PaymentMethod       string     `json:"payment_method" binding:"required"`
	DeliveryFeeOverride *int64     `json:"delivery_fee_override" binding:"omitempty,gte=0"`
	Items               []CartItem `json:"items" binding:"required,min=1"`
}

func (r *CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return apperr.New(apperr.KindValidation, "cart is empty")
	}
	if r.DeliveryType != models.DeliveryTypeDelivery && r.DeliveryType != models.DeliveryTypePickup {
		return apperr.New(apperr.KindValidation, "unknown delivery type: %s", r.DeliveryType)
	}
	if !models.ValidPaymentMethod(r.PaymentMethod) {
		return apperr.New(apperr.KindValidation, "unknown payment method: %s", r.PaymentMethod)
	}
	if r.DeliveryType == models.DeliveryTypeDelivery && r.Address == "" {
		return apperr.New(apperr.KindValidation, "delivery orders need an address")
	}
	if models.NormalizePhone(r.Phone) == "" {
		return apperr.New(apperr.KindValidation, "phone is required")
	}
	if r.DeliveryFeeOverride != nil && *r.DeliveryFeeOverride < 0 {
		return apperr.New(apperr.KindValidation, "delivery fee override cannot be negative")
	}
	return nil
}

// Create prices the cart, persists order + items + payment and schedules
// the side-effect jobs. Persistence failures propagate; job failures are
// retried in the background and never reach the caller.
func (s *OrderService) Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_cart").Inc()
		return nil, err
	}

	phone := models.NormalizePhone(req.Phone)

	items := make([]pricing.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.Item{
			Name:      it.Name,
			Category:  it.Category,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	quote := s.pricing.Quote(ctx, pricing.Input{
		Items:        items,
		DistanceKm:   req.DistanceKm,
		DeliveryType: req.DeliveryType,
		FeeOverride:  req.DeliveryFeeOverride,
		Now:          s.now(),
	})

	// Account linking is best-effort: a lookup failure must not block
	// checkout.
	var userID *int64
	if id, err := s.store.FindUserIDByPhone(ctx, phone); err != nil {
		s.logger.Warn("account lookup failed", zap.String("phone_last4", last4(phone)), zap.Error(err))
	} else {
		userID = id
	}

	order := &models.Order{
		UserID:             userID,
		Status:             models.OrderStatusReceived,
		DeliveryType:       req.DeliveryType,
		CustomerName:       req.CustomerName,
		Phone:              phone,
		Address:            req.Address,
		Email:              req.Email,
		ChatID:             req.ChatID,
		DistanceKm:         req.DistanceKm,
		Subtotal:           quote.Subtotal,
		DeliveryFee:        quote.DeliveryFee,
		Tax:                quote.Tax,
		Discount:           quote.Discount,
		Total:              quote.Total,
		ExpectedReadyAt:    &quote.ExpectedReadyAt,
		ExpectedDeliveryAt: quote.ExpectedDeliveryAt,
	}

	orderItems := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		orderItems = append(orderItems, models.OrderItem{
			Name:      it.Name,
			Category:  it.Category,
			UnitPrice: it.UnitPrice,
			Quantity:  qty,
		})
	}

	payment := &models.Payment{
		Method: req.PaymentMethod,
		Status: models.InitialPaymentStatus(req.PaymentMethod),
		Amount: quote.Total,
	}
	if req.PaymentMethod == models.PaymentMethodPromptPay {
		payment.QRPayload = promptPayPayload(s.opts.PromptPayID, quote.Total)
	}

	if err := s.store.CreateOrder(ctx, order, orderItems, payment); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.Items = orderItems
	order.Payment = payment

	util.OrdersCreatedTotal.WithLabelValues(order.DeliveryType).Inc()
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("delivery_type", order.DeliveryType),
		zap.Int64("total", order.Total))

	s.scheduleCreationJobs(order)

	s.bus.Emit(order.ID, eventbus.FrameCreated, map[string]interface{}{
		"status": order.Status,
		"total":  order.Total,
	})
	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
			s.logger.Error("failed to publish order created event", zap.Error(err))
		}
	}

	return order, nil
}

// scheduleCreationJobs enqueues the independently retrying side effects of
// a fresh order. Each job re-reads nothing: it closes over the snapshot it
// needs so retries stay consistent.
func (s *OrderService) scheduleCreationJobs(order *models.Order) {
	orderID := order.ID

	if s.opts.SheetSyncEnabled && s.sheets != nil {
		snapshot := *order
		s.queue.EnqueueOnce(
			fmt.Sprintf("sheet:append:%d", orderID),
			fmt.Sprintf("sheet-append-%d", orderID),
			func(ctx context.Context) error {
				return s.sheets.AppendOrder(ctx, &snapshot)
			})
	}

	if s.email != nil {
		subject := fmt.Sprintf("Order #%d received", orderID)
		body := orderSummaryText(order)
		s.queue.Enqueue(fmt.Sprintf("email-ops-%d", orderID), func(ctx context.Context) error {
			return s.email.Send(ctx, s.opts.OpsEmail, subject, body)
		})

		if order.UserID != nil {
			userID := *order.UserID
			s.queue.Enqueue(fmt.Sprintf("email-user-%d", orderID), func(ctx context.Context) error {
				to, err := s.store.GetUserEmail(ctx, userID)
				if err != nil {
					return err
				}
				if to == "" {
					return nil
				}
				return s.email.Send(ctx, to, subject, body)
			})
		}
	}

	if s.chat != nil && order.ChatID != "" {
		to := order.ChatID
		body := fmt.Sprintf("Order #%d confirmed. Total %d THB.", orderID, order.Total)
		s.queue.Enqueue(fmt.Sprintf("chat-%d", orderID), func(ctx context.Context) error {
			return s.chat.Push(ctx, to, body)
		})
	}
}

// UpdateStatus moves an order through its lifecycle. Transitioning into
// received schedules a kitchen print, guarded so a repeated call cannot
// double-print while one job is still in flight.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status, driverName string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.ValidOrderStatus(status) {
		return nil, apperr.New(apperr.KindValidation, "unknown order status: %s", status)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, status) {
		return nil, apperr.New(apperr.KindValidation,
			"cannot move order from %s to %s", order.Status, status)
	}

	var driver *string
	if driverName != "" {
		driver = &driverName
	}
	var deliveredAt *time.Time
	if status == models.OrderStatusDelivered {
		t := s.now()
		deliveredAt = &t
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, status, driver, deliveredAt); err != nil {
		return nil, err
	}
	order.Status = status
	if driver != nil {
		order.DriverName = *driver
	}
	order.DeliveredAt = deliveredAt

	util.OrderStatusTransitionsTotal.WithLabelValues(status).Inc()
	s.logger.Info("order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", status))

	s.bus.Emit(orderID, eventbus.FrameStatus, map[string]interface{}{
		"status":      status,
		"driver_name": driverName,
	})
	if s.publisher != nil {
		if err := s.publisher.PublishOrderStatus(ctx, orderID, status, driverName); err != nil {
			s.logger.Error("failed to publish status event", zap.Error(err))
		}
	}

	if status == models.OrderStatusReceived && s.printer != nil {
		s.queue.EnqueueOnce(
			fmt.Sprintf("print:%d", orderID),
			fmt.Sprintf("print-%d", orderID),
			func(ctx context.Context) error {
				return s.printer.PrintReceipt(ctx, orderID)
			})
	}
	s.scheduleSheetStatus(orderID, status)

	return order, nil
}

// Cancel terminates an order. A payment that never went through flips to
// refunded; no provider call is made, the refund is simulated and audited.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, models.OrderStatusCancelled) {
		return nil, apperr.New(apperr.KindValidation, "order %d is already %s", orderID, order.Status)
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled, nil, nil); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCancelled

	refunded := false
	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Warn("no payment to refund", zap.Int64("order_id", orderID), zap.Error(err))
	} else if payment.Status == models.PaymentStatusPending || payment.Status == models.PaymentStatusUnpaid {
		if err := s.store.UpdatePaymentStatus(ctx, orderID, models.PaymentStatusRefunded, "", nil); err != nil {
			return nil, err
		}
		refunded = true
		util.PaymentsMarkedTotal.WithLabelValues(models.PaymentStatusRefunded).Inc()
		if err := s.store.InsertOrderEvent(ctx, orderID, "refund_simulated",
			fmt.Sprintf("payment %d refunded on cancel", payment.ID)); err != nil {
			s.logger.Error("failed to record refund audit event", zap.Error(err))
		}
	}

	util.OrdersCancelledTotal.Inc()
	s.bus.Emit(orderID, eventbus.FrameStatus, map[string]interface{}{
		"status":   models.OrderStatusCancelled,
		"refunded": refunded,
	})
	if s.publisher != nil {
		if err := s.publisher.PublishOrderCancelled(ctx, orderID, refunded, ""); err != nil {
			s.logger.Error("failed to publish cancel event", zap.Error(err))
		}
	}
	s.scheduleSheetStatus(orderID, models.OrderStatusCancelled)

	return order, nil
}

// ConfirmDelivered is the customer-side "I got my food" action.
func (s *OrderService) ConfirmDelivered(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, models.OrderStatusDelivered, "")
}

// GetOrder returns an order with its items and payment attached.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err == nil {
		order.Payment = payment
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	return order, nil
}

// ListByPhone lists orders placed under a phone number.
func (s *OrderService) ListByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	normalized := models.NormalizePhone(phone)
	if normalized == "" {
		return nil, apperr.New(apperr.KindValidation, "phone is required")
	}
	return s.store.GetOrdersByPhone(ctx, normalized)
}

// ListForUser lists a user's orders plus phone-matched legacy orders that
// predate the account link.
func (s *OrderService) ListForUser(ctx context.Context, userID int64, phone string) ([]models.Order, error) {
	return s.store.GetOrdersForUser(ctx, userID, models.NormalizePhone(phone))
}

// RecordContactProof attaches a verified-contact audit row to an order.
func (s *OrderService) RecordContactProof(ctx context.Context, orderID int64, channel, target string) {
	note := fmt.Sprintf("%s verified: %s", channel, target)
	if err := s.store.InsertOrderEvent(ctx, orderID, "contact_verified", note); err != nil {
		s.logger.Error("failed to record contact proof", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// EnsureUserOwnsOrderOrAdmin authorizes an order read/write for an
// authenticated caller: admins always pass, owners pass, and a caller
// whose profile phone matches the order's phone passes.
func (s *OrderService) EnsureUserOwnsOrderOrAdmin(order *models.Order, userID *int64, role, userPhone string) error {
	if order == nil {
		return apperr.New(apperr.KindNotFound, "order not found")
	}
	if role == "admin" {
		return nil
	}
	if userID == nil {
		return apperr.New(apperr.KindUnauthorized, "login required")
	}
	if order.UserID != nil && *order.UserID == *userID {
		return nil
	}
	if userPhone != "" && models.NormalizePhone(userPhone) == order.Phone {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "order belongs to another customer")
}

// EnsurePhoneAccess authorizes an order read by phone match alone.
func (s *OrderService) EnsurePhoneAccess(order *models.Order, phone string) error {
	if order == nil {
		return apperr.New(apperr.KindNotFound, "order not found")
	}
	if phone == "" {
		return apperr.New(apperr.KindValidation, "phone is required")
	}
	if models.NormalizePhone(phone) != order.Phone {
		return apperr.New(apperr.KindForbidden, "phone does not match the order")
	}
	return nil
}

func (s *OrderService) scheduleSheetStatus(orderID int64, status string) {
	if !s.opts.SheetSyncEnabled || s.sheets == nil {
		return
	}
	s.queue.Enqueue(fmt.Sprintf("sheet-status-%d-%s", orderID, status),
		func(ctx context.Context) error {
			return s.sheets.UpdateStatus(ctx, orderID, status)
		})
}

// promptPayPayload builds the QR payload for a promptpay charge.
func promptPayPayload(promptPayID string, amount int64) string {
	return fmt.Sprintf("promptpay://%s?amount=%d", promptPayID, amount)
}

func orderSummaryText(order *models.Order) string {
	body := fmt.Sprintf("Order #%d (%s)\n", order.ID, order.DeliveryType)
	for _, it := range order.Items {
		body += fmt.Sprintf("  %dx %s @ %d\n", it.Quantity, it.Name, it.UnitPrice)
	}
	body += fmt.Sprintf("Subtotal %d, delivery %d, VAT %d, total %d THB\n",
		order.Subtotal, order.DeliveryFee, order.Tax, order.Total)
	return body
}

func last4(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
