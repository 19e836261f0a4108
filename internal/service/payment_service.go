package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/eventbus"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// PaymentService applies the status transitions triggered by payment
// provider callbacks. The provider protocol itself lives outside this
// service; only the outcomes arrive here.
type PaymentService struct {
	store  Storage
	bus    *eventbus.Bus
	now    func() time.Time
	logger *zap.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(store Storage, bus *eventbus.Bus) *PaymentService {
	return &PaymentService{
		store:  store,
		bus:    bus,
		now:    time.Now,
		logger: util.NamedLogger("payments"),
	}
}

// MarkPaid records a confirmed charge against an order's payment.
func (ps *PaymentService) MarkPaid(ctx context.Context, orderID int64, providerRef string, amount int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.MarkPaid")
	defer span.End()

	paidAt := ps.now()
	if err := ps.store.UpdatePaymentStatus(ctx, orderID, models.PaymentStatusPaid, providerRef, &paidAt); err != nil {
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}

	util.PaymentsMarkedTotal.WithLabelValues(models.PaymentStatusPaid).Inc()
	ps.logger.Info("payment confirmed",
		zap.Int64("order_id", orderID),
		zap.String("provider_ref", providerRef),
		zap.Int64("amount", amount))

	if err := ps.store.InsertOrderEvent(ctx, orderID, "payment_confirmed",
		fmt.Sprintf("provider ref %s, amount %d", providerRef, amount)); err != nil {
		ps.logger.Error("failed to record payment audit event", zap.Error(err))
	}

	ps.bus.Emit(orderID, eventbus.FramePayment, map[string]interface{}{
		"status":       models.PaymentStatusPaid,
		"provider_ref": providerRef,
	})
	return nil
}

// MarkFailed records a declined charge. The payment drops back to unpaid
// so the customer can retry or switch method.
func (ps *PaymentService) MarkFailed(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.MarkFailed")
	defer span.End()

	if err := ps.store.UpdatePaymentStatus(ctx, orderID, models.PaymentStatusUnpaid, "", nil); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	util.PaymentsMarkedTotal.WithLabelValues("failed").Inc()
	ps.logger.Warn("payment failed",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	if err := ps.store.InsertOrderEvent(ctx, orderID, "payment_failed", reason); err != nil {
		ps.logger.Error("failed to record payment audit event", zap.Error(err))
	}

	ps.bus.Emit(orderID, eventbus.FramePayment, map[string]interface{}{
		"status": models.PaymentStatusUnpaid,
		"reason": reason,
	})
	return nil
}

// GetPayment retrieves the payment attached to an order.
func (ps *PaymentService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	return ps.store.GetPaymentByOrderID(ctx, orderID)
}
