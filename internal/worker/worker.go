package worker

import (
	"context"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// PaymentWorker consumes payment provider outcomes from the payment
// topic and applies them to order payments. Handler errors leave the
// message uncommitted so the provider callback is retried.
type PaymentWorker struct {
	consumer *broker.Consumer
	handler  *broker.PaymentEventHandler
	logger   *zap.Logger
}

// NewPaymentWorker wires the payment topic to the payment service.
func NewPaymentWorker(consumer *broker.Consumer, payments *service.PaymentService) *PaymentWorker {
	handler := broker.NewPaymentEventHandler()

	handler.OnSuccess(func(ctx context.Context, event *models.PaymentSuccessEvent) error {
		return payments.MarkPaid(ctx, event.OrderID, event.ProviderRef, event.Amount)
	})
	handler.OnFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		return payments.MarkFailed(ctx, event.OrderID, event.Reason)
	})

	return &PaymentWorker{
		consumer: consumer,
		handler:  handler,
		logger:   util.NamedLogger("payment-worker"),
	}
}

// Start blocks consuming the payment topic until ctx is cancelled.
func (w *PaymentWorker) Start(ctx context.Context) error {
	w.logger.Info("payment worker starting")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop closes the underlying consumer.
func (w *PaymentWorker) Stop() error {
	w.logger.Info("payment worker stopping")
	return w.consumer.Close()
}
