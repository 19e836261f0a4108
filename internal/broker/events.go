package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes order domain events for downstream consumers.
// Publishing is best-effort: the state machine logs failures and moves on.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishOrderCreated publishes an ORDER_CREATED event.
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.OrderItemData{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		DeliveryType: order.DeliveryType,
		Total:        order.Total,
		Items:        items,
	}
	return ep.producer.Publish(ctx, orderKey(order.ID), event)
}

// PublishOrderStatus publishes an ORDER_STATUS_CHANGED event.
func (ep *EventPublisher) PublishOrderStatus(ctx context.Context, orderID int64, status, driverName string) error {
	event := &models.OrderStatusEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatus),
		OrderID:    orderID,
		Status:     status,
		DriverName: driverName,
	}
	return ep.producer.Publish(ctx, orderKey(orderID), event)
}

// PublishOrderCancelled publishes an ORDER_CANCELLED event.
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, orderID int64, refunded bool, reason string) error {
	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Refunded:  refunded,
		Reason:    reason,
	}
	return ep.producer.Publish(ctx, orderKey(orderID), event)
}

// PaymentEventHandler routes payment provider callback events.
type PaymentEventHandler struct {
	onSuccess func(context.Context, *models.PaymentSuccessEvent) error
	onFailed  func(context.Context, *models.PaymentFailedEvent) error
	logger    *zap.Logger
}

// NewPaymentEventHandler creates an empty handler.
func NewPaymentEventHandler() *PaymentEventHandler {
	return &PaymentEventHandler{logger: util.NamedLogger("payment-events")}
}

// OnSuccess registers a handler for PAYMENT_SUCCESS events.
func (h *PaymentEventHandler) OnSuccess(fn func(context.Context, *models.PaymentSuccessEvent) error) {
	h.onSuccess = fn
}

// OnFailed registers a handler for PAYMENT_FAILED events.
func (h *PaymentEventHandler) OnFailed(fn func(context.Context, *models.PaymentFailedEvent) error) {
	h.onFailed = fn
}

// HandleMessage routes one Kafka message to the registered handler.
func (h *PaymentEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	h.logger.Debug("handling event",
		zap.String("type", base.EventType),
		zap.String("event_id", base.EventID))

	switch base.EventType {
	case models.EventTypePaymentSuccess:
		if h.onSuccess != nil {
			var event models.PaymentSuccessEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentSuccess event: %w", err)
			}
			return h.onSuccess(ctx, &event)
		}

	case models.EventTypePaymentFailed:
		if h.onFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return h.onFailed(ctx, &event)
		}

	default:
		h.logger.Warn("unhandled event type", zap.String("type", base.EventType))
	}

	return nil
}
