package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderStatus    = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypePaymentSuccess = "PAYMENT_SUCCESS"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	DeliveryType string          `json:"delivery_type"`
	Total        int64           `json:"total"`
	Items        []OrderItemData `json:"items"`
}

// OrderStatusEvent published on every status transition
type OrderStatusEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	Status     string `json:"status"`
	DriverName string `json:"driver_name,omitempty"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	Refunded bool   `json:"refunded"`
	Reason   string `json:"reason,omitempty"`
}

// PaymentSuccessEvent consumed from the payment provider bridge
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	Amount      int64  `json:"amount"`
	ProviderRef string `json:"provider_ref"`
}

// PaymentFailedEvent consumed from the payment provider bridge
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
