package models

import (
	"strings"
	"time"
)

// Order statuses
const (
	OrderStatusReceived       = "received"
	OrderStatusPreparing      = "preparing"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusCompleted      = "completed"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

// Delivery types
const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

// Payment methods
const (
	PaymentMethodPromptPay = "promptpay"
	PaymentMethodCard      = "card"
	PaymentMethodCOD       = "cod"
)

// Payment statuses
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Order represents a customer order. Money fields are whole THB.
type Order struct {
	ID                 int64      `db:"id" json:"id"`
	UserID             *int64     `db:"user_id" json:"user_id,omitempty"`
	Status             string     `db:"status" json:"status"`
	DeliveryType       string     `db:"delivery_type" json:"delivery_type"`
	CustomerName       string     `db:"customer_name" json:"customer_name"`
	Phone              string     `db:"phone" json:"phone"`
	Address            string     `db:"address" json:"address"`
	Email              string     `db:"email" json:"email,omitempty"`
	ChatID             string     `db:"chat_id" json:"chat_id,omitempty"`
	DistanceKm         float64    `db:"distance_km" json:"distance_km"`
	Subtotal           int64      `db:"subtotal" json:"subtotal"`
	DeliveryFee        int64      `db:"delivery_fee" json:"delivery_fee"`
	Tax                int64      `db:"tax" json:"tax"`
	Discount           int64      `db:"discount" json:"discount"`
	Total              int64      `db:"total" json:"total"`
	DriverName         string     `db:"driver_name" json:"driver_name,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	ExpectedReadyAt    *time.Time `db:"expected_ready_at" json:"expected_ready_at,omitempty"`
	ExpectedDeliveryAt *time.Time `db:"expected_delivery_at" json:"expected_delivery_at,omitempty"`
	DeliveredAt        *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	Payment *Payment    `db:"-" json:"payment,omitempty"`
	Items   []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of a catalog line at checkout time.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	Name      string `db:"name" json:"name"`
	Category  string `db:"category" json:"category"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// Payment is one-to-one with Order.
type Payment struct {
	ID          int64      `db:"id" json:"id"`
	OrderID     int64      `db:"order_id" json:"order_id"`
	Method      string     `db:"method" json:"method"`
	Status      string     `db:"status" json:"status"`
	QRPayload   string     `db:"qr_payload" json:"qr_payload,omitempty"`
	ProviderRef string     `db:"provider_ref" json:"provider_ref,omitempty"`
	Amount      int64      `db:"amount" json:"amount"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderEvent is an audit row recorded on payment and refund transitions.
type OrderEvent struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Kind      string    `db:"kind" json:"kind"`
	Note      string    `db:"note" json:"note"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var orderStatusRank = map[string]int{
	OrderStatusReceived:       0,
	OrderStatusPreparing:      1,
	OrderStatusOutForDelivery: 2,
	OrderStatusCompleted:      3,
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusReceived, OrderStatusPreparing, OrderStatusOutForDelivery,
		OrderStatusCompleted, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// TerminalOrderStatus reports whether s admits no further transitions.
func TerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another: the main chain only moves forward, cancelled is reachable from
// any non-terminal state and delivered from any active state.
func CanTransition(from, to string) bool {
	if TerminalOrderStatus(from) {
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusDelivered {
		return true
	}
	fromRank, ok := orderStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := orderStatusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// ValidPaymentMethod reports whether m is a known payment method.
func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodPromptPay || m == PaymentMethodCard || m == PaymentMethodCOD
}

// InitialPaymentStatus returns the payment status an order starts with:
// promptpay waits on a provider callback, everything else is unpaid.
func InitialPaymentStatus(method string) string {
	if method == PaymentMethodPromptPay {
		return PaymentStatusPending
	}
	return PaymentStatusUnpaid
}

// NormalizePhone strips everything but digits and rewrites a +66 prefix
// to the local leading zero.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "66") && len(digits) > 9 {
		digits = "0" + digits[2:]
	}
	return digits
}
