package service

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
)

// Collaborator contracts the fulfillment core depends on. Implementations
// live at the edges (real transports or the dev stubs in
// internal/external); the core only drives their retries.

// SheetSync appends orders to the external ledger and keeps their status
// column current. Both operations are idempotent by content.
type SheetSync interface {
	AppendOrder(ctx context.Context, order *models.Order) error
	UpdateStatus(ctx context.Context, orderID int64, status string) error
}

// EmailSender delivers a plain-text email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ChatSender pushes a message to a chat-platform user.
type ChatSender interface {
	Push(ctx context.Context, to, body string) error
}

// ReceiptPrinter dispatches a kitchen receipt print.
type ReceiptPrinter interface {
	PrintReceipt(ctx context.Context, orderID int64) error
}

// RoutingClient asks an external service for travel minutes over a
// delivery distance. An error means no estimate is available.
type RoutingClient interface {
	RouteMinutes(ctx context.Context, distanceKm float64) (int, error)
}

// Storage is the persistence surface the services need; *store.Store
// implements it, tests use an in-memory fake.
type Storage interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string, driverName *string, deliveredAt *time.Time) error
	GetOrdersByPhone(ctx context.Context, phone string) ([]models.Order, error)
	GetOrdersForUser(ctx context.Context, userID int64, phone string) ([]models.Order, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status, providerRef string, paidAt *time.Time) error
	InsertOrderEvent(ctx context.Context, orderID int64, kind, note string) error
	FindUserIDByPhone(ctx context.Context, phone string) (*int64, error)
	GetUserEmail(ctx context.Context, userID int64) (string, error)
}

// DomainPublisher pushes order events to downstream consumers. Publishing
// is best-effort; nil disables it.
type DomainPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatus(ctx context.Context, orderID int64, status, driverName string) error
	PublishOrderCancelled(ctx context.Context, orderID int64, refunded bool, reason string) error
}
