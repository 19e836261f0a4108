package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/models"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// CreateOrder persists the order, its line-item snapshots and the payment
// row in one transaction. A failure here is fatal to the request.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var orderQuery string
	var args []interface{}
	if s.hasChatID {
		orderQuery = `
			INSERT INTO orders (user_id, status, delivery_type, customer_name, phone, address, email, chat_id,
				distance_km, subtotal, delivery_fee, tax, discount, total, expected_ready_at, expected_delivery_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING id, created_at, updated_at`
		args = []interface{}{
			order.UserID, order.Status, order.DeliveryType, order.CustomerName, order.Phone,
			order.Address, order.Email, order.ChatID, order.DistanceKm, order.Subtotal,
			order.DeliveryFee, order.Tax, order.Discount, order.Total,
			order.ExpectedReadyAt, order.ExpectedDeliveryAt,
		}
	} else {
		// Legacy schema without chat_id.
		orderQuery = `
			INSERT INTO orders (user_id, status, delivery_type, customer_name, phone, address, email,
				distance_km, subtotal, delivery_fee, tax, discount, total, expected_ready_at, expected_delivery_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, created_at, updated_at`
		args = []interface{}{
			order.UserID, order.Status, order.DeliveryType, order.CustomerName, order.Phone,
			order.Address, order.Email, order.DistanceKm, order.Subtotal,
			order.DeliveryFee, order.Tax, order.Discount, order.Total,
			order.ExpectedReadyAt, order.ExpectedDeliveryAt,
		}
	}

	row := tx.QueryRowxContext(ctx, orderQuery, args...)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, name, category, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].Name, items[i].Category, items[i].UnitPrice, items[i].Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	payment.OrderID = order.ID
	row = tx.QueryRowxContext(ctx, `
		INSERT INTO payments (order_id, method, status, qr_payload, provider_ref, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		payment.OrderID, payment.Method, payment.Status, payment.QRPayload, payment.ProviderRef, payment.Amount)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if isNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves the line-item snapshots for an order.
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus persists a status transition, stamping the driver name
// and delivery time when given.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string, driverName *string, deliveredAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1,
			driver_name = COALESCE($2, driver_name),
			delivered_at = COALESCE($3, delivered_at),
			updated_at = NOW()
		WHERE id = $4`,
		status, driverName, deliveredAt, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "order not found: %d", orderID)
	}
	return nil
}

// GetOrdersByPhone retrieves orders placed under a normalized phone.
func (s *Store) GetOrdersByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE phone = $1 ORDER BY created_at DESC", phone)
	return orders, err
}

// GetOrdersForUser retrieves a user's orders, including phone-matched
// legacy orders that were never linked to the account.
func (s *Store) GetOrdersForUser(ctx context.Context, userID int64, phone string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE user_id = $1 OR (user_id IS NULL AND phone = $2)
		ORDER BY created_at DESC`, userID, phone)
	return orders, err
}

// GetPaymentByOrderID retrieves the payment attached to an order.
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if isNoRows(err) {
		return nil, apperr.New(apperr.KindNotFound, "payment not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates the payment row of an order.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID int64, status, providerRef string, paidAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1,
			provider_ref = COALESCE(NULLIF($2, ''), provider_ref),
			paid_at = COALESCE($3, paid_at),
			updated_at = NOW()
		WHERE order_id = $4`,
		status, providerRef, paidAt, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "payment not found for order: %d", orderID)
	}
	return nil
}

// InsertOrderEvent appends an audit row for an order.
func (s *Store) InsertOrderEvent(ctx context.Context, orderID int64, kind, note string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO order_events (order_id, kind, note) VALUES ($1, $2, $3)",
		orderID, kind, note)
	return err
}
