package service

import (
	"context"
	"sync"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/models"
)

// fakeStorage is an in-memory Storage for service tests.
type fakeStorage struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	payments map[int64]*models.Payment
	events   []models.OrderEvent
	users    map[string]int64  // phone -> user id
	emails   map[int64]string  // user id -> email
	failNext map[string]error  // method name -> forced error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		payments: make(map[int64]*models.Payment),
		users:    make(map[string]int64),
		emails:   make(map[int64]string),
		failNext: make(map[string]error),
	}
}

func (f *fakeStorage) forced(method string) error {
	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return err
	}
	return nil
}

func (f *fakeStorage) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("CreateOrder"); err != nil {
		return err
	}
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	f.orders[order.ID] = &stored
	for i := range items {
		items[i].OrderID = order.ID
		items[i].ID = int64(i + 1)
	}
	f.items[order.ID] = append([]models.OrderItem(nil), items...)
	payment.ID = order.ID
	payment.OrderID = order.ID
	storedPayment := *payment
	f.payments[order.ID] = &storedPayment
	return nil
}

func (f *fakeStorage) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "order not found: %d", id)
	}
	snapshot := *order
	return &snapshot, nil
}

func (f *fakeStorage) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.items[orderID]...), nil
}

func (f *fakeStorage) UpdateOrderStatus(ctx context.Context, orderID int64, status string, driverName *string, deliveredAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found: %d", orderID)
	}
	order.Status = status
	if driverName != nil {
		order.DriverName = *driverName
	}
	if deliveredAt != nil {
		order.DeliveredAt = deliveredAt
	}
	return nil
}

func (f *fakeStorage) GetOrdersByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.Phone == phone {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStorage) GetOrdersForUser(ctx context.Context, userID int64, phone string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if (o.UserID != nil && *o.UserID == userID) || (o.UserID == nil && o.Phone == phone) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStorage) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[orderID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "payment not found for order: %d", orderID)
	}
	snapshot := *payment
	return &snapshot, nil
}

func (f *fakeStorage) UpdatePaymentStatus(ctx context.Context, orderID int64, status, providerRef string, paidAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "payment not found for order: %d", orderID)
	}
	payment.Status = status
	if providerRef != "" {
		payment.ProviderRef = providerRef
	}
	if paidAt != nil {
		payment.PaidAt = paidAt
	}
	return nil
}

func (f *fakeStorage) InsertOrderEvent(ctx context.Context, orderID int64, kind, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, models.OrderEvent{
		ID:      int64(len(f.events) + 1),
		OrderID: orderID,
		Kind:    kind,
		Note:    note,
	})
	return nil
}

func (f *fakeStorage) FindUserIDByPhone(ctx context.Context, phone string) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("FindUserIDByPhone"); err != nil {
		return nil, err
	}
	if id, ok := f.users[phone]; ok {
		return &id, nil
	}
	return nil, nil
}

func (f *fakeStorage) GetUserEmail(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emails[userID], nil
}

func (f *fakeStorage) eventKinds(orderID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []string
	for _, e := range f.events {
		if e.OrderID == orderID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// countingSheet records sheet sync calls.
type countingSheet struct {
	mu       sync.Mutex
	appends  []int64
	statuses []string
	err      error
}

func (c *countingSheet) AppendOrder(ctx context.Context, order *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.appends = append(c.appends, order.ID)
	return nil
}

func (c *countingSheet) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.statuses = append(c.statuses, status)
	return nil
}

func (c *countingSheet) appendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.appends)
}

// countingEmail records sent mail.
type countingEmail struct {
	mu   sync.Mutex
	sent []string // recipients
}

func (c *countingEmail) Send(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return nil
}

func (c *countingEmail) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// countingPrinter records kitchen print dispatches.
type countingPrinter struct {
	mu      sync.Mutex
	printed []int64
	block   chan struct{} // when set, PrintReceipt waits on it
}

func (c *countingPrinter) PrintReceipt(ctx context.Context, orderID int64) error {
	c.mu.Lock()
	c.printed = append(c.printed, orderID)
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return nil
}

func (c *countingPrinter) printCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.printed)
}
