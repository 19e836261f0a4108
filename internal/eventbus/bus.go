// Package eventbus fans order status events out to live-connected clients.
// There is no backlog: a subscriber only sees events emitted while it is
// connected, which is fine for a live-status UI that refetches on connect.
package eventbus

import (
	"sync"
	"time"

	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Frame types
const (
	FrameConnected = "connected"
	FrameCreated   = "created"
	FrameStatus    = "status"
	FramePayment   = "payment"
)

// Frame is one server-push event.
type Frame struct {
	Type    string      `json:"type"`
	OrderID int64       `json:"orderId"`
	Payload interface{} `json:"payload,omitempty"`
	TS      time.Time   `json:"ts"`
}

// subscriberBuffer bounds how far a consumer may lag before it is dropped.
const subscriberBuffer = 16

// Subscription is one connected client for one order. Frames arrive on C
// until the subscription is closed.
type Subscription struct {
	ID      string
	OrderID int64
	C       chan Frame

	closeOnce sync.Once
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.C) })
}

// Bus is the per-order multicast hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]map[string]*Subscription
	now    func() time.Time
	logger *zap.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[int64]map[string]*Subscription),
		now:    time.Now,
		logger: util.NamedLogger("eventbus"),
	}
}

// Subscribe registers a client for an order's events. The handshake frame
// is already buffered when Subscribe returns. The caller must Unsubscribe
// when the underlying connection goes away.
func (b *Bus) Subscribe(orderID int64) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		OrderID: orderID,
		C:       make(chan Frame, subscriberBuffer),
	}
	sub.C <- Frame{Type: FrameConnected, OrderID: orderID, TS: b.now()}

	b.mu.Lock()
	if b.subs[orderID] == nil {
		b.subs[orderID] = make(map[string]*Subscription)
	}
	b.subs[orderID][sub.ID] = sub
	b.mu.Unlock()

	util.EventBusSubscribers.Inc()
	return sub
}

// Unsubscribe removes and closes a subscription. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	var found *Subscription
	for orderID, subs := range b.subs {
		if sub, ok := subs[id]; ok {
			found = sub
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, orderID)
			}
			break
		}
	}
	b.mu.Unlock()

	if found != nil {
		found.close()
		util.EventBusSubscribers.Dec()
	}
}

// Emit delivers a frame to every current subscriber of the order. A
// subscriber whose buffer is full is dropped, the way a broken connection
// would be.
func (b *Bus) Emit(orderID int64, frameType string, payload interface{}) {
	frame := Frame{Type: frameType, OrderID: orderID, Payload: payload, TS: b.now()}

	b.mu.RLock()
	var stale []string
	for id, sub := range b.subs[orderID] {
		select {
		case sub.C <- frame:
		default:
			stale = append(stale, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range stale {
		b.logger.Warn("dropping slow subscriber",
			zap.String("subscription_id", id),
			zap.Int64("order_id", orderID))
		util.EventBusDroppedTotal.Inc()
		b.Unsubscribe(id)
	}
}

// SubscriberCount returns how many clients are attached to an order.
func (b *Bus) SubscriberCount(orderID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[orderID])
}
