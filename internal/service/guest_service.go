package service

import (
	"context"
	"time"

	"fulfillment-service/internal/guest"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// GuestService wraps the order state machine for unauthenticated
// customers: checkout mints a bearer-token session scoped to the new
// order, and reads come back privacy-masked.
type GuestService struct {
	orders   *OrderService
	sessions *guest.SessionStore
	verifier *guest.Verifier
	logger   *zap.Logger
}

// NewGuestService creates a new guest service.
func NewGuestService(orders *OrderService, sessions *guest.SessionStore, verifier *guest.Verifier) *GuestService {
	return &GuestService{
		orders:   orders,
		sessions: sessions,
		verifier: verifier,
		logger:   util.NamedLogger("guest"),
	}
}

// GuestOrderView is the masked summary a guest session may read.
type GuestOrderView struct {
	OrderID            int64                  `json:"order_id"`
	Status             string                 `json:"status"`
	DeliveryType       string                 `json:"delivery_type"`
	Subtotal           int64                  `json:"subtotal"`
	DeliveryFee        int64                  `json:"delivery_fee"`
	Tax                int64                  `json:"tax"`
	Total              int64                  `json:"total"`
	ExpectedReadyAt    *time.Time             `json:"expected_ready_at,omitempty"`
	ExpectedDeliveryAt *time.Time             `json:"expected_delivery_at,omitempty"`
	DeliveredAt        *time.Time             `json:"delivered_at,omitempty"`
	Items              []models.OrderItem     `json:"items,omitempty"`
	Contact            guest.MaskedContact    `json:"contact"`
	Verified           *guest.VerifiedContact `json:"verified,omitempty"`
	SessionExpiresAt   time.Time              `json:"session_expires_at"`
}

// CreateGuestOrder places an order for an anonymous customer. When a
// verification token is supplied it must redeem against the cart's
// contact before the order is created; the proof is recorded for audit.
func (g *GuestService) CreateGuestOrder(ctx context.Context, req *CreateOrderRequest, verifyToken string) (*models.Order, *guest.Session, error) {
	ctx, span := util.StartSpan(ctx, "GuestService.CreateGuestOrder")
	defer span.End()

	// Validate the cart before redeeming the token: a rejected cart must
	// not burn the single-use verification proof.
	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	var proof *guest.VerifiedContact
	if verifyToken != "" {
		var err error
		proof, err = g.verifier.ConsumeToken(verifyToken, req.Email, models.NormalizePhone(req.Phone))
		if err != nil {
			return nil, nil, err
		}
	}

	order, err := g.orders.Create(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if proof != nil {
		g.orders.RecordContactProof(ctx, order.ID, proof.Channel, proof.Target)
	}

	masked := guest.Mask(order.CustomerName, order.Phone, order.Email, order.ChatID)
	session := g.sessions.Create(order.ID, order.Status, masked, proof)

	g.logger.Info("guest session minted",
		zap.Int64("order_id", order.ID),
		zap.Bool("verified", proof != nil))

	return order, session, nil
}

// GetGuestOrder resolves a guest token to a masked order summary,
// refreshing the session's cached status from the live order.
func (g *GuestService) GetGuestOrder(ctx context.Context, token string) (*GuestOrderView, error) {
	ctx, span := util.StartSpan(ctx, "GuestService.GetGuestOrder")
	defer span.End()

	session, err := g.sessions.Get(token)
	if err != nil {
		return nil, err
	}

	order, err := g.orders.GetOrder(ctx, session.OrderID)
	if err != nil {
		return nil, err
	}

	g.sessions.UpdateStatus(token, order.Status)

	return &GuestOrderView{
		OrderID:            order.ID,
		Status:             order.Status,
		DeliveryType:       order.DeliveryType,
		Subtotal:           order.Subtotal,
		DeliveryFee:        order.DeliveryFee,
		Tax:                order.Tax,
		Total:              order.Total,
		ExpectedReadyAt:    order.ExpectedReadyAt,
		ExpectedDeliveryAt: order.ExpectedDeliveryAt,
		DeliveredAt:        order.DeliveredAt,
		Items:              order.Items,
		Contact:            session.Masked,
		Verified:           session.Verified,
		SessionExpiresAt:   session.ExpiresAt,
	}, nil
}

// ConfirmGuestDelivered lets a guest token confirm receipt of its order.
func (g *GuestService) ConfirmGuestDelivered(ctx context.Context, token string) (*models.Order, error) {
	session, err := g.sessions.Get(token)
	if err != nil {
		return nil, err
	}
	order, err := g.orders.ConfirmDelivered(ctx, session.OrderID)
	if err != nil {
		return nil, err
	}
	g.sessions.UpdateStatus(token, order.Status)
	return order, nil
}
