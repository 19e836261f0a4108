package service

import (
	"context"
	"testing"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/guest"
	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	lastCode string
}

func (r *recordingSender) SendCode(ctx context.Context, channel, target, code string) error {
	r.lastCode = code
	return nil
}

func newGuestFixture(t *testing.T) (*GuestService, *fixture, *recordingSender) {
	t.Helper()
	f := newFixture(t, Options{})
	sender := &recordingSender{}
	sessions := guest.NewSessionStore(time.Hour, time.Hour)
	verifier := guest.NewVerifier(sender, time.Hour, time.Hour, 5, time.Hour)
	return NewGuestService(f.svc, sessions, verifier), f, sender
}

func TestGuestCheckoutWithoutVerification(t *testing.T) {
	gs, _, _ := newGuestFixture(t)

	req := codRequest()
	order, session, err := gs.CreateGuestOrder(context.Background(), req, "")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, order.ID, session.OrderID)
	assert.Nil(t, session.Verified)
}

func TestGuestCheckoutWithVerifiedEmail(t *testing.T) {
	gs, f, sender := newGuestFixture(t)

	req := codRequest()
	req.Email = "somchai@x.com"

	reqID, err := gs.verifier.Request(context.Background(), guest.ChannelEmail, req.Email)
	require.NoError(t, err)
	token, err := gs.verifier.Confirm(reqID, sender.lastCode)
	require.NoError(t, err)

	order, session, err := gs.CreateGuestOrder(context.Background(), req, token)
	require.NoError(t, err)
	require.NotNil(t, session.Verified)
	assert.Equal(t, guest.ChannelEmail, session.Verified.Channel)
	assert.Contains(t, f.store.eventKinds(order.ID), "contact_verified")

	// The token is single use.
	_, _, err = gs.CreateGuestOrder(context.Background(), req, token)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGuestCheckoutRejectedCartKeepsToken(t *testing.T) {
	gs, _, sender := newGuestFixture(t)

	reqID, err := gs.verifier.Request(context.Background(), guest.ChannelEmail, "somchai@x.com")
	require.NoError(t, err)
	token, err := gs.verifier.Confirm(reqID, sender.lastCode)
	require.NoError(t, err)

	bad := codRequest()
	bad.Email = "somchai@x.com"
	bad.Items = nil
	_, _, err = gs.CreateGuestOrder(context.Background(), bad, token)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// The token survives the rejected cart and still redeems.
	good := codRequest()
	good.Email = "somchai@x.com"
	_, session, err := gs.CreateGuestOrder(context.Background(), good, token)
	require.NoError(t, err)
	require.NotNil(t, session.Verified)
}

func TestGuestCheckoutTokenMismatchRejects(t *testing.T) {
	gs, f, sender := newGuestFixture(t)

	reqID, err := gs.verifier.Request(context.Background(), guest.ChannelEmail, "other@x.com")
	require.NoError(t, err)
	token, err := gs.verifier.Confirm(reqID, sender.lastCode)
	require.NoError(t, err)

	req := codRequest()
	req.Email = "somchai@x.com"
	_, _, err = gs.CreateGuestOrder(context.Background(), req, token)
	require.Error(t, err)

	// Nothing was persisted.
	assert.Empty(t, f.store.orders)
}

func TestGuestReadIsMasked(t *testing.T) {
	gs, f, _ := newGuestFixture(t)

	req := codRequest()
	req.Email = "somchai@x.com"
	order, session, err := gs.CreateGuestOrder(context.Background(), req, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusPreparing, "")
	require.NoError(t, err)

	view, err := gs.GetGuestOrder(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, view.Status)
	assert.Equal(t, int64(653), view.Total)
	assert.NotContains(t, view.Contact.Phone, "0812345")
	assert.Equal(t, "5678", view.Contact.Phone[len(view.Contact.Phone)-4:])
	assert.NotEqual(t, req.Email, view.Contact.Email)
}

func TestGuestReadUnknownToken(t *testing.T) {
	gs, _, _ := newGuestFixture(t)

	_, err := gs.GetGuestOrder(context.Background(), "no-such-token")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGuestConfirmDelivered(t *testing.T) {
	gs, f, _ := newGuestFixture(t)

	order, session, err := gs.CreateGuestOrder(context.Background(), codRequest(), "")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatusOutForDelivery, "Lek")
	require.NoError(t, err)

	delivered, err := gs.ConfirmGuestDelivered(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	view, err := gs.GetGuestOrder(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, view.Status)
}
