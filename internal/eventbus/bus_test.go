package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Frame {
	t.Helper()
	select {
	case f, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func TestSubscribeDeliversHandshake(t *testing.T) {
	b := New()
	sub := b.Subscribe(7)
	defer b.Unsubscribe(sub.ID)

	f := recv(t, sub)
	assert.Equal(t, FrameConnected, f.Type)
	assert.Equal(t, int64(7), f.OrderID)
}

func TestEmitReachesCurrentSubscribers(t *testing.T) {
	b := New()
	sub := b.Subscribe(7)
	defer b.Unsubscribe(sub.ID)
	recv(t, sub) // handshake

	b.Emit(7, FrameStatus, map[string]string{"status": "preparing"})

	f := recv(t, sub)
	assert.Equal(t, FrameStatus, f.Type)
	assert.Equal(t, int64(7), f.OrderID)
}

func TestLateSubscriberMissesPastEvents(t *testing.T) {
	b := New()

	b.Emit(7, FrameStatus, nil) // nobody listening

	sub := b.Subscribe(7)
	defer b.Unsubscribe(sub.ID)
	recv(t, sub) // handshake

	select {
	case f := <-sub.C:
		t.Fatalf("unexpected frame: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitIsScopedToOrder(t *testing.T) {
	b := New()
	subA := b.Subscribe(1)
	subB := b.Subscribe(2)
	defer b.Unsubscribe(subA.ID)
	defer b.Unsubscribe(subB.ID)
	recv(t, subA)
	recv(t, subB)

	b.Emit(1, FrameStatus, nil)

	recv(t, subA)
	select {
	case f := <-subB.C:
		t.Fatalf("frame leaked across orders: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(7)
	recv(t, sub)

	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount(7))

	// Emits after unsubscribe must not panic or deliver.
	b.Emit(7, FrameStatus, nil)

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := New()
	_ = b.Subscribe(7) // never drained

	for i := 0; i < subscriberBuffer+1; i++ {
		b.Emit(7, FrameStatus, i)
	}

	assert.Equal(t, 0, b.SubscriberCount(7))
}
