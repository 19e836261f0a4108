package guest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fulfillment-service/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string // target -> last code
	fail  bool
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (c *captureSender) SendCode(ctx context.Context, channel, target, code string) error {
	if c.fail {
		return errors.New("smtp down")
	}
	c.mu.Lock()
	c.codes[target] = code
	c.mu.Unlock()
	return nil
}

func (c *captureSender) codeFor(target string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[target]
}

func newTestVerifier(sender CodeSender) *Verifier {
	return NewVerifier(sender, 10*time.Minute, 30*time.Minute, 5, time.Minute)
}

func TestVerificationRoundTrip(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)
	ctx := context.Background()

	id, err := v.Request(ctx, ChannelEmail, " User@X.com ")
	require.NoError(t, err)

	code := sender.codeFor("user@x.com")
	require.Len(t, code, 6, "target must be normalized before dispatch")

	token, err := v.Confirm(id, code)
	require.NoError(t, err)

	proof, err := v.ConsumeToken(token, "user@x.com", "")
	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, proof.Channel)
	assert.Equal(t, "user@x.com", proof.Target)
	assert.False(t, proof.VerifiedAt.IsZero())

	// Single use: a second redemption fails.
	_, err = v.ConsumeToken(token, "user@x.com", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestPhoneChannelIsRejected(t *testing.T) {
	v := newTestVerifier(newCaptureSender())
	_, err := v.Request(context.Background(), ChannelPhone, "0812345678")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestInvalidEmailIsRejected(t *testing.T) {
	v := newTestVerifier(newCaptureSender())
	for _, addr := range []string{"", "nope", "a@b", "a b@x.com"} {
		_, err := v.Request(context.Background(), ChannelEmail, addr)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "address %q", addr)
	}
}

func TestSenderFailureIsTransient(t *testing.T) {
	sender := newCaptureSender()
	sender.fail = true
	v := newTestVerifier(sender)

	_, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
}

func TestFiveWrongCodesInvalidateRequest(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)

	id, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = v.Confirm(id, "000000")
		require.Error(t, err)
	}

	// Even the right code no longer works: the request is gone.
	_, err = v.Confirm(id, sender.codeFor("user@x.com"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestExpiredRequestIsRejected(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	id, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = v.Confirm(id, sender.codeFor("user@x.com"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestTokenBoundToTarget(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)

	id, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	require.NoError(t, err)
	token, err := v.Confirm(id, sender.codeFor("user@x.com"))
	require.NoError(t, err)

	_, err = v.ConsumeToken(token, "other@x.com", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// The failed attempt must not consume the token.
	proof, err := v.ConsumeToken(token, "user@x.com", "")
	require.NoError(t, err)
	assert.Equal(t, "user@x.com", proof.Target)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	id, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	require.NoError(t, err)
	token, err := v.Confirm(id, sender.codeFor("user@x.com"))
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	_, err = v.ConsumeToken(token, "user@x.com", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSweepDropsExpiredState(t *testing.T) {
	sender := newCaptureSender()
	v := newTestVerifier(sender)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	_, err := v.Request(context.Background(), ChannelEmail, "user@x.com")
	require.NoError(t, err)
	id2, err := v.Request(context.Background(), ChannelEmail, "late@x.com")
	require.NoError(t, err)
	_, err = v.Confirm(id2, sender.codeFor("late@x.com"))
	require.NoError(t, err)

	now = now.Add(time.Hour)
	v.purgeExpired()

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Empty(t, v.requests)
	assert.Empty(t, v.tokens)
}
