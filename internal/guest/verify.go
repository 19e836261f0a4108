package guest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verification channels
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// CodeSender dispatches a one-time code over a contact channel.
type CodeSender interface {
	SendCode(ctx context.Context, channel, target, code string) error
}

type verificationRequest struct {
	id        string
	channel   string
	target    string
	code      string
	expiresAt time.Time
	attempts  int
}

type verificationToken struct {
	token     string
	channel   string
	target    string
	expiresAt time.Time
}

// Verifier runs the OTP round-trip: Request sends a 6-digit code, Confirm
// trades the correct code for a single-use token, ConsumeToken checks the
// token against the contact it was issued for.
type Verifier struct {
	mu       sync.Mutex
	requests map[string]*verificationRequest
	tokens   map[string]*verificationToken

	sender      CodeSender
	requestTTL  time.Duration
	tokenTTL    time.Duration
	maxAttempts int
	sweep       time.Duration
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewVerifier creates a verifier. Zero TTLs fall back to 10m requests,
// 30m tokens, 5 attempts and a 1m sweep.
func NewVerifier(sender CodeSender, requestTTL, tokenTTL time.Duration, maxAttempts int, sweepInterval time.Duration) *Verifier {
	if requestTTL <= 0 {
		requestTTL = 10 * time.Minute
	}
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Verifier{
		requests:    make(map[string]*verificationRequest),
		tokens:      make(map[string]*verificationToken),
		sender:      sender,
		requestTTL:  requestTTL,
		tokenTTL:    tokenTTL,
		maxAttempts: maxAttempts,
		sweep:       sweepInterval,
		now:         time.Now,
		stop:        make(chan struct{}),
		logger:      util.NamedLogger("verifier"),
	}
}

// Start runs the background sweep of expired requests and tokens.
func (v *Verifier) Start(ctx context.Context) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(v.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				v.purgeExpired()
			case <-ctx.Done():
				return
			case <-v.stop:
				return
			}
		}
	}()
}

// Shutdown stops the sweep loop.
func (v *Verifier) Shutdown() {
	v.stopOnce.Do(func() { close(v.stop) })
	v.wg.Wait()
}

// Request normalizes the target, stores a short-lived 6-digit code and
// dispatches it over the channel's transport. The phone channel is not
// offered yet and is rejected outright.
func (v *Verifier) Request(ctx context.Context, channel, target string) (string, error) {
	switch channel {
	case ChannelEmail:
		target = strings.ToLower(strings.TrimSpace(target))
		if !emailPattern.MatchString(target) {
			return "", apperr.New(apperr.KindValidation, "invalid email address")
		}
	case ChannelPhone:
		return "", apperr.New(apperr.KindValidation, "phone verification is not available")
	default:
		return "", apperr.New(apperr.KindValidation, "unknown verification channel: %s", channel)
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	req := &verificationRequest{
		id:        uuid.NewString(),
		channel:   channel,
		target:    target,
		code:      code,
		expiresAt: v.now().Add(v.requestTTL),
	}

	if err := v.sender.SendCode(ctx, channel, target, code); err != nil {
		return "", apperr.Wrap(apperr.KindTransient, err, "failed to send verification code")
	}

	v.mu.Lock()
	v.requests[req.id] = req
	v.mu.Unlock()

	util.VerificationRequestsTotal.WithLabelValues(channel).Inc()
	v.logger.Info("verification code sent",
		zap.String("request_id", req.id),
		zap.String("channel", channel))
	return req.id, nil
}

// Confirm trades a correct code for a single-use verification token.
// A wrong code burns an attempt; the request is deleted after the cap.
func (v *Verifier) Confirm(requestID, code string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, ok := v.requests[requestID]
	if !ok {
		util.VerificationFailuresTotal.WithLabelValues("unknown_request").Inc()
		return "", apperr.New(apperr.KindNotFound, "verification request not found")
	}
	if !v.now().Before(req.expiresAt) {
		delete(v.requests, requestID)
		util.VerificationFailuresTotal.WithLabelValues("expired").Inc()
		return "", apperr.New(apperr.KindValidation, "verification request expired")
	}

	if code != req.code {
		req.attempts++
		util.VerificationFailuresTotal.WithLabelValues("wrong_code").Inc()
		if req.attempts >= v.maxAttempts {
			delete(v.requests, requestID)
			return "", apperr.New(apperr.KindValidation, "too many wrong codes, request a new one")
		}
		return "", apperr.New(apperr.KindValidation, "wrong verification code")
	}

	delete(v.requests, requestID)

	tok := &verificationToken{
		token:     uuid.NewString(),
		channel:   req.channel,
		target:    req.target,
		expiresAt: v.now().Add(v.tokenTTL),
	}
	v.tokens[tok.token] = tok

	return tok.token, nil
}

// ConsumeToken redeems a verification token against the contact the code
// was actually sent to. The token is deleted on success; it proves exactly
// one checkout.
func (v *Verifier) ConsumeToken(token, email, phone string) (*VerifiedContact, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tok, ok := v.tokens[token]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "verification token not found")
	}
	if !v.now().Before(tok.expiresAt) {
		delete(v.tokens, token)
		return nil, apperr.New(apperr.KindValidation, "verification token expired")
	}

	var supplied string
	switch tok.channel {
	case ChannelEmail:
		supplied = strings.ToLower(strings.TrimSpace(email))
	case ChannelPhone:
		supplied = phone
	}
	if supplied == "" || supplied != tok.target {
		util.VerificationFailuresTotal.WithLabelValues("target_mismatch").Inc()
		return nil, apperr.New(apperr.KindValidation, "contact does not match the verified target")
	}

	delete(v.tokens, token)

	return &VerifiedContact{
		Channel:    tok.channel,
		Target:     tok.target,
		VerifiedAt: v.now(),
	}, nil
}

func (v *Verifier) purgeExpired() {
	now := v.now()

	v.mu.Lock()
	for id, req := range v.requests {
		if !now.Before(req.expiresAt) {
			delete(v.requests, id)
		}
	}
	for id, tok := range v.tokens {
		if !now.Before(tok.expiresAt) {
			delete(v.tokens, id)
		}
	}
	v.mu.Unlock()
}

// generateCode returns a uniformly random 6-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
