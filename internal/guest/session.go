// Package guest lets anonymous customers track and control a single order
// without an account: a bearer-token session with a TTL, a privacy-masked
// contact snapshot, and an OTP flow to prove control of a contact channel.
// All state is in process memory and is lost on restart.
package guest

import (
	"context"
	"sync"
	"time"

	"fulfillment-service/internal/apperr"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerifiedContact records which channel was proven and when.
type VerifiedContact struct {
	Channel    string    `json:"channel"`
	Target     string    `json:"target"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Session stands in for an account for one order, for a bounded window.
type Session struct {
	Token      string
	OrderID    int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastStatus string
	Masked     MaskedContact
	Verified   *VerifiedContact
}

// SessionStore owns all guest sessions. Expired sessions are purged both
// lazily on lookup and by a periodic sweep.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewSessionStore creates an empty store. Zero values fall back to a 2h
// TTL and a 1m sweep interval.
func NewSessionStore(ttl, sweepInterval time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		sweep:    sweepInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		logger:   util.NamedLogger("guest-sessions"),
	}
}

// Start runs the background sweep until ctx is cancelled or Shutdown.
func (s *SessionStore) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.purgeExpired()
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Shutdown stops the sweep loop.
func (s *SessionStore) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Create mints a session for an order. The token is the only handle.
func (s *SessionStore) Create(orderID int64, status string, masked MaskedContact, verified *VerifiedContact) *Session {
	now := s.now()
	sess := &Session{
		Token:      uuid.NewString(),
		OrderID:    orderID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		LastStatus: status,
		Masked:     masked,
		Verified:   verified,
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	util.GuestSessionsActive.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	return sess
}

// Get returns the session for a token. Unknown and expired tokens both
// come back as not-found; expiry is checked on every lookup.
func (s *SessionStore) Get(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "guest session not found")
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		util.GuestSessionsActive.Set(float64(len(s.sessions)))
		util.GuestSessionsExpiredTotal.Inc()
		return nil, apperr.New(apperr.KindNotFound, "guest session not found")
	}

	snapshot := *sess
	return &snapshot, nil
}

// UpdateStatus refreshes the cached last-known order status.
func (s *SessionStore) UpdateStatus(token, status string) {
	s.mu.Lock()
	if sess, ok := s.sessions[token]; ok {
		sess.LastStatus = status
	}
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) purgeExpired() {
	now := s.now()
	purged := 0

	s.mu.Lock()
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			purged++
		}
	}
	util.GuestSessionsActive.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if purged > 0 {
		util.GuestSessionsExpiredTotal.Add(float64(purged))
		s.logger.Debug("purged expired guest sessions", zap.Int("count", purged))
	}
}
