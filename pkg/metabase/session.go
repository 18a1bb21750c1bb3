package metabase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSessionTTL is how long a session token is reused before a fresh login.
const DefaultSessionTTL = 50 * time.Minute

const loginFlight = "login"

// LoginFunc performs one login against the engine and returns a session token.
type LoginFunc func(ctx context.Context) (string, error)

// SessionManager owns the engine session token. At most one login is in
// flight at a time; concurrent callers that need a token wait for it.
type SessionManager struct {
	login   LoginFunc
	ttl     time.Duration
	now     func() time.Time
	onLogin func(error)

	mu      sync.RWMutex
	session Session

	group singleflight.Group
}

// NewSessionManager creates a session manager. A zero ttl uses DefaultSessionTTL.
func NewSessionManager(login LoginFunc, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		login: login,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Seed installs a pre-provisioned token. It is treated as freshly issued.
func (m *SessionManager) Seed(token string) {
	if token == "" {
		return
	}
	now := m.now()
	m.mu.Lock()
	m.session = Session{Token: token, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}
	m.mu.Unlock()
}

// Current returns a snapshot of the held session.
func (m *SessionManager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Authenticated reports whether a valid session is held.
func (m *SessionManager) Authenticated() bool {
	return m.Current().Valid(m.now())
}

// Token returns a valid session token, logging in if none is held.
// Cancelling ctx releases the caller but does not abort a login other
// callers are waiting on.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	if s := m.Current(); s.Valid(m.now()) {
		return s.Token, nil
	}

	ch := m.group.DoChan(loginFlight, func() (any, error) {
		if s := m.Current(); s.Valid(m.now()) {
			return s.Token, nil
		}
		token, err := m.login(context.WithoutCancel(ctx))
		if m.onLogin != nil {
			m.onLogin(err)
		}
		if err != nil {
			return "", err
		}
		now := m.now()
		m.mu.Lock()
		m.session = Session{Token: token, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}
		m.mu.Unlock()
		slog.Info("authenticated with metabase", "expires_at", now.Add(m.ttl))
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, ok := res.Val.(string)
		if !ok {
			return "", fmt.Errorf("%w: unexpected login result %T", ErrAuthentication, res.Val)
		}
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate discards the held session.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.session = Session{}
	m.mu.Unlock()
}

// InvalidateToken discards the held session only if it still carries token,
// so a rejection of a stale token does not throw away a newer login.
func (m *SessionManager) InvalidateToken(token string) {
	m.mu.Lock()
	if m.session.Token == token {
		m.session = Session{}
	}
	m.mu.Unlock()
}
