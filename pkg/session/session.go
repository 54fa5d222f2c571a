package session

import (
	"context"
	"errors"
	"sync"
)

var errNoProvider = errors.New("session: no provider")

// Invalidator drops cached data scoped to a user.
type Invalidator interface {
	InvalidateUser(userID string)
}

// Session is the per-request view of who is signed in. A new Session has no
// user; SignIn and SignUp set one and SignOut clears it again.
type Session struct {
	provider *Provider
	cache    Invalidator

	mu     sync.RWMutex
	user   *User
	tokens *Tokens
}

func New(p *Provider, inv Invalidator) *Session {
	return &Session{provider: p, cache: inv}
}

// CurrentUser returns the signed-in user or nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID returns the signed-in user's id, or "" without a user.
func (s *Session) UserID() string {
	if u := s.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

// Tokens returns the pair issued by the last SignIn or SignUp on this session.
func (s *Session) Tokens() *Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Authenticate sets the user from an access token.
func (s *Session) Authenticate(token string) error {
	if s.provider == nil {
		return errNoProvider
	}
	u, err := s.provider.Authenticate(token)
	if err != nil {
		return err
	}
	s.set(u, nil)
	return nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) error {
	if s.provider == nil {
		return errNoProvider
	}
	t, u, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	s.set(u, &t)
	return nil
}

// SignUp creates the account and signs it in. On failure no user is set.
func (s *Session) SignUp(ctx context.Context, email, password, name string) error {
	if s.provider == nil {
		return errNoProvider
	}
	if _, err := s.provider.SignUp(ctx, email, password, name); err != nil {
		return err
	}
	return s.SignIn(ctx, email, password)
}

// SignOut revokes the session's tokens, clears the user and invalidates every
// cached entry scoped to them.
func (s *Session) SignOut(ctx context.Context, refreshToken string) error {
	s.mu.Lock()
	u := s.user
	s.user, s.tokens = nil, nil
	s.mu.Unlock()
	if u == nil {
		return nil
	}
	var err error
	if s.provider != nil {
		err = s.provider.Revoke(ctx, u, refreshToken)
	}
	if s.cache != nil {
		s.cache.InvalidateUser(u.ID)
	}
	return err
}

func (s *Session) set(u *User, t *Tokens) {
	s.mu.Lock()
	s.user, s.tokens = u, t
	s.mu.Unlock()
}
