package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/ingresounam/ingreso/internal/session"
)

// AuthState is the transient state of one guard resolution
type AuthState struct {
	Loading       bool
	Authenticated bool
	User          *session.UserRecord
}

// State collapses the flags into the state machine position
func (a AuthState) State() State {
	switch {
	case a.Loading:
		return Loading
	case a.Authenticated:
		return Authenticated
	default:
		return Unauthenticated
	}
}

// Scope is the auth context handed to views rendered behind the guard
type Scope struct {
	mu    sync.RWMutex
	user  *session.UserRecord
	store session.Store
}

// NewScope binds a verified user to the store it came from
func NewScope(user *session.UserRecord, store session.Store) *Scope {
	return &Scope{user: user, store: store}
}

// User returns the current user
func (s *Scope) User() *session.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser replaces the user in the scope and in the session store. The scope
// holds user even when the store write fails.
func (s *Scope) SetUser(user *session.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = user
	if s.store != nil {
		sess, err := s.store.Get()
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		sess.User = user
		if err := s.store.Set(sess); err != nil {
			return fmt.Errorf("failed to write session: %w", err)
		}
	}
	return nil
}

type scopeKey struct{}

// scopeCtxKey is the single context key under which a Scope is provided
var scopeCtxKey = scopeKey{}

// Provide returns a child context carrying scope
func Provide(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, scope)
}

// FromContext returns the Scope provided to ctx, if any
func FromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeCtxKey).(*Scope)
	return scope, ok && scope != nil
}
