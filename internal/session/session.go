// Package session holds the client-side record of who is signed in: the
// user object, the authenticated flag and the bearer token. Values live in
// a durable key-value Backend under fixed keys and carry no local expiry;
// the identity endpoint stays the source of truth.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Storage keys
const (
	KeyUser          = "user"
	KeyAuthenticated = "isAuthenticated"
	KeyToken         = "token"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// UserRecord is the identity returned by the backend's /api/auth/me
type UserRecord struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Picture   string `json:"picture,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// IsAdmin reports whether the record carries the admin role
func (u *UserRecord) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Equal compares two records field by field. Two nil records are equal.
func (u *UserRecord) Equal(other *UserRecord) bool {
	if u == nil || other == nil {
		return u == other
	}
	return *u == *other
}

// Session is the persisted client-side authentication state
type Session struct {
	User          *UserRecord
	Authenticated bool
	Token         string
}

// HasCredentials reports whether there is anything worth verifying
func (s Session) HasCredentials() bool {
	return s.Authenticated || s.Token != ""
}

// Store reads and writes a Session
type Store interface {
	Get() (Session, error)
	Set(Session) error
	Clear() error
}

// Backend is durable string storage addressed by key
type Backend interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// KVStore implements Store on top of a Backend
type KVStore struct {
	backend Backend
}

// NewKVStore creates a Store persisting to backend
func NewKVStore(backend Backend) *KVStore {
	return &KVStore{backend: backend}
}

// Get loads the session. A stored user that does not decode reads as absent.
func (s *KVStore) Get() (Session, error) {
	var sess Session

	raw, ok, err := s.backend.GetItem(KeyUser)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read %s: %w", KeyUser, err)
	}
	if ok {
		var user UserRecord
		if json.Unmarshal([]byte(raw), &user) == nil && user.UserID != "" {
			sess.User = &user
		}
	}

	flag, ok, err := s.backend.GetItem(KeyAuthenticated)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read %s: %w", KeyAuthenticated, err)
	}
	sess.Authenticated = ok && flag == "true"

	token, ok, err := s.backend.GetItem(KeyToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read %s: %w", KeyToken, err)
	}
	if ok {
		sess.Token = token
	}

	return sess, nil
}

// Set persists every field of sess; zero fields are removed from the backend
func (s *KVStore) Set(sess Session) error {
	if sess.User != nil {
		data, err := json.Marshal(sess.User)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		if err := s.backend.SetItem(KeyUser, string(data)); err != nil {
			return fmt.Errorf("failed to write %s: %w", KeyUser, err)
		}
	} else if err := s.backend.RemoveItem(KeyUser); err != nil {
		return fmt.Errorf("failed to remove %s: %w", KeyUser, err)
	}

	if sess.Authenticated {
		if err := s.backend.SetItem(KeyAuthenticated, "true"); err != nil {
			return fmt.Errorf("failed to write %s: %w", KeyAuthenticated, err)
		}
	} else if err := s.backend.RemoveItem(KeyAuthenticated); err != nil {
		return fmt.Errorf("failed to remove %s: %w", KeyAuthenticated, err)
	}

	if sess.Token != "" {
		if err := s.backend.SetItem(KeyToken, sess.Token); err != nil {
			return fmt.Errorf("failed to write %s: %w", KeyToken, err)
		}
	} else if err := s.backend.RemoveItem(KeyToken); err != nil {
		return fmt.Errorf("failed to remove %s: %w", KeyToken, err)
	}

	return nil
}

// Clear removes all three keys, attempting each even if one fails
func (s *KVStore) Clear() error {
	var errs []error
	for _, key := range []string{KeyUser, KeyAuthenticated, KeyToken} {
		if err := s.backend.RemoveItem(key); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
