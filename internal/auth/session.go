package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ingresounam/ingreso/internal/assert"
)

// SessionCookieName is the cookie carrying the opaque server session token
const SessionCookieName = "session_token"

const sessionTokenPrefix = "session_"

// SessionData represents the authenticated principal for a request
type SessionData struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	AuthMethod string `json:"auth_method"` // "cookie", "bearer"
}

// IsAdmin reports whether the principal holds the admin role
func (s *SessionData) IsAdmin() bool {
	return s.Role == "admin"
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword returns nil when password matches the stored bcrypt hash
func VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("password mismatch: %w", err)
	}
	return nil
}

// NewSessionToken returns an opaque, URL-safe session token
func NewSessionToken() (string, error) {
	token, err := randomHex(sessionTokenPrefix, 32)
	if err != nil {
		return "", err
	}
	assert.Prefix(token, sessionTokenPrefix)
	assert.Length(token, len(sessionTokenPrefix)+64)
	return token, nil
}

// NewSecret returns a 64-character hex secret suitable for HS256 signing
func NewSecret() (string, error) {
	secret, err := randomHex("", 32)
	if err != nil {
		return "", err
	}
	assert.Length(secret, 64) // 32 random bytes, hex encoded
	return secret, nil
}

func randomHex(prefix string, n int) (string, error) {
	if n <= 0 {
		return "", errors.New("random length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
