package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "ingreso-cli"

// KeyringBackend keeps the bearer token in the OS keychain and delegates
// every other key to an inner backend
type KeyringBackend struct {
	account string
	inner   Backend
}

// NewKeyringBackend stores the token under account, typically the backend URL
func NewKeyringBackend(account string, inner Backend) *KeyringBackend {
	return &KeyringBackend{account: fmt.Sprintf("token-%s", account), inner: inner}
}

func (k *KeyringBackend) GetItem(key string) (string, bool, error) {
	if key != KeyToken {
		return k.inner.GetItem(key)
	}

	token, err := keyring.Get(keyringService, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load token: %w", err)
	}
	return token, true, nil
}

func (k *KeyringBackend) SetItem(key, value string) error {
	if key != KeyToken {
		return k.inner.SetItem(key, value)
	}

	if err := keyring.Set(keyringService, k.account, value); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (k *KeyringBackend) RemoveItem(key string) error {
	if key != KeyToken {
		return k.inner.RemoveItem(key)
	}

	if err := keyring.Delete(keyringService, k.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
