package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// keychainStore stores API keys in the OS keychain (macOS Keychain, Linux
// Secret Service) under serviceName.
type keychainStore struct {
	service string
}

func newKeychainStore() *keychainStore {
	return &keychainStore{service: serviceName}
}

func (k *keychainStore) Backend() string { return "keychain" }

func (k *keychainStore) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (k *keychainStore) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

// Delete is a no-op for missing keys.
func (k *keychainStore) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
