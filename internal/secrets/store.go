// Package secrets stores LLM provider API keys. It prefers the OS keychain
// and falls back to a 0600 JSON file where no keychain is available.
package secrets

import (
	"errors"
	"os"
	"strings"
)

const serviceName = "onyx"

// Store reads and writes API keys.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete succeeds when key is absent.
	Delete(key string) error
	// Backend names the storage in use ("keychain" or "file").
	Backend() string
}

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("secret not found")

// providerEnv maps a provider to the environment variables that may hold
// its API key, in priority order.
var providerEnv = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// KeyName returns the store key for a provider's API key.
func KeyName(provider string) string {
	return strings.ToLower(provider) + "/api_key"
}

// EnvVars returns the environment variables checked for provider.
func EnvVars(provider string) []string {
	return providerEnv[strings.ToLower(provider)]
}

// New returns the keychain store when a test set and delete succeed, else a
// file store under dir.
func New(dir string) Store {
	ks := newKeychainStore()
	const testKey = "__onyx_keychain_check__"
	if err := ks.Set(testKey, "ok"); err != nil {
		return newFileStore(dir)
	}
	_ = ks.Delete(testKey)
	return ks
}

// APIKey resolves a provider key from the environment first, then store.
// store may be nil.
func APIKey(store Store, provider string) (string, error) {
	for _, name := range EnvVars(provider) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	if store == nil {
		return "", ErrNotFound
	}
	return store.Get(KeyName(provider))
}
