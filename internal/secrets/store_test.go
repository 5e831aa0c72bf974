package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func init() {
	// No host keychain in tests.
	keyring.MockInit()
}

func TestStores_CRUD(t *testing.T) {
	stores := map[string]Store{
		"keychain": newKeychainStore(),
		"file":     newFileStore(t.TempDir()),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			key := KeyName("anthropic")

			if _, err := s.Get(key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Set(key, "sk-ant-test"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			val, err := s.Get(key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if val != "sk-ant-test" {
				t.Errorf("got %q, want %q", val, "sk-ant-test")
			}
			if err := s.Delete(key); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := s.Get(key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(key); err != nil {
				t.Fatalf("Delete of missing key should not error: %v", err)
			}
			if s.Backend() != name {
				t.Errorf("Backend() = %q, want %q", s.Backend(), name)
			}
		})
	}
}

func TestFileStore_PermissionsAndPersistence(t *testing.T) {
	dir := t.TempDir()
	if err := newFileStore(dir).Set("openai/api_key", "sk-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, keysFile))
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != keysFileMode {
		t.Errorf("file permissions: got %o, want %o", perm, keysFileMode)
	}

	val, err := newFileStore(dir).Get("openai/api_key")
	if err != nil || val != "sk-1" {
		t.Fatalf("Get on new instance = %q, %v", val, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, keysFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := newFileStore(dir).Get("x"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestAPIKey_EnvWinsOverStore(t *testing.T) {
	s := newFileStore(t.TempDir())
	if err := s.Set(KeyName("gemini"), "stored"); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "from-env")
	got, err := APIKey(s, "gemini")
	if err != nil || got != "from-env" {
		t.Fatalf("APIKey = %q, %v; want from-env", got, err)
	}

	t.Setenv("GOOGLE_API_KEY", "")
	got, err = APIKey(s, "gemini")
	if err != nil || got != "stored" {
		t.Fatalf("APIKey = %q, %v; want stored", got, err)
	}

	if _, err := APIKey(nil, "claude-cli"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNew_UsesKeychainWhenAvailable(t *testing.T) {
	s := New(t.TempDir())
	if s.Backend() != "keychain" {
		t.Fatalf("Backend() = %q, want keychain with the mock provider", s.Backend())
	}
}
