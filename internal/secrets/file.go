package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	keysFile     = "keys.json"
	keysFileMode = 0o600
)

// fileStore keeps API keys in <dir>/keys.json when no OS keychain is
// reachable (CI, containers, headless Linux).
type fileStore struct {
	mu   sync.Mutex
	path string
}

func newFileStore(dir string) *fileStore {
	return &fileStore{path: filepath.Join(dir, keysFile)}
}

func (f *fileStore) Backend() string { return "file" }

func (f *fileStore) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys, err := f.read()
	if err != nil {
		return "", err
	}
	if v, ok := keys[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (f *fileStore) Set(key, value string) error {
	return f.update(func(keys map[string]string) { keys[key] = value })
}

func (f *fileStore) Delete(key string) error {
	return f.update(func(keys map[string]string) { delete(keys, key) })
}

func (f *fileStore) update(mutate func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys, err := f.read()
	if err != nil {
		return err
	}
	mutate(keys)
	return f.write(keys)
}

func (f *fileStore) read() (map[string]string, error) {
	keys := make(map[string]string)
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return keys, nil
}

// write replaces the file through a temp file so a crash never leaves a
// truncated key file behind.
func (f *fileStore) write(keys map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, keysFileMode); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
