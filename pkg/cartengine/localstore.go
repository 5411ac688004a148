package cartengine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
)

// FileStore is a LocalStore backed by a single JSON file, the durable home
// of the guest cart between visits.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ LocalStore = (*FileStore)(nil)

// NewFileStore stores the guest cart at path. The parent directory is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted cart. A missing file is an empty cart, not an
// error.
func (f *FileStore) Load() ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cart file")
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decode cart file")
	}
	return items, nil
}

// Save writes the cart atomically: a temp file in the same directory is
// renamed over the target so a crash never leaves a half-written cart.
func (f *FileStore) Save(items []Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create cart directory")
	}

	tmp, err := os.CreateTemp(dir, "cart-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp cart file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write cart file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cart file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "replace cart file")
	}
	return nil
}

// Clear removes the persisted cart. Clearing an absent file is a no-op.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove cart file")
	}
	return nil
}
