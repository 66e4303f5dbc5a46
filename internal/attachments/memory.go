package attachments

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"idb-go/internal/idb"
)

// MemoryStore is an in-memory implementation of the AttachmentStore
// interface, useful for testing. Safe for concurrent use.
type MemoryStore struct {
	content map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory attachment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		content: make(map[string][]byte),
	}
}

// Put stores the bytes from r under key, replacing any previous content.
func (m *MemoryStore) Put(key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[key] = data
	return nil
}

// Get retrieves the content stored under key and writes it to w.
func (m *MemoryStore) Get(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[key]
	if !ok {
		return fmt.Errorf("attachment not found: %s", key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Exists reports whether content is stored under key.
func (m *MemoryStore) Exists(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[key]
	return ok, nil
}

// Delete removes the content stored under key. Deleting a missing key is a no-op.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, key)
	return nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

// Keys returns all stored keys, for tests.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.content))
	for k := range m.content {
		keys = append(keys, k)
	}
	return keys
}

// Compile-time check that MemoryStore implements the AttachmentStore interface
var _ idb.AttachmentStore = (*MemoryStore)(nil)
