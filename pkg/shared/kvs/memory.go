package kvs

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// MemoryStore is a volatile in-process Store. Expired items are dropped
// lazily when they are read or listed.
type MemoryStore struct {
	prefix string
	items  map[string]memoryItem
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		prefix: prefix,
		items:  make(map[string]memoryItem),
	}
}

func (m *MemoryStore) prefixedKey(key string) string {
	return m.prefix + key
}

// Get retrieves a copy of the value stored under key
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	item, ok := m.items[m.prefixedKey(key)]
	if !ok || expired(item.expiresAt, time.Now()) {
		return nil, ErrNotFound
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

// Set stores a copy of value
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	m.items[m.prefixedKey(key)] = item
	return nil
}

// Delete removes a key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.items, m.prefixedKey(key))
	return nil
}

// List returns live keys starting with keyPrefix, expired entries are purged
func (m *MemoryStore) List(ctx context.Context, keyPrefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	fullPrefix := m.prefixedKey(keyPrefix)
	now := time.Now()
	keys := make([]string, 0)
	for key, item := range m.items {
		if expired(item.expiresAt, now) {
			delete(m.items, key)
			continue
		}
		if strings.HasPrefix(key, fullPrefix) {
			keys = append(keys, strings.TrimPrefix(key, m.prefix))
		}
	}
	return keys, nil
}

// Close discards all items
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.items = nil
	return nil
}
