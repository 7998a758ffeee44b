package secret

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const schemeSeparator = "://"

// Manager routes references to providers by URI scheme.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewManager creates a manager with no providers.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider for scheme (e.g. "env", "vault", "kvs").
// A second registration for the same scheme replaces the first.
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = provider
}

// Schemes returns the registered schemes in sorted order.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.providers)
}

// literalSchemes are URL schemes that mark a literal value, not a provider
var literalSchemes = map[string]bool{"http": true, "https": true}

// ParseRef splits a reference into scheme and path.
// A reference without "://", or with an http(s) scheme, is a literal and
// yields an empty scheme.
func ParseRef(ref string) (scheme, path string) {
	scheme, path, ok := strings.Cut(ref, schemeSeparator)
	if !ok || literalSchemes[strings.ToLower(scheme)] {
		return "", ref
	}
	return scheme, path
}

// Get resolves ref. A literal reference is returned as-is; an empty
// reference resolves to ErrNotFound.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}

	scheme, path := ParseRef(ref)
	if scheme == "" {
		return path, nil
	}

	m.mu.RLock()
	provider, ok := m.providers[scheme]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}

	return provider.Get(ctx, path)
}

// Close closes all registered providers.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, scheme := range sortedKeys(m.providers) {
		if err := m.providers[scheme].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(providers map[string]Provider) []string {
	keys := make([]string, 0, len(providers))
	for k := range providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
