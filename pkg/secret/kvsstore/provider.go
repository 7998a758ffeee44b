// Package kvsstore implements a secret provider on top of a kvs.Store, so that
// credentials can be kept in memory, LevelDB or Redis and managed with
// "keywrapper secret put".
package kvsstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
)

// Provider reads secrets from a kvs.Store. The path of a "kvs://" reference
// is used as the key.
type Provider struct {
	store  kvs.Store
	shared bool
}

// New wraps store. The provider owns the store and closes it on Close.
func New(store kvs.Store) *Provider {
	return &Provider{store: store}
}

// NewShared wraps a store owned by the caller. Close leaves it open.
func NewShared(store kvs.Store) *Provider {
	return &Provider{store: store, shared: true}
}

// Get returns the value stored under path.
func (p *Provider) Get(ctx context.Context, path string) (string, error) {
	val, err := p.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, kvs.ErrNotFound) {
			return "", fmt.Errorf("kvs key %q: %w", path, secret.ErrNotFound)
		}
		return "", fmt.Errorf("read kvs key %q: %w", path, err)
	}
	if len(val) == 0 {
		return "", fmt.Errorf("kvs key %q is empty: %w", path, secret.ErrNotFound)
	}
	return string(val), nil
}

// Close closes the underlying store unless it is shared.
func (p *Provider) Close() error {
	if p.shared {
		return nil
	}
	return p.store.Close()
}
