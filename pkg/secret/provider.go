// Package secret resolves credential references such as "env://REAL_OPENAI_KEY"
// or "vault://secret/data/openai#key" through pluggable providers.
package secret

import (
	"context"
	"errors"
)

// ErrNotFound marks a reference that points at nothing: an unset environment
// variable, a missing Vault secret or key, an absent KVS entry.
var ErrNotFound = errors.New("secret: not found")

// ErrUnknownScheme is returned for a reference whose scheme has no provider.
var ErrUnknownScheme = errors.New("secret: no provider registered for scheme")

// Provider retrieves secrets from one source.
type Provider interface {
	// Get retrieves the secret for path (the part after "scheme://").
	// It returns an error wrapping ErrNotFound when nothing is stored there.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
