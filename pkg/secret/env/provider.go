// Package env implements a secret provider that reads environment variables.
package env

import (
	"context"
	"fmt"
	"os"

	"github.com/ideamans/keywrapper/pkg/secret"
)

// Provider reads secrets from the process environment.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates a provider backed by os.LookupEnv.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// NewWithLookup creates a provider backed by a custom lookup function.
func NewWithLookup(lookup func(string) (string, bool)) *Provider {
	return &Provider{lookup: lookup}
}

// Get returns the value of the variable named path.
// An unset or empty variable is reported as secret.ErrNotFound.
func (p *Provider) Get(ctx context.Context, path string) (string, error) {
	val, ok := p.lookup(path)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q: %w", path, secret.ErrNotFound)
	}
	return val, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
