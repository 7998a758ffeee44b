// Package credentials turns the configured credential references into the
// proxy.Settings each request is checked against.
package credentials

import (
	"context"
	"errors"

	"github.com/ideamans/keywrapper/pkg/config"
	proxy "github.com/ideamans/keywrapper/pkg/proxy/core"
	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// Getter resolves a secret reference; *secret.Manager satisfies it
type Getter interface {
	Get(ctx context.Context, ref string) (string, error)
}

// Resolver resolves the three credential references on every call, so
// rotated secrets take effect without a restart.
type Resolver struct {
	refs    config.CredentialsConfig
	secrets Getter
	logger  logging.Logger
}

var _ proxy.SettingsSource = (*Resolver)(nil)

// NewResolver creates a resolver for refs
func NewResolver(refs config.CredentialsConfig, secrets Getter, logger logging.Logger) *Resolver {
	return &Resolver{refs: refs, secrets: secrets, logger: logger}
}

// Settings implements proxy.SettingsSource. An unresolvable credential
// becomes "" so that the request is rejected with the matching
// configuration error.
func (r *Resolver) Settings(ctx context.Context) proxy.Settings {
	return proxy.Settings{
		GatewayURL: r.resolve(ctx, "gateway_url", r.refs.GatewayURL),
		DummyKey:   r.resolve(ctx, "dummy_key", r.refs.DummyKey),
		RealKey:    r.resolve(ctx, "real_key", r.refs.RealKey),
	}
}

func (r *Resolver) resolve(ctx context.Context, name, ref string) string {
	value, err := r.secrets.Get(ctx, ref)
	if err == nil {
		return value
	}
	if !errors.Is(err, secret.ErrNotFound) {
		scheme, _ := secret.ParseRef(ref)
		r.logger.Error("Secret backend failed, treating credential as unset",
			"credential", name, "scheme", scheme, "error", err)
	}
	return ""
}

// Status describes one credential for display
type Status struct {
	Name     string
	Ref      string
	Resolved bool
	Masked   string
	Err      error
}

// Inspect resolves every credential and reports the outcome without
// exposing values
func (r *Resolver) Inspect(ctx context.Context) []Status {
	entries := []struct{ name, ref string }{
		{"gateway_url", r.refs.GatewayURL},
		{"dummy_key", r.refs.DummyKey},
		{"real_key", r.refs.RealKey},
	}

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		value, err := r.secrets.Get(ctx, e.ref)
		st := Status{Name: e.name, Ref: e.ref, Err: err}
		if err == nil && value != "" {
			st.Resolved = true
			st.Masked = maskFor(e.name, value)
		}
		statuses = append(statuses, st)
	}
	return statuses
}
