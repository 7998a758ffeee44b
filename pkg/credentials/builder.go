package credentials

import (
	"fmt"

	"github.com/ideamans/keywrapper/pkg/config"
	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/secret/env"
	"github.com/ideamans/keywrapper/pkg/secret/kvsstore"
	"github.com/ideamans/keywrapper/pkg/secret/vault"
	sharedconfig "github.com/ideamans/keywrapper/pkg/shared/config"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// NewManager builds a secret manager with the providers cfg enables:
// env always, vault when an address is set, kvs when a store type is set.
// Every provider is wrapped in a cache when cache_ttl is positive.
// The caller owns the manager and must Close it.
func NewManager(cfg config.SecretsConfig, logger logging.Logger) (*secret.Manager, error) {
	var kp secret.Provider
	if cfg.KVSEnabled() {
		store, err := kvs.New(cfg.KVS)
		if err != nil {
			return nil, fmt.Errorf("kvs: %w", err)
		}
		kp = kvsstore.New(store)
	}

	m, err := newManager(cfg, kp, logger)
	if err != nil && kp != nil {
		_ = kp.Close()
	}
	return m, err
}

// NewManagerWithStore is NewManager for a KVS store the caller keeps open
// across managers, as a LevelDB directory can only be opened once. store is
// nil when no KVS is configured. Closing the manager leaves store open.
func NewManagerWithStore(cfg config.SecretsConfig, store kvs.Store, logger logging.Logger) (*secret.Manager, error) {
	var kp secret.Provider
	if store != nil {
		kp = kvsstore.NewShared(store)
	}
	return newManager(cfg, kp, logger)
}

// newManager registers env, vault and the given kvs provider. On error the
// kvs provider is left to the caller.
func newManager(cfg config.SecretsConfig, kp secret.Provider, logger logging.Logger) (*secret.Manager, error) {
	ttl, err := cfg.GetCacheTTL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidCacheTTL, err)
	}

	m := secret.NewManager()
	register := func(scheme string, p secret.Provider) {
		if ttl > 0 {
			p = secret.NewCachedProvider(p, ttl)
		}
		m.Register(scheme, p)
	}

	register("env", env.New())

	if cfg.Vault.Enabled() {
		vp, err := vault.New(cfg.Vault, logger.WithModule("vault"))
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("vault: %w", err)
		}
		register("vault", vp)
	}

	if kp != nil {
		register("kvs", kp)
	}

	logger.Debug("Secret providers ready", "schemes", m.Schemes(), "cache_ttl", ttl)
	return m, nil
}

// maskFor masks a resolved value; the gateway URL is not a secret and is
// shown as is
func maskFor(name, value string) string {
	if name == "gateway_url" {
		return value
	}
	return sharedconfig.MaskSecret(value)
}
