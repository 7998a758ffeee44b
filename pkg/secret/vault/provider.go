// Package vault implements a secret provider that reads from HashiCorp Vault.
package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// DefaultKey is the field read when a reference has no "#key" suffix.
const DefaultKey = "value"

// Provider reads secrets from Vault KV (v1 or v2).
type Provider struct {
	client *vault.Client
	logger logging.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Config holds configuration for the Vault provider.
type Config struct {
	Address    string `yaml:"address" json:"address"`
	AuthMethod string `yaml:"auth_method" json:"auth_method"` // "approle", "cert" or "token"
	Token      string `yaml:"token" json:"token"`
	RoleID     string `yaml:"role_id" json:"role_id"`
	SecretID   string `yaml:"secret_id" json:"secret_id"`
	CACert     string `yaml:"ca_cert" json:"ca_cert"`
	ClientCert string `yaml:"client_cert" json:"client_cert"`
	ClientKey  string `yaml:"client_key" json:"client_key"`
}

// Enabled reports whether a Vault address is configured.
func (c Config) Enabled() bool {
	return c.Address != ""
}

// New logs in to Vault and starts renewing the token when it is renewable.
func New(cfg Config, logger logging.Logger) (*Provider, error) {
	if logger == nil {
		logger = logging.NewSimpleLogger("vault", logging.LevelInfo, false)
	}

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.Address

	if cfg.ClientCert != "" || cfg.ClientKey != "" || cfg.CACert != "" {
		tlsConfig := &vault.TLSConfig{
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
			CACert:     cfg.CACert,
		}
		if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("configure tls: %w", err)
		}
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	p := &Provider{
		client: client,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	method := cfg.AuthMethod
	if method == "" {
		switch {
		case cfg.RoleID != "":
			method = "approle"
		case cfg.Token != "":
			method = "token"
		}
	}

	var auth *vault.Secret
	switch method {
	case "token":
		client.SetToken(cfg.Token)
		return p, nil
	case "cert":
		auth, err = client.Logical().Write("auth/cert/login", nil)
	case "approle":
		auth, err = client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
	default:
		return nil, fmt.Errorf("unknown or missing auth method: %q", cfg.AuthMethod)
	}

	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", method, err)
	}
	if auth == nil || auth.Auth == nil {
		return nil, fmt.Errorf("vault login (%s) returned no auth info", method)
	}

	client.SetToken(auth.Auth.ClientToken)

	if auth.Auth.Renewable {
		p.wg.Add(1)
		go p.renewToken(auth.Auth)
	}

	return p, nil
}

// splitPath separates "path/to/secret#key" into path and key.
func splitPath(path string) (string, string) {
	if idx := strings.LastIndex(path, "#"); idx != -1 {
		return path[:idx], path[idx+1:]
	}
	return path, DefaultKey
}

// Get reads a secret. Path format is "path/to/secret#key"; the key
// defaults to "value".
func (p *Provider) Get(ctx context.Context, path string) (string, error) {
	secretPath, key := splitPath(path)

	s, err := p.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", secretPath, err)
	}
	if s == nil || s.Data == nil {
		return "", fmt.Errorf("vault secret %q: %w", secretPath, secret.ErrNotFound)
	}

	// KV v2 wraps the fields in "data"
	data := s.Data
	if v, ok := data["data"]; ok {
		if nested, ok := v.(map[string]interface{}); ok {
			data = nested
		}
	}

	val, ok := data[key]
	if !ok || val == nil {
		return "", fmt.Errorf("key %q in vault secret %q: %w", key, secretPath, secret.ErrNotFound)
	}

	str := fmt.Sprintf("%v", val)
	if str == "" {
		return "", fmt.Errorf("key %q in vault secret %q is empty: %w", key, secretPath, secret.ErrNotFound)
	}
	return str, nil
}

// Close stops the token renewer.
func (p *Provider) Close() error {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return nil
}

func (p *Provider) renewToken(auth *vault.SecretAuth) {
	defer p.wg.Done()

	watcher, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("Failed to create token lifetime watcher", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				p.logger.Error("Token renewal stopped", "error", err)
			}
			return
		case <-watcher.RenewCh():
			p.logger.Debug("Token renewed")
		}
	}
}
