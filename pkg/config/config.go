// Package config defines the keywrapper configuration file and its defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/secret/vault"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8787

	// Environment variables the credentials are read from by default
	EnvGatewayURL = "AI_GATEWAY_ENDPOINT_URL"
	EnvDummyKey   = "DUMMY_WRAPPER_KEY"
	EnvRealKey    = "REAL_OPENAI_KEY"

	DefaultSecretsNamespace = "secrets"
)

// Config is the root of the configuration file
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Secrets     SecretsConfig     `yaml:"secrets" json:"secrets"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ServerConfig contains listener settings
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CredentialsConfig holds references to the three credentials.
// Each value is either a secret reference ("env://NAME", "vault://path#key",
// "kvs://key") or a literal.
type CredentialsConfig struct {
	GatewayURL string `yaml:"gateway_url" json:"gateway_url"`
	DummyKey   string `yaml:"dummy_key" json:"dummy_key"`
	RealKey    string `yaml:"real_key" json:"real_key"`
}

// SecretsConfig configures the secret providers behind the references
type SecretsConfig struct {
	// CacheTTL caches resolved secrets, e.g. "30s". Empty or "0" disables caching.
	CacheTTL string       `yaml:"cache_ttl" json:"cache_ttl"`
	Vault    vault.Config `yaml:"vault" json:"vault"`
	// KVS enables the "kvs://" scheme when Type is set
	KVS kvs.Config `yaml:"kvs" json:"kvs"`
}

// GetCacheTTL parses CacheTTL
func (s SecretsConfig) GetCacheTTL() (time.Duration, error) {
	if s.CacheTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(s.CacheTTL)
}

// KVSEnabled reports whether a KVS secret store is configured
func (s SecretsConfig) KVSEnabled() bool {
	return s.KVS.Type != ""
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string             `yaml:"level" json:"level"`
	Color bool               `yaml:"color" json:"color"`
	File  *FileLoggingConfig `yaml:"file,omitempty" json:"file,omitempty"`
}

// FileLoggingConfig contains file logging and rotation settings
type FileLoggingConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"` // default: 100
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"` // default: 3
	MaxAge     int    `yaml:"max_age,omitempty" json:"max_age,omitempty"`         // days, default: 28
	Compress   bool   `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for optional fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	if cfg.Credentials.GatewayURL == "" {
		cfg.Credentials.GatewayURL = "env://" + EnvGatewayURL
	}
	if cfg.Credentials.DummyKey == "" {
		cfg.Credentials.DummyKey = "env://" + EnvDummyKey
	}
	if cfg.Credentials.RealKey == "" {
		cfg.Credentials.RealKey = "env://" + EnvRealKey
	}

	if cfg.Secrets.KVSEnabled() && cfg.Secrets.KVS.Namespace == "" {
		cfg.Secrets.KVS.Namespace = DefaultSecretsNamespace
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true, "fatal": true,
}

// Validate checks structural problems that must stop startup.
// Missing credentials are not checked here; they are reported per request.
func (c *Config) Validate() error {
	verr := NewValidationError()

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		verr.Add(fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port))
	}

	if ttl, err := c.Secrets.GetCacheTTL(); err != nil {
		verr.Add(fmt.Errorf("%w: %q: %v", ErrInvalidCacheTTL, c.Secrets.CacheTTL, err))
	} else if ttl < 0 {
		verr.Add(fmt.Errorf("%w: %q must not be negative", ErrInvalidCacheTTL, c.Secrets.CacheTTL))
	}

	if c.Secrets.KVSEnabled() {
		if err := c.Secrets.KVS.Validate(); err != nil {
			verr.Add(fmt.Errorf("secrets.kvs: %w", err))
		}
	}

	if c.Secrets.Vault.Enabled() {
		switch c.Secrets.Vault.AuthMethod {
		case "", "approle", "cert", "token":
		default:
			verr.Add(fmt.Errorf("%w: %q", ErrInvalidVaultAuthMethod, c.Secrets.Vault.AuthMethod))
		}
	}

	for _, ref := range []struct{ field, value string }{
		{"gateway_url", c.Credentials.GatewayURL},
		{"dummy_key", c.Credentials.DummyKey},
		{"real_key", c.Credentials.RealKey},
	} {
		if err := c.validateRef(ref.value); err != nil {
			verr.Add(fmt.Errorf("credentials.%s: %w", ref.field, err))
		}
	}

	if !validLogLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))] {
		verr.Add(fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}

	if c.Logging.File != nil && c.Logging.File.Path == "" {
		verr.Add(ErrLogFilePathRequired)
	}

	return verr.ErrorOrNil()
}

// validateRef rejects references to providers that are not configured
func (c *Config) validateRef(ref string) error {
	scheme, _ := secret.ParseRef(ref)
	switch scheme {
	case "", "env":
		return nil
	case "vault":
		if !c.Secrets.Vault.Enabled() {
			return fmt.Errorf("%w: vault (secrets.vault.address is empty)", ErrProviderNotConfigured)
		}
		return nil
	case "kvs":
		if !c.Secrets.KVSEnabled() {
			return fmt.Errorf("%w: kvs (secrets.kvs.type is empty)", ErrProviderNotConfigured)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}
