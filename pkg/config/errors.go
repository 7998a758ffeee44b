package config

import "errors"

var (
	// ErrConfigFileNotFound is returned when config file is not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrUnsupportedFormat is returned for a config file extension other than .yaml, .yml or .json
	ErrUnsupportedFormat = errors.New("unsupported config file format")

	// ErrInvalidPort is returned when the listen port is outside 1-65535
	ErrInvalidPort = errors.New("server.port must be between 1 and 65535")

	// ErrInvalidCacheTTL is returned when secrets.cache_ttl is not a valid duration
	ErrInvalidCacheTTL = errors.New("invalid secrets.cache_ttl")

	// ErrInvalidVaultAuthMethod is returned for an unknown secrets.vault.auth_method
	ErrInvalidVaultAuthMethod = errors.New("secrets.vault.auth_method must be approle, cert or token")

	// ErrUnknownScheme is returned when a credential reference uses an unknown scheme
	ErrUnknownScheme = errors.New("unknown secret reference scheme")

	// ErrProviderNotConfigured is returned when a credential references a provider without configuration
	ErrProviderNotConfigured = errors.New("secret provider is not configured")

	// ErrInvalidLogLevel is returned for an unknown logging.level
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")

	// ErrLogFilePathRequired is returned when logging.file is present without a path
	ErrLogFilePathRequired = errors.New("logging.file.path is required when file logging is configured")
)
