package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/keywrapper/pkg/config"
	proxy "github.com/ideamans/keywrapper/pkg/proxy/core"
	"github.com/ideamans/keywrapper/pkg/shared/filewatcher"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

const (
	reloadDebounce  = 100 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

// Config represents the configuration for running the server
type Config struct {
	ConfigPath string
	Host       string // From command-line flag
	Port       int    // From command-line flag
	HostSet    bool   // Whether host was explicitly set via flag
	PortSet    bool   // Whether port was explicitly set via flag
	Logger     logging.Logger
	Version    string

	// Listener, when set, is served instead of listening on Host:Port
	Listener net.Listener

	// ProxyOptions are passed to every proxy handler build
	ProxyOptions []proxy.Option
}

// ResolvedConfig represents the final resolved listen address
type ResolvedConfig struct {
	Host string
	Port int
}

// Addr returns host:port
func (r ResolvedConfig) Addr() string {
	return net.JoinHostPort(r.Host, fmt.Sprint(r.Port))
}

// Run starts the server and blocks until ctx is canceled, SIGINT or SIGTERM
// is received, or the listener fails
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewSimpleLogger("main", logging.LevelInfo, true)
	}

	logger.Info("Starting keywrapper", "version", cfg.Version)

	manager, err := NewHandlerManager(cfg.ConfigPath, logger.WithModule("manager"), cfg.ProxyOptions...)
	if err != nil {
		return FormatConfigError("handler", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("Failed to close secret providers", "error", err)
		}
	}()

	if !manager.FileFound() {
		if cfg.ConfigPath == "" {
			logger.Warn("No config file specified, using default configuration")
		} else {
			logger.Warn("Config file not found, using default configuration", "path", cfg.ConfigPath)
		}
		logDefaultConfigInfo(logger)
	}

	resolved := resolveServerConfig(cfg, manager.Config().Server, logger)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if manager.FileFound() {
		watcher, err := filewatcher.NewWatcher(cfg.ConfigPath, reloadDebounce)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer func() {
			stop()
			_ = watcher.Close()
		}()

		watcher.AddListener(manager)
		logger.Info("File watcher initialized for hot reload", "config_file", watcher.Path())

		go func() {
			if err := watcher.Start(sigCtx); err != nil && sigCtx.Err() == nil {
				logger.Error("File watcher error", "error", err)
			}
		}()
	}

	listener := cfg.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", resolved.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", resolved.Addr(), err)
		}
	}

	// No WriteTimeout: streamed completions can run for minutes
	server := &http.Server{
		Handler:           manager.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Starting server", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received, stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := <-errChan; err != nil {
			logger.Error("Server stopped with error", "error", err)
			return err
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Server stopped with error", "error", err)
			return err
		}
	}

	logger.Info("Server stopped successfully")
	return nil
}

// resolveServerConfig resolves the final host and port.
// Priority: command-line flags > config file > defaults.
func resolveServerConfig(cfg Config, fileCfg config.ServerConfig, logger logging.Logger) ResolvedConfig {
	resolved := ResolvedConfig{Host: fileCfg.Host, Port: fileCfg.Port}

	if cfg.HostSet {
		resolved.Host = cfg.Host
		logger.Info("Using host from command-line flag", "host", resolved.Host)
	} else if resolved.Host == "" {
		resolved.Host = config.DefaultHost
	}

	if cfg.PortSet {
		resolved.Port = cfg.Port
		logger.Info("Using port from command-line flag", "port", resolved.Port)
	} else if resolved.Port == 0 {
		resolved.Port = config.DefaultPort
	}

	return resolved
}

// FormatConfigError turns startup errors into messages that tell the user
// what to fix
func FormatConfigError(component string, err error) error {
	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Errors) > 1 {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Configuration validation failed for %s with %d error(s):\n\n", component, len(validationErr.Errors)))
		for i, e := range validationErr.Errors {
			sb.WriteString(fmt.Sprintf("  %d. %v\n", i+1, e))
		}
		sb.WriteString("\nPlease fix the errors above in your configuration file.")
		return errors.New(sb.String())
	}

	switch {
	case errors.Is(err, config.ErrInvalidPort),
		errors.Is(err, config.ErrInvalidCacheTTL),
		errors.Is(err, config.ErrInvalidVaultAuthMethod),
		errors.Is(err, config.ErrUnknownScheme),
		errors.Is(err, config.ErrProviderNotConfigured),
		errors.Is(err, config.ErrInvalidLogLevel),
		errors.Is(err, config.ErrLogFilePathRequired),
		errors.Is(err, kvs.ErrUnsupportedType):
		return fmt.Errorf("configuration validation error in %s: %v - please check your configuration file and fix the issue above", component, err)
	case errors.Is(err, config.ErrUnsupportedFormat):
		return fmt.Errorf("%v - rename the configuration file to .yaml, .yml or .json", err)
	}

	return fmt.Errorf("failed to initialize %s: %v", component, err)
}

// logDefaultConfigInfo explains where credentials are read from when no
// configuration file is used
func logDefaultConfigInfo(logger logging.Logger) {
	logger.Warn("Credentials are read from the environment:")
	logger.Warn("  gateway URL", "env", config.EnvGatewayURL)
	logger.Warn("  dummy key", "env", config.EnvDummyKey)
	logger.Warn("  real key", "env", config.EnvRealKey)
	logger.Warn("Requests are rejected with a configuration error until all three are set")
}
