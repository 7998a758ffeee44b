package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ideamans/keywrapper/pkg/config"
	"github.com/ideamans/keywrapper/pkg/credentials"
	proxy "github.com/ideamans/keywrapper/pkg/proxy/core"
	"github.com/ideamans/keywrapper/pkg/secret"
	"github.com/ideamans/keywrapper/pkg/shared/filewatcher"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

// defaultRetireDelay is how long a replaced generation keeps its secret
// providers open so in-flight requests can finish resolving
const defaultRetireDelay = 5 * time.Second

// generation is one build of the request pipeline from one configuration.
// store is nil when no KVS is configured; it may be shared with the
// generations before and after this one.
type generation struct {
	cfg     *config.Config
	store   kvs.Store
	secrets *secret.Manager
	handler *proxy.Handler
}

// close releases the secret providers and, when closeStore is set, the
// KVS store
func (g *generation) close(closeStore bool) error {
	err := g.secrets.Close()
	if closeStore && g.store != nil {
		err = errors.Join(err, g.store.Close())
	}
	return err
}

// HandlerManager owns the proxy handler and rebuilds it when the
// configuration file changes
type HandlerManager struct {
	current     atomic.Value // *generation
	configPath  string
	fileFound   bool
	logger      logging.Logger
	proxyOpts   []proxy.Option
	retireDelay time.Duration
	reloadMu    sync.Mutex
}

var _ filewatcher.ChangeListener = (*HandlerManager)(nil)

// NewHandlerManager loads configPath (or defaults when it does not exist),
// validates it and builds the first handler
func NewHandlerManager(configPath string, logger logging.Logger, opts ...proxy.Option) (*HandlerManager, error) {
	if logger == nil {
		logger = logging.NewSimpleLogger("handler-manager", logging.LevelInfo, true)
	}

	m := &HandlerManager{
		configPath:  configPath,
		logger:      logger,
		proxyOpts:   opts,
		retireDelay: defaultRetireDelay,
	}

	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	m.fileFound = found

	gen, err := m.build(cfg, nil)
	if err != nil {
		return nil, err
	}
	m.current.Store(gen)

	if found {
		logger.Info("Handler manager initialized", "config_path", configPath)
	} else {
		logger.Info("Handler manager initialized with default config")
	}
	return m, nil
}

// build validates cfg and wires secret providers, resolver and proxy.
// With a previous generation, its secret manager is reused when the secrets
// section is unchanged and its KVS store when the store config allows it.
func (m *HandlerManager) build(cfg *config.Config, prev *generation) (*generation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gen := &generation{cfg: cfg}
	switch {
	case prev != nil && cfg.Secrets == prev.cfg.Secrets:
		gen.store, gen.secrets = prev.store, prev.secrets
	default:
		opened := false
		if cfg.Secrets.KVSEnabled() {
			if prev != nil && prev.store != nil && sameKVSStore(prev.cfg.Secrets.KVS, cfg.Secrets.KVS) {
				gen.store = prev.store
				if prev.cfg.Secrets.KVS != cfg.Secrets.KVS {
					m.logger.Warn("secrets.kvs.leveldb.sync_writes changes take effect after restart")
				}
			} else {
				store, err := kvs.New(cfg.Secrets.KVS)
				if err != nil {
					return nil, fmt.Errorf("failed to open secret store: %w", err)
				}
				gen.store, opened = store, true
			}
		}

		secrets, err := credentials.NewManagerWithStore(cfg.Secrets, gen.store, m.logger.WithModule("secret"))
		if err != nil {
			if opened {
				_ = gen.store.Close()
			}
			return nil, fmt.Errorf("failed to build secret providers: %w", err)
		}
		gen.secrets = secrets
	}

	resolver := credentials.NewResolver(cfg.Credentials, gen.secrets, m.logger.WithModule("credentials"))
	opts := append([]proxy.Option{proxy.WithLogger(m.logger.WithModule("proxy"))}, m.proxyOpts...)
	gen.handler = proxy.NewHandler(resolver, opts...)
	return gen, nil
}

// sameKVSStore reports whether a store opened for a can serve b. A LevelDB
// directory is locked while open, so only sync_writes may differ.
func sameKVSStore(a, b kvs.Config) bool {
	if a.Type == "leveldb" && b.Type == "leveldb" {
		return a.Namespace == b.Namespace && a.LevelDB.Path == b.LevelDB.Path
	}
	return a == b
}

func (m *HandlerManager) load() *generation {
	return m.current.Load().(*generation)
}

// Config returns the configuration currently in effect
func (m *HandlerManager) Config() *config.Config {
	return m.load().cfg
}

// FileFound reports whether the configuration came from a file
func (m *HandlerManager) FileFound() bool {
	return m.fileFound
}

// OnFileChange implements filewatcher.ChangeListener
func (m *HandlerManager) OnFileChange(event filewatcher.ChangeEvent) {
	if event.Error != nil {
		m.logger.Error("File change event error", "error", event.Error)
		return
	}

	m.logger.Info("Config content change detected, starting reload", "path", event.Path)
	if err := m.Reload(); err != nil {
		m.logger.Error("Failed to reload configuration, keeping current handler", "error", err)
	}
}

// Reload re-reads the configuration file and swaps the handler.
// Secret providers are kept when the secrets section is unchanged and the
// KVS store when its config is, since a LevelDB store cannot be opened
// twice. On any error the current handler stays in place.
func (m *HandlerManager) Reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	cfg, err := config.NewFileLoader(m.configPath).Load()
	if err != nil {
		return err
	}

	old := m.load()
	gen, err := m.build(cfg, old)
	if err != nil {
		return err
	}

	m.current.Store(gen)
	if gen.secrets != old.secrets {
		m.retire(old, gen.store != old.store)
	}

	m.logger.Info("Configuration reloaded successfully")
	if old.cfg.Server != cfg.Server {
		m.logger.Warn("server.host and server.port changes take effect after restart")
	}
	return nil
}

// retire closes a replaced generation once in-flight requests are done with
// it. closeStore is false when the new generation took over the store.
func (m *HandlerManager) retire(old *generation, closeStore bool) {
	closeOld := func() {
		if err := old.close(closeStore); err != nil {
			m.logger.Warn("Failed to close previous secret providers", "error", err)
		}
	}
	if m.retireDelay <= 0 {
		closeOld()
		return
	}
	time.AfterFunc(m.retireDelay, closeOld)
}

// Handler returns an http.Handler that always serves with the latest build
func (m *HandlerManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.load().handler.ServeHTTP(w, r)
	})
}

// Close releases the current secret providers and store
func (m *HandlerManager) Close() error {
	return m.load().close(true)
}
