// Package kvs provides the key-value stores keywrapper keeps credentials in,
// with Memory, LevelDB and Redis backends.
package kvs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is a key-value store with optional per-key TTL.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the live keys starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

var (
	// ErrNotFound is returned when a key is not found or has expired.
	ErrNotFound = errors.New("kvs: key not found")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("kvs: store is closed")

	// ErrUnsupportedType is returned by New for an unknown backend type.
	ErrUnsupportedType = errors.New("kvs: unsupported store type")
)

// Config selects and configures a backend
type Config struct {
	// Type is "memory" (default), "leveldb" or "redis"
	Type string `yaml:"type" json:"type"`

	// Namespace isolates keys: a key prefix for Memory and Redis,
	// a sub-directory for LevelDB.
	Namespace string `yaml:"namespace" json:"namespace"`

	LevelDB LevelDBConfig `yaml:"leveldb" json:"leveldb"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
}

// LevelDBConfig configures the LevelDB store
type LevelDBConfig struct {
	// Path is the database directory. Empty means a directory under the
	// user cache dir.
	Path string `yaml:"path" json:"path"`

	// SyncWrites fsyncs every write
	SyncWrites bool `yaml:"sync_writes" json:"sync_writes"`
}

// RedisConfig configures the Redis store
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"` // 0 uses the client default
}

// Validate reports configuration errors without opening the store
func (c Config) Validate() error {
	switch c.Type {
	case "", "memory", "leveldb":
		return nil
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("kvs: redis.addr is required for redis store")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q (supported: memory, leveldb, redis)", ErrUnsupportedType, c.Type)
	}
}

// New opens the store described by cfg
func New(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.Namespace), nil
	case "leveldb":
		return NewLevelDBStore(cfg.Namespace, cfg.LevelDB)
	default:
		return NewRedisStore(cfg.Namespace, cfg.Redis)
	}
}

func expired(expiresAt time.Time, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}
