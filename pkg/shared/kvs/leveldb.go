package kvs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lverrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is a persistent Store on the local filesystem.
// Values are stored as [8 bytes big-endian expiry unix nano][value];
// an expiry of 0 means the key never expires.
type LevelDBStore struct {
	db         *leveldb.DB
	path       string
	syncWrites bool
	mu         sync.RWMutex
	closed     bool
}

// NewLevelDBStore opens (or creates) the database for namespace
func NewLevelDBStore(namespace string, cfg LevelDBConfig) (*LevelDBStore, error) {
	dbPath := resolveLevelDBPath(namespace, cfg.Path)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to create directory: %w", err)
	}

	opts := &opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(dbPath, opts)
	if err != nil && lverrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dbPath, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to open database at %s: %w", dbPath, err)
	}

	return &LevelDBStore{db: db, path: dbPath, syncWrites: cfg.SyncWrites}, nil
}

// resolveLevelDBPath places each namespace in its own directory
func resolveLevelDBPath(namespace, base string) string {
	if base == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		base = filepath.Join(cacheDir, "keywrapper")
	}
	if namespace == "" {
		return base
	}
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, namespace)
	return filepath.Join(base, sanitized)
}

// Path returns the database directory
func (l *LevelDBStore) Path() string {
	return l.path
}

func encodeValue(value []byte, ttl time.Duration) []byte {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	encoded := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(encoded[:8], uint64(expiresAt))
	copy(encoded[8:], value)
	return encoded
}

// decodeValue returns the value and whether it has expired
func decodeValue(encoded []byte, now time.Time) ([]byte, bool, error) {
	if len(encoded) < 8 {
		return nil, false, errors.New("kvs/leveldb: invalid encoded value (too short)")
	}

	var expiresAt time.Time
	if nano := int64(binary.BigEndian.Uint64(encoded[:8])); nano > 0 {
		expiresAt = time.Unix(0, nano)
	}
	if expired(expiresAt, now) {
		return nil, true, nil
	}
	return append([]byte(nil), encoded[8:]...), false, nil
}

func (l *LevelDBStore) checkOpen() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// Get retrieves a value; expired keys are deleted on read
func (l *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	encoded, err := l.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvs/leveldb: get failed: %w", err)
	}

	value, isExpired, err := decodeValue(encoded, time.Now())
	if err != nil {
		return nil, err
	}
	if isExpired {
		_ = l.db.Delete([]byte(key), nil)
		return nil, ErrNotFound
	}
	return value, nil
}

// Set stores a value with optional TTL
func (l *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.checkOpen(); err != nil {
		return err
	}

	if err := l.db.Put([]byte(key), encodeValue(value, ttl), &opt.WriteOptions{Sync: l.syncWrites}); err != nil {
		return fmt.Errorf("kvs/leveldb: set failed: %w", err)
	}
	return nil
}

// Delete removes a key
func (l *LevelDBStore) Delete(ctx context.Context, key string) error {
	if err := l.checkOpen(); err != nil {
		return err
	}

	if err := l.db.Delete([]byte(key), &opt.WriteOptions{Sync: l.syncWrites}); err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("kvs/leveldb: delete failed: %w", err)
	}
	return nil
}

// List returns live keys starting with prefix and purges expired ones
func (l *LevelDBStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	now := time.Now()
	keys := make([]string, 0)
	batch := new(leveldb.Batch)
	for iter.Next() {
		_, isExpired, err := decodeValue(iter.Value(), now)
		if err != nil {
			continue
		}
		if isExpired {
			batch.Delete(append([]byte(nil), iter.Key()...))
			continue
		}
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: iteration failed: %w", err)
	}

	if batch.Len() > 0 {
		_ = l.db.Write(batch, nil)
	}
	return keys, nil
}

// Close closes the database
func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("kvs/leveldb: close failed: %w", err)
	}
	return nil
}
