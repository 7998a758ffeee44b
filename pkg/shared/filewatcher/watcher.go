// Package filewatcher notifies listeners when a single file changes.
package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Path      string    // Path to the changed file
	Timestamp time.Time // Time of the change
	Error     error     // Error reported by the underlying watcher, if any
}

// ChangeListener receives file change notifications
type ChangeListener interface {
	OnFileChange(event ChangeEvent)
}

// ListenerFunc adapts a function to ChangeListener
type ListenerFunc func(event ChangeEvent)

// OnFileChange calls f(event)
func (f ListenerFunc) OnFileChange(event ChangeEvent) {
	f(event)
}

// Watcher monitors one file and notifies listeners after a quiet period.
// The parent directory is watched so that editors which save by writing a
// temporary file and renaming it over the original are still seen.
type Watcher struct {
	watcher       *fsnotify.Watcher
	listeners     []ChangeListener
	filePath      string
	debounceDelay time.Duration
	mu            sync.RWMutex
}

// NewWatcher creates a watcher for filePath with the given debounce delay
func NewWatcher(filePath string, debounceDelay time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory of %s: %w", absPath, err)
	}

	return &Watcher{
		watcher:       fsWatcher,
		listeners:     make([]ChangeListener, 0),
		filePath:      absPath,
		debounceDelay: debounceDelay,
	}, nil
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.filePath
}

// AddListener registers a listener
func (w *Watcher) AddListener(listener ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, listener)
}

// relevant reports whether event touches the watched file with an operation
// that can change its content
func (w *Watcher) relevant(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil || eventPath != w.filePath {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// Start watches until ctx is canceled or the watcher is closed.
// Listeners are called sequentially from this goroutine, so a slow listener
// delays later notifications instead of running concurrently with them.
func (w *Watcher) Start(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceDelay)
			} else {
				timer.Reset(w.debounceDelay)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.notifyListeners(ChangeEvent{Path: w.filePath, Timestamp: time.Now()})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.notifyListeners(ChangeEvent{Path: w.filePath, Timestamp: time.Now(), Error: err})
		}
	}
}

// Close stops the watcher and releases resources
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) notifyListeners(event ChangeEvent) {
	w.mu.RLock()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()

	for _, listener := range listeners {
		listener.OnFileChange(event)
	}
}
