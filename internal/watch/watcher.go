// Package watch triggers pipeline runs for input files dropped into an inbox
// directory.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cfdwind/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// DefaultExtensions are the input tree formats picked up from the inbox.
var DefaultExtensions = []string{".json", ".yaml", ".yml"}

// Handler processes one settled inbox file.
type Handler func(ctx context.Context, path string) error

// InboxWatcher watches a directory and calls its Handler once per settled file.
// Handlers run on the watcher goroutine, one file at a time.
type InboxWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	extensions  []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	FilesSeen     int
	Handled       int
	Failed        int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewInboxWatcher creates a watcher for dir. debounce <= 0 uses DefaultDebounce.
func NewInboxWatcher(dir string, debounce time.Duration, handler Handler) (*InboxWatcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &InboxWatcher{
		watcher:     watcher,
		dir:         dir,
		handler:     handler,
		extensions:  DefaultExtensions,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start creates the inbox if needed and begins watching. It does not block.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	logging.Watch("Watching inbox %s (debounce %s)", w.dir, w.debounceDur)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for an in-flight handler to return.
func (w *InboxWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("Error closing inbox watcher: %v", err)
	}
	logging.Watch("Inbox watcher stopped")
}

func (w *InboxWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.debounceDur / 5)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("Inbox watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-tick.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *InboxWatcher) accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

func (w *InboxWatcher) handleEvent(event fsnotify.Event) {
	if !w.accepts(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if _, pending := w.debounceMap[event.Name]; !pending {
			w.stats.FilesSeen++
		}
		w.debounceMap[event.Name] = time.Now()
		w.stats.LastEventTime = time.Now()
		w.stats.LastEventPath = event.Name
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.debounceMap, event.Name)
	}
}

// processDebounced handles files that have been quiet for the debounce window,
// oldest first.
func (w *InboxWatcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, path)
		}
	}
	slices.SortFunc(settled, func(a, b string) int {
		return w.debounceMap[a].Compare(w.debounceMap[b])
	})
	for _, path := range settled {
		delete(w.debounceMap, path)
	}
	w.mu.Unlock()

	for _, path := range settled {
		if ctx.Err() != nil {
			return
		}
		w.dispatch(ctx, path)
	}
}

func (w *InboxWatcher) dispatch(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		logging.Get(logging.CategoryWatch).Debug("Skipping %s: no longer a regular file", path)
		return
	}
	logging.Watch("Handling inbox file %s", path)
	err := w.handler(ctx, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Failed++
		logging.WatchWarn("Inbox file %s failed: %v", path, err)
		return
	}
	w.stats.Handled++
}

// Stats returns a snapshot of watcher activity.
func (w *InboxWatcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the watcher is running.
func (w *InboxWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Dir returns the inbox directory.
func (w *InboxWatcher) Dir() string { return w.dir }

// Close releases the underlying watcher when Start was never called.
func (w *InboxWatcher) Close() error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if running {
		w.Stop()
		return nil
	}
	return w.watcher.Close()
}

// ProcessExisting runs the handler for inbox files already present, in name
// order. It is meant to be called before Start to pick up a backlog.
func (w *InboxWatcher) ProcessExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !w.accepts(entry.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.dispatch(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}
