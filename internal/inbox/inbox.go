// Package inbox loads transaction files dropped into a directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// DefaultSettle is how long a file must stay quiet before it is loaded.
const DefaultSettle = 250 * time.Millisecond

// Loader loads a transaction file. *swap.Session satisfies it.
type Loader interface {
	LoadFile(ctx context.Context, path string) error
}

// Config holds configuration for a Watcher.
type Config struct {
	Dir    string
	Loader Loader
	Settle time.Duration // default 250ms
	Logger *logging.Logger
}

// Watcher watches a directory and hands new or rewritten transaction
// files to the loader.
type Watcher struct {
	dir    string
	loader Loader
	settle time.Duration
	log    *logging.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
}

// New creates a Watcher.
func New(cfg *Config) *Watcher {
	settle := cfg.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("inbox")
	}
	return &Watcher{
		dir:    cfg.Dir,
		loader: cfg.Loader,
		settle: settle,
		log:    log,
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 16),
	}
}

// Match reports whether name looks like a transaction file.
func Match(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json", ".txt":
		return true
	}
	return false
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.log.Info("Watching inbox", "dir", w.dir)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("inbox watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Match(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("inbox watcher closed")
			}
			w.log.Warn("Inbox watcher error", "error", err)

		case path := <-w.ready:
			w.load(ctx, path)
		}
	}
}

// schedule (re)starts the settle timer for path, so a burst of writes
// results in one load.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		default:
			w.log.Warn("Inbox busy, skipping file", "path", path)
		}
	})
}

func (w *Watcher) load(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.log.Info("Loading transaction from inbox", "file", filepath.Base(path))
	if err := w.loader.LoadFile(ctx, path); err != nil {
		w.log.Warn("Inbox file not loaded", "file", filepath.Base(path), "error", err)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
