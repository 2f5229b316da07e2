package dom

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nao1215/campusshield/internal/log"
)

// DefaultDebounce is the quiet period after the last write before the
// document is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher reloads a Document whenever its backing file changes, so that
// observers see the same stream of mutations a live page would produce.
type FileWatcher struct {
	doc      *Document
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger for reload reports.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher watches the file at path and reloads doc from it.
//
// The parent directory is watched rather than the file itself, so that
// editors replacing the file through a rename keep being observed.
func NewFileWatcher(doc *Document, path string, opts ...WatcherOption) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", abs, err)
	}

	w := &FileWatcher{
		doc:      doc,
		path:     abs,
		debounce: DefaultDebounce,
		logger:   log.Discard(),
		watcher:  watcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches for changes until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *FileWatcher) reload() {
	f, err := os.Open(w.path)
	if err != nil {
		w.logger.Warn("document reload failed", "path", w.path, "error", err)
		return
	}
	defer f.Close()

	if err := w.doc.Reload(f); err != nil {
		w.logger.Warn("document reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Debug("document reloaded", "path", w.path)
}
