package tracker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounce batches bursts of filesystem events (editors often
	// write a file several times per save) into one sync.
	DefaultDebounce = 500 * time.Millisecond
)

// Watcher monitors a project tree and triggers incremental syncs when
// source files change.
type Watcher struct {
	tracker  *Tracker
	ignore   []string
	debounce time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	kick    chan struct{}
}

// WatchOptions configures a watch session
type WatchOptions struct {
	Ignore   []string      // Glob patterns for paths that never trigger a sync
	Debounce time.Duration // Quiet period before a triggered sync (default: DefaultDebounce)
	SyncCfg  *Config       // Passed through to each Sync run
	// OnSync is invoked after every triggered sync with its outcome.
	// Optional.
	OnSync func(*Stats, error)
}

// NewWatcher creates a Watcher bound to a tracker.
func NewWatcher(t *Tracker, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		tracker: t,
		log:     log,
		kick:    make(chan struct{}, 1),
	}
}

// Watch blocks, syncing rootPath whenever watched files change, until ctx
// is cancelled. An initial sync runs before watching starts so the index
// reflects the tree as of the call.
func (w *Watcher) Watch(ctx context.Context, rootPath string, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w.debounce = opts.Debounce
	w.ignore = opts.Ignore

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addWatches(fsw, rootPath); err != nil {
		return err
	}

	stats, err := w.tracker.Sync(ctx, rootPath, opts.SyncCfg)
	if opts.OnSync != nil {
		opts.OnSync(stats, err)
	}
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, rootPath, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)

		case <-w.kick:
			stats, err := w.tracker.Sync(ctx, rootPath, opts.SyncCfg)
			if errors.Is(err, ErrSyncInProgress) {
				// A sync is already running; queue another pass.
				w.schedule()
				continue
			}
			if opts.OnSync != nil {
				opts.OnSync(stats, err)
			}
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				w.log.Error("triggered sync failed", "error", err)
			}
		}
	}
}

// addWatches recursively adds watches to all relevant directories.
// Symlink cycles are broken by tracking canonical paths.
func (w *Watcher) addWatches(fsw *fsnotify.Watcher, root string) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !info.IsDir() {
			return nil
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if w.ignoredDir(root, path) {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent filters one fsnotify event and schedules a debounced sync
// when it is relevant.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, root string, event fsnotify.Event) {
	// New directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoredDir(root, event.Name) {
				_ = w.addWatches(fsw, event.Name)
				w.schedule()
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.ignoredPath(root, event.Name) {
		return
	}
	w.schedule()
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) ignoredDir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.ignore {
		dirPattern := strings.TrimSuffix(pattern, "/**")
		if matched, _ := doublestar.Match(dirPattern, rel); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) ignoredPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.ignore {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
