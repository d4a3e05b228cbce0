package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/pkg/batch"
	"github.com/albertocavalcante/assetpipe/pkg/importdb"
)

// DefaultDebounce is the debounce window used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Config configures the watcher.
type Config struct {
	Pipeline *batch.Pipeline
	Debounce time.Duration
	Clock    clock.Clock
	Logger   *Logger
}

// Watcher watches the source tree and imports stale assets after changes.
type Watcher struct {
	config    Config
	root      string
	scanner   *importdb.Scanner
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger
	log       *zap.SugaredLogger

	// runMu prevents overlapping batches
	runMu sync.Mutex
	ctx   context.Context
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("watch: pipeline is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = NewLogger(LoggerConfig{})
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	scanner := cfg.Pipeline.Scanner()
	return &Watcher{
		config:    cfg,
		root:      scanner.Root(),
		scanner:   scanner,
		fsWatcher: fsWatcher,
		logger:    cfg.Logger,
		log:       log.Component("watch"),
		ctx:       context.Background(),
	}, nil
}

// Run imports whatever is stale, then watches for changes until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx
	w.debouncer = NewDebouncerWithClock(w.config.Clock, w.config.Debounce, w.handleChanged)
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	assets, err := w.config.Pipeline.Scan(ctx)
	if err != nil {
		return err
	}
	w.logger.Ready(len(assets), w.root)
	w.sync(nil)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				w.log.Debugw("permission denied", "path", path)
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.scanner.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			w.log.Debugw("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// relevant reports whether a slash-separated source path can affect an
// import.
func (w *Watcher) relevant(rel string) bool {
	if w.scanner.Ignored(rel) {
		return false
	}
	for _, part := range strings.Split(rel, "/")[:strings.Count(rel, "/")] {
		if w.scanner.IgnoredDir(part) {
			return false
		}
	}
	return strings.HasSuffix(rel, importdb.SidecarSuffix) || w.scanner.Types().Tracks(rel)
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.scanner.IgnoredDir(filepath.Base(path)) {
				return
			}
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
			// Files copied in with the directory produce no events of their own.
			w.debouncer.Add(w.relPath(path))
			return
		}
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		change = ChangeDeleted
	default:
		return // chmod
	}

	rel := w.relPath(path)
	if rel == "" || !w.relevant(rel) {
		return
	}
	w.logger.FileChanged(rel, change)
	w.debouncer.Add(rel)
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// handleChanged runs when the debouncer flushes.
func (w *Watcher) handleChanged(paths []string) {
	w.log.Debugw("changes settled", "paths", len(paths))
	w.sync(paths)
}

// sync prunes deleted assets and imports stale ones.
func (w *Watcher) sync(paths []string) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	ctx := w.ctx
	if ctx.Err() != nil {
		return
	}

	removed, err := w.config.Pipeline.PruneRemoved(ctx)
	if err != nil {
		w.logger.Error(fmt.Errorf("failed to prune removed assets: %w", err))
		return
	}

	stale, err := w.config.Pipeline.Stale(ctx, false)
	if err != nil {
		w.logger.Error(fmt.Errorf("failed to check staleness: %w", err))
		return
	}
	if len(stale) == 0 {
		if len(removed) > 0 {
			w.logger.Imported(nil, nil, removed)
		}
		return
	}

	w.logger.Importing(len(stale))
	outcome, err := w.config.Pipeline.NewRunner().Run(ctx, stale)
	if err != nil {
		w.logger.Error(fmt.Errorf("import failed: %w", err))
		return
	}

	failed := make(map[string]error, len(outcome.Failed))
	for _, f := range outcome.Failed {
		failed[f.AssetID] = f.Err
	}
	w.logger.Imported(outcome.Imported, failed, append(removed, outcome.Removed...))
	w.log.Debugw("batch finished", "run", outcome.RunID, "state", outcome.State, "changed", len(paths))
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
