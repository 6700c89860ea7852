package lexicon

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher holds the current lexicon snapshot and hot-reloads it when the
// backing file changes. A reload that fails validation keeps the previous
// snapshot, so the analyzer always sees a consistent lexicon.
//
// The parent directory is watched rather than the file: editors and
// configmap updates replace the file by rename, which would kill a watch
// on the old inode.
type Watcher struct {
	path    string
	current atomic.Pointer[Lexicon]
	fsw     *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher creates a watcher seeded with an initial snapshot. If path is
// empty the snapshot is fixed and Start is a no-op.
func NewWatcher(path string, initial *Lexicon, logger *zap.Logger) *Watcher {
	w := &Watcher{
		path:   path,
		logger: logger,
	}
	w.current.Store(initial)
	return w
}

// Current returns the active lexicon snapshot.
func (w *Watcher) Current() *Lexicon {
	return w.current.Load()
}

// Start begins watching the lexicon file until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}

	go w.watch(ctx)

	w.logger.Info("Lexicon watcher started",
		zap.String("path", w.path),
		zap.String("version", w.Current().Version),
	)

	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.fsw.Close()

	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// Atomic writers remove the old file before the new
				// one lands; its Create event triggers the reload.
				w.logger.Warn("Lexicon file removed, waiting for replacement",
					zap.String("path", w.path),
				)
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Lexicon watcher error",
				zap.Error(err),
			)
		}
	}
}

// reload swaps in a new snapshot if the file parses and validates.
func (w *Watcher) reload() {
	lex, err := Load(w.path)
	if err != nil {
		w.logger.Error("Lexicon reload failed, keeping previous version",
			zap.String("path", w.path),
			zap.String("current_version", w.Current().Version),
			zap.Error(err),
		)
		return
	}

	w.current.Store(lex)
	w.logger.Info("Lexicon reloaded",
		zap.String("path", w.path),
		zap.String("version", lex.Version),
	)
}
