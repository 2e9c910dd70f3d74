package worker

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tempo/internal/library"
	"tempo/internal/logging"
)

// Watcher reports changes to the loaded library file. It watches the parent
// directory so atomic replace-by-rename saves are seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger

	mu         sync.Mutex
	target     string
	dir        string
	quietUntil time.Time
	timer      *time.Timer
	closeOnce  sync.Once
}

// NewWatcher creates an idle watcher. onChange runs after debounce of quiet.
func NewWatcher(debounce time.Duration, logger *slog.Logger, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fs:       fsw,
		debounce: debounce,
		onChange: onChange,
		logger:   logging.NewComponentLogger(logger, "watcher"),
	}, nil
}

// Watch switches the watched file to path.
func (w *Watcher) Watch(path string) error {
	path = library.NormalizePath(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == path {
		return nil
	}
	if w.dir != "" && w.dir != dir {
		_ = w.fs.Remove(w.dir)
	}
	if w.dir != dir {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	w.target, w.dir = path, dir
	w.logger.Debug("watching library file", logging.String("path", path))
	return nil
}

// Quiet suppresses change reports for d, covering the worker's own writes.
func (w *Watcher) Quiet(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quietUntil = time.Now().Add(d)
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Target returns the watched file.
func (w *Watcher) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// Run forwards debounced events until ctx ends or the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.observe(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == "" || library.NormalizePath(event.Name) != w.target {
		return
	}
	if time.Now().Before(w.quietUntil) {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	target := w.target
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		quiet := time.Now().Before(w.quietUntil) || w.target != target
		w.mu.Unlock()
		if !quiet {
			w.onChange(target)
		}
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fs.Close()
	})
	return err
}
