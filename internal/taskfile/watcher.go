package taskfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sheetsync/internal/core"
	"sheetsync/internal/store"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// Importer persists imported tasks and templates.
type Importer interface {
	ImportTasks(ctx context.Context, specs []core.TaskSpec) ([]core.TaskSpec, error)
	SaveTemplate(ctx context.Context, tpl store.Template) (store.Template, error)
}

// Reconciler brings the scheduler in line with the stored tasks.
type Reconciler interface {
	Reconcile(specs []core.TaskSpec) error
}

// Watcher imports a task file at startup and again whenever it changes.
// Tasks removed from the file stay in the store.
type Watcher struct {
	path     string
	importer Importer
	engine   Reconciler
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	lastHash uint64
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, importer Importer, engine Reconciler, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		importer: importer,
		engine:   engine,
		logger:   logger,
		debounce: DefaultDebounce,
	}
}

// Load imports the file once. Unchanged content is skipped.
func (w *Watcher) Load(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}
	h := hashBytes(data)
	w.mu.Lock()
	defer w.mu.Unlock()
	if h == w.lastHash {
		w.logger.Debug("task file unchanged", "path", w.path)
		return nil
	}
	doc, err := decode(w.path, data)
	if err != nil {
		return err
	}
	for _, tpl := range doc.Templates {
		if _, err := w.importer.SaveTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("import template %s: %w", tpl.ID, err)
		}
	}
	all, err := w.importer.ImportTasks(ctx, doc.Tasks)
	if err != nil {
		return err
	}
	w.lastHash = h
	w.logger.Info("task file imported", "path", w.path, "tasks", len(doc.Tasks), "templates", len(doc.Templates))
	if err := w.engine.Reconcile(all); err != nil {
		w.logger.Warn("some imported tasks could not be scheduled", "err", err)
	}
	return nil
}

// Watch reloads the file on change until ctx is done. The parent directory
// is watched so editors that replace the file by rename are followed.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir, file := filepath.Dir(w.path), filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching task file", "path", w.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if err := w.Load(ctx); err != nil {
				w.logger.Warn("task file reload failed", "path", w.path, "err", err)
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("task file watch error", "path", w.path, "err", err)
		}
	}
}
