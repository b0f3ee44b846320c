// Package watch re-runs a batch when the measurement files of a directory
// change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"crunchcli/internal/config"
	"crunchcli/internal/files"
	"crunchcli/internal/tolerance"
)

// DefaultDebounce is used when a Watcher is created with a zero debounce.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc is called once per settled burst of changes. An error is logged
// and watching goes on.
type RunFunc func(ctx context.Context) error

// Watcher watches one directory. Creates, writes and renames of csv, txt and
// xlsx files and of the default tolerance file trigger a run once no further
// event arrived for the debounce period. Result tables are ignored so a run
// does not trigger itself.
type Watcher struct {
	dir      string
	debounce time.Duration
	run      RunFunc
	logger   *slog.Logger
}

// New creates a watcher for dir.
func New(dir string, debounce time.Duration, run RunFunc, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		run:      run,
		logger:   logger.With(slog.String("component", "watcher"), slog.String("dir", dir)),
	}
}

// Run blocks until ctx is done. Runs happen on the calling goroutine, so
// events arriving during a run are collected and start the next one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.InfoContext(ctx, "watching for changes", slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.DebugContext(ctx, "change detected",
				slog.String("file", filepath.Base(event.Name)),
				slog.String("op", event.Op.String()))
			pending[filepath.Base(event.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watch error", slog.String("error", err.Error()))

		case <-timer.C:
			w.logger.InfoContext(ctx, "re-running batch", slog.Int("changed", len(pending)))
			clear(pending)
			if err := w.run(ctx); err != nil {
				w.logger.ErrorContext(ctx, "batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, config.ResultFileBase) {
		return false
	}
	return files.IsMeasurementFile(name) || name == tolerance.DefaultFileName
}
