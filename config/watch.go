package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of events an editor produces on save.
const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a settings file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onChange func(Settings)
}

// NewWatcher watches path and calls onChange with every successfully
// reloaded version. The directory is watched so that editors which replace
// the file by rename are seen.
func NewWatcher(path string, onChange func(Settings)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		watcher:  w,
		onChange: onChange,
	}, nil
}

// Run delivers reloads until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				slogger().Debug("config: file event", "path", ev.Name, "op", ev.Op.String())
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slogger().Error("config: watcher error", "err", err)

		case <-timer.C:
			w.reload(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}

// reload retries while the file is half written.
func (w *Watcher) reload(ctx context.Context) {
	var s Settings
	op := func() error {
		var err error
		s, err = Load(w.path)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slogger().Warn("config: reload failed, keeping previous settings", "path", w.path, "err", err)
		return
	}
	slogger().Info("config: settings reloaded", "path", w.path)
	w.onChange(s)
}
