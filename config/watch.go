package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 200 * time.Millisecond

// Watcher reloads the settings file when it changes on disk. Editors and
// atomic-save writers emit bursts of events; changes are debounced so the
// callback fires once per save with a fully written file.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     *slog.Logger
	onLoad  func(Settings)
	done    chan struct{}
}

// Watch starts watching path; onLoad receives each successfully reloaded
// Settings. The parent directory is watched rather than the file itself so
// rename-based atomic saves keep working.
func Watch(path string, log *slog.Logger, onLoad func(Settings)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching settings dir: %w", err)
	}

	w := &Watcher{
		watcher: fw,
		path:    path,
		log:     log,
		onLoad:  onLoad,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher. Safe once.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				fire = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", "error", err)

		case <-fire:
			timer = nil
			fire = nil
			s, err := Load(w.path)
			if err != nil {
				w.log.Warn("settings reload failed", "error", err)
				continue
			}
			w.log.Info("settings reloaded", "path", w.path)
			w.onLoad(s)
		}
	}
}
