package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces editor write bursts into one reload.
const debounceDelay = 500 * time.Millisecond

// Watcher monitors the configuration documents during a run and invokes a
// callback when one of them changes. Which keys are safe to re-apply mid-run
// is the callback's business; the watcher only reports that something
// changed.
type Watcher struct {
	paths    map[string]bool
	onChange func()

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher builds a watcher over the given document paths. Empty paths are
// skipped.
func NewWatcher(onChange func(), paths ...string) *Watcher {
	w := &Watcher{paths: make(map[string]bool), onChange: onChange}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		w.paths[p] = true
	}
	return w
}

// Run watches the documents' directories until the context is cancelled.
// Directories are watched rather than the files themselves so atomic
// rename-style saves keep being seen.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.paths) == 0 {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	for p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := event.Name
			if abs, err := filepath.Abs(name); err == nil {
				name = abs
			}
			if !w.paths[name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.trigger()

		case _, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			// Watch errors are not fatal to a running migration.
		}
	}
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.onChange)
}
