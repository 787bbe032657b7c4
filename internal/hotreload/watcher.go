// Package hotreload re-reads the config file when it changes on disk, so
// webhook secrets and the command allow-list can rotate without a restart.
package hotreload

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jordanhubbard/relay/pkg/config"
)

const debounceInterval = 250 * time.Millisecond

// Watcher observes one config file. Each successful reload invokes the
// callback with the freshly validated config; an invalid file is logged
// and the previous config stays in effect.
type Watcher struct {
	path     string
	onReload func(*config.Config)

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// New builds a watcher for the config at path.
func New(path string, onReload func(*config.Config)) *Watcher {
	return &Watcher{path: path, onReload: onReload}
}

// Run watches until ctx is cancelled. Editors replace files rather than
// write them in place, so the watch is on the directory and events are
// filtered to our file; a debounce timer collapses the write/rename bursts
// a single save produces.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	log.Printf("[HotReload] watching %s", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[HotReload] watch error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := config.LoadConfigFromFile(w.path)
	if err != nil {
		log.Printf("[HotReload] config rejected, keeping previous: %v", err)
		return
	}
	log.Printf("[HotReload] config reloaded from %s", w.path)
	w.onReload(cfg)
}
