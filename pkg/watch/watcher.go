// Package watch re-runs analysis when source or facts files change.
package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/reaper/pkg/config"
	"github.com/panbanda/reaper/pkg/frontend/facts"
	"github.com/panbanda/reaper/pkg/parser"
)

// DefaultDebounce is used when NewWatcher is given a non-positive debounce.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors a tree and reports batches of changed files once they
// have been quiet for the debounce period.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	debounce  time.Duration
	path      string
	out       io.Writer
	callback  func(changed []string)
	mu        sync.Mutex
	pending   map[string]time.Time
}

// NewWatcher creates a new file watcher rooted at path. Status lines go to out.
func NewWatcher(path string, cfg *config.Config, debounce time.Duration, out io.Writer) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if out == nil {
		out = io.Discard
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		debounce:  debounce,
		path:      path,
		out:       out,
		pending:   make(map[string]time.Time),
	}, nil
}

// SetCallback sets the function called with each batch of changed files.
func (w *Watcher) SetCallback(cb func(changed []string)) {
	w.callback = cb
}

// Start watches until ctx is cancelled or the watcher is stopped.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return err
	}

	color.New(color.FgCyan).Fprintf(w.out, "Watching for changes in %s...\n", w.path)
	color.New(color.FgCyan).Fprintln(w.out, "Press Ctrl+C to stop")

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			color.New(color.FgRed).Fprintf(w.out, "Watch error: %v\n", err)
		}
	}
}

// addTree adds root and every non-excluded directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.config.ExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// handleEvent records a change to an analyzable file. Removals count since a
// deleted caller can turn live code dead.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	path := event.Name
	if w.inExcludedDir(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path); err != nil {
				color.New(color.FgRed).Fprintf(w.out, "Watch error: %v\n", err)
			}
			return
		}
	}

	if !facts.IsFactsFile(path) && parser.DetectLanguage(path) == parser.LangUnknown {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) inExcludedDir(path string) bool {
	rel, err := filepath.Rel(w.path, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if w.config.ExcludedDir(dir) {
			return true
		}
	}
	return false
}

// processDebounced flushes pending changes until ctx is done.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

// processPending runs the callback once every pending file has been quiet
// for the debounce period. A burst of saves becomes a single batch.
func (w *Watcher) processPending() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, lastMod := range w.pending {
		if now.Sub(lastMod) < w.debounce {
			w.mu.Unlock()
			return
		}
	}
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	sort.Strings(changed)
	w.runCallback(changed)
}

func (w *Watcher) runCallback(changed []string) {
	if w.callback == nil {
		return
	}
	for _, path := range changed {
		rel, err := filepath.Rel(w.path, path)
		if err != nil {
			rel = path
		}
		color.New(color.FgYellow).Fprintf(w.out, "Changed: %s\n", rel)
	}
	w.callback(changed)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories currently watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
