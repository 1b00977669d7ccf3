// Package watcher drives incremental rebuilds from filesystem events.
// Events under the docs root are debounced into a single rebuild
// signal, since the build pass itself diffs the whole corpus by
// content hash.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/scanner"
)

// DefaultDebounce is the quiet period after the last relevant event
// before a rebuild fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a documentation tree and emits coalesced rebuild
// signals.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	exclude  []string

	rebuilds chan time.Time
}

// New creates a watcher over the docs root. Directories are registered
// recursively; directories named in exclude (and hidden ones) are
// skipped so index writes never retrigger a build.
func New(root string, debounce time.Duration, exclude []string) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		exclude:  exclude,
		rebuilds: make(chan time.Time, 1),
	}

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Rebuilds returns the channel rebuild signals are delivered on. The
// value is the time of the last event in the coalesced burst.
func (w *Watcher) Rebuilds() <-chan time.Time {
	return w.rebuilds
}

// Run processes filesystem events until the context is cancelled. It
// owns the rebuilds channel and closes it on return.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.rebuilds)

	var timer *time.Timer
	var timerC <-chan time.Time
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			// New directories need watches before their contents settle.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Warn("watch_add_failed",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
				}
			}

			lastEvent = time.Now()
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.rebuilds <- lastEvent:
			default:
				// A rebuild signal is already pending.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// relevant filters events down to supported documentation files and
// directory creations (which may contain documents).
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	if scanner.IsSupported(event.Name) {
		return true
	}

	// Directory events matter on create and remove; a stat on a removed
	// path fails, so treat extension-less paths as potential directories.
	if filepath.Ext(event.Name) == "" {
		return true
	}
	return false
}

// addRecursive registers dir and every non-excluded subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || w.excluded(name)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(name string) bool {
	for _, ex := range w.exclude {
		if name == ex {
			return true
		}
	}
	return false
}
