// internal/loader/watch.go
package loader

import (
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

/*
 * Document hot-reload watching.
 *
 * Watches the directories containing the catalog and rule files (watching
 * directories, not files, survives the rename-over-file pattern editors
 * and atomic writers use) and invokes the reload callback after a
 * debounce window so an editor's write+rename burst triggers one reload.
 *
 * Reload failure handling is the callback's job: loaders return errors
 * without mutating anything, so the caller keeps its previous snapshot.
 */

// debounceWindow batches rapid successive file events into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher invokes a callback when any of the watched files change.
type Watcher struct {
	fsw   *fsnotify.Watcher
	files map[string]bool // absolute paths of interest
	done  chan struct{}
}

// Watch starts watching the given files. onChange runs on the watcher
// goroutine after each debounced change burst.
func Watch(paths []string, onChange func(), log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:   fsw,
		files: make(map[string]bool, len(paths)),
		done:  make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.run(onChange, log)
	return w, nil
}

// run owns the event loop: filter events to watched files, debounce, fire.
func (w *Watcher) run(onChange func(), log *slog.Logger) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
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
			log.Debug("document changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			onChange()
		}
	}
}

// relevant filters directory noise down to writes against watched files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
