package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/lode/domain/config"
	"github.com/felixgeelhaar/lode/infrastructure/logging"
)

// Watcher reloads a configuration file when it changes on disk.
// Editors often write via rename, so the parent directory is watched
// rather than the file itself. Rapid event bursts are debounced.
type Watcher struct {
	path     string
	loader   *Loader
	onChange func(*config.Settings)
	debounce time.Duration

	watcher *fsnotify.Watcher
	timerMu sync.Mutex
	timer   *time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the given configuration file. Each
// successful reload invokes onChange with the new settings; reload
// failures are logged and the previous settings stay in effect.
func NewWatcher(path string, loader *Loader, onChange func(*config.Settings)) (*Watcher, error) {
	if loader == nil {
		loader = NewLoader()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		loader:   loader,
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	return err
}

// run consumes filesystem events until closed.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().
				Add(logging.Str("path", w.path)).
				Add(logging.ErrorField(err)).
				Msg("config watch error")
		}
	}
}

// scheduleReload debounces bursts of events into one reload.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload re-reads the file and hands the result to the callback.
func (w *Watcher) reload() {
	w.timerMu.Lock()
	w.timer = nil
	w.timerMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	settings, err := w.loader.LoadFile(w.path)
	if err != nil {
		logging.Warn().
			Add(logging.Str("path", w.path)).
			Add(logging.ErrorField(err)).
			Msg("config reload failed, keeping previous settings")
		return
	}

	logging.Info().
		Add(logging.Str("path", w.path)).
		Msg("configuration reloaded")
	w.onChange(settings)
}
