package catalog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads the manifest file into a Store when it changes on disk.
// A file that fails to parse is logged and the previous manifest stays in
// place.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	path    string
	logger  zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(store *Store, path string, logger zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		store:   store,
		path:    abs,
		logger:  logger.With().Str("component", "catalog-watcher").Str("path", abs).Logger(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file so that editors replacing the file by rename are noticed.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	m, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Manifest reload failed, keeping previous version")
		return
	}

	w.store.Replace(m)
	w.logger.Info().Int("exercises", len(m.order)).Msg("Manifest reloaded")
}

// Stop stops watching and cancels any pending reload.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.watcher.Close()
		w.wg.Wait()
	})
}
