package issuer

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haloedge/authcore/internal/observability"
)

// ResetCallback is invoked once per debounced file-change event, with the
// issuer names the Watcher was built with, whose Discovered (including
// negative) state should be cleared.
type ResetCallback func(issuers []string)

// Watcher watches an on-disk issuer-configuration file and triggers a
// registry/key-cache reset on change — the out-of-band reconfiguration
// event referenced by §4.3/§4.4 but left unspecified there.
type Watcher struct {
	path          string
	issuers       []string
	watcher       *fsnotify.Watcher
	callback      ResetCallback
	logger        observability.Logger
	debounceDelay time.Duration
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	mu            sync.Mutex
	running       bool
}

// NewWatcher builds a Watcher for path, invoking callback with issuers on
// every debounced change.
func NewWatcher(path string, issuers []string, callback ResetCallback, logger observability.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Watcher{
		path:          absPath,
		issuers:       issuers,
		watcher:       fsWatcher,
		callback:      callback,
		logger:        logger,
		debounceDelay: 200 * time.Millisecond,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}, nil
}

// Start begins watching the configuration file's directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.logger.Info("started watching issuer configuration",
		observability.String("path", w.path))

	go w.watch()
	return nil
}

// Stop stops the watcher and releases its file-system handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.logger.Info("issuer configuration changed, resetting registry state",
				observability.String("path", w.path))
			if w.callback != nil {
				w.callback(w.issuers)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("issuer config watcher error", observability.Error(err))
		}
	}
}
