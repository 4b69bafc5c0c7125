package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder keeps a configuration that can be reloaded at runtime,
// either on SIGHUP or when the file changes on disk.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the file at path and wraps the result.
func NewHolder(path string, log zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Holder{
		config: cfg,
		path:   path,
		log:    log,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// OnChange registers a callback invoked after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Reload re-reads the file. The previous configuration stays in
// effect when the new one fails to load.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping previous")
		return err
	}

	h.mu.Lock()
	old := h.config
	h.config = cfg
	callbacks := make([]func(*Config), len(h.onChange))
	copy(callbacks, h.onChange)
	h.mu.Unlock()

	h.logChanges(old, cfg)
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// WatchSignals reloads on SIGHUP until Stop is called.
func (h *Holder) WatchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ch:
				h.log.Info().Msg("received SIGHUP, reloading config")
				_ = h.Reload()
			case <-h.stopCh:
				signal.Stop(ch)
				return
			}
		}
	}()
}

// WatchFile reloads whenever the config file is rewritten. The parent
// directory is watched so editors that replace the file are caught.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return err
	}

	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()

	go h.watchLoop(watcher)
	return nil
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	name := filepath.Base(h.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.log.Info().Str("path", h.path).Msg("config file changed, reloading")
			_ = h.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.log.Error().Err(err).Msg("config watcher error")
		case <-h.stopCh:
			return
		}
	}
}

// Stop ends signal and file watching.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.Lock()
		if h.watcher != nil {
			h.watcher.Close()
			h.watcher = nil
		}
		h.mu.Unlock()
	})
}

func (h *Holder) logChanges(old, cur *Config) {
	if old.Storage.Driver != cur.Storage.Driver {
		h.log.Info().Str("from", old.Storage.Driver).Str("to", cur.Storage.Driver).
			Msg("storage driver changed, takes effect on restart")
	}
	if old.Logging.Level != cur.Logging.Level {
		h.log.Info().Str("from", old.Logging.Level).Str("to", cur.Logging.Level).
			Msg("log level changed")
	}
	if old.Schema.Dir != cur.Schema.Dir {
		h.log.Info().Str("from", old.Schema.Dir).Str("to", cur.Schema.Dir).
			Msg("schema directory changed")
	}
}
