package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// WatcherConfig holds config watcher configuration.
type WatcherConfig struct {
	FilePath     string
	PollInterval time.Duration // Default: 100ms
	Debounce     time.Duration // Default: 200ms

	// Prepare, when set, adjusts every loaded config before validation.
	// Callers use it to apply the same overrides as at startup so that
	// they do not show up as changes.
	Prepare func(c *Config)

	// OnChange receives the previous and the new config whenever a
	// setting changed. It runs on the Run goroutine.
	OnChange func(oldCfg, newCfg *Config, update UpdateType)

	// OnError receives files that could not be read, parsed or validated.
	// The previous config stays current.
	OnError func(err error)
}

// ConfigWatcher polls a config file and reports changed settings together
// with the update they require. A file is reloaded when its content digest
// changes and then stays unchanged for the debounce period.
type ConfigWatcher struct {
	cfg WatcherConfig

	mu      sync.Mutex
	current *Config
	digest  uint64
}

// NewConfigWatcher loads the file once and returns a watcher holding it as
// the current config.
func NewConfigWatcher(cfg *WatcherConfig) (*ConfigWatcher, error) {
	if cfg.FilePath == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}

	w := &ConfigWatcher{cfg: *cfg}
	if w.cfg.PollInterval <= 0 {
		w.cfg.PollInterval = 100 * time.Millisecond
	}
	if w.cfg.Debounce <= 0 {
		w.cfg.Debounce = 200 * time.Millisecond
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	initial, err := w.load(data)
	if err != nil {
		return nil, err
	}
	w.current = initial
	w.digest = xxhash.Sum64(data)
	return w, nil
}

// Current returns the last config accepted by the watcher.
func (w *ConfigWatcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. It returns ctx.Err().
func (w *ConfigWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var settle <-chan time.Time
	var pending []byte
	var pendingDigest uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			data, err := os.ReadFile(w.cfg.FilePath)
			if err != nil {
				// Editors replace files by rename; a missing file is retried.
				continue
			}
			digest := xxhash.Sum64(data)
			if digest == w.lastDigest() {
				pending, settle = nil, nil
				continue
			}
			if pending == nil || digest != pendingDigest {
				pending, pendingDigest = data, digest
				settle = time.After(w.cfg.Debounce)
			}

		case <-settle:
			w.apply(pending, pendingDigest)
			pending, settle = nil, nil
		}
	}
}

func (w *ConfigWatcher) lastDigest() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.digest
}

// apply makes data the current config and reports the change.
func (w *ConfigWatcher) apply(data []byte, digest uint64) {
	next, err := w.load(data)

	w.mu.Lock()
	w.digest = digest
	prev := w.current
	if err == nil {
		w.current = next
	}
	w.mu.Unlock()

	if err != nil {
		if w.cfg.OnError != nil {
			w.cfg.OnError(err)
		}
		return
	}
	if update := RequiredUpdate(prev, next); update != UpdateNone {
		w.cfg.OnChange(prev, next, update)
	}
}

func (w *ConfigWatcher) load(data []byte) (*Config, error) {
	c, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.cfg.FilePath, err)
	}
	if w.cfg.Prepare != nil {
		w.cfg.Prepare(c)
	}
	if errs := ValidateConfig(c); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", w.cfg.FilePath, errors.Join(errs...))
	}
	return c, nil
}
