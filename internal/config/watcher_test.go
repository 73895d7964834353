package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

// startWatcher runs w until the test ends.
func startWatcher(t *testing.T, w *ConfigWatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func TestNewConfigWatcherErrors(t *testing.T) {
	if _, err := NewConfigWatcher(&WatcherConfig{OnChange: func(_, _ *Config, _ UpdateType) {}}); err != ErrMissingConfigFile {
		t.Errorf("expected ErrMissingConfigFile, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "voron.yaml")
	writeConfig(t, path, "logging:\n  level: info\n")
	if _, err := NewConfigWatcher(&WatcherConfig{FilePath: path}); err != ErrMissingOnChange {
		t.Errorf("expected ErrMissingOnChange, got %v", err)
	}

	writeConfig(t, path, "logging:\n  level: loud\n")
	if _, err := NewConfigWatcher(&WatcherConfig{FilePath: path, OnChange: func(_, _ *Config, _ UpdateType) {}}); err == nil {
		t.Error("expected an error for an invalid initial config")
	}
}

func TestConfigWatcherReportsUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voron.yaml")
	writeConfig(t, path, "logging:\n  level: info\n")

	updates := make(chan UpdateType, 4)
	w, err := NewConfigWatcher(&WatcherConfig{
		FilePath:     path,
		PollInterval: 10 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		OnChange: func(oldCfg, newCfg *Config, update UpdateType) {
			if oldCfg.Logging.Level != "info" || newCfg.Logging.Level != "debug" {
				t.Errorf("levels = %q -> %q, want info -> debug", oldCfg.Logging.Level, newCfg.Logging.Level)
			}
			updates <- update
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	startWatcher(t, w)

	writeConfig(t, path, "logging:\n  level: debug\n")

	select {
	case update := <-updates:
		if update != UpdateReload {
			t.Errorf("update = %v, want %v", update, UpdateReload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update reported")
	}

	if got := w.Current().Logging.Level; got != "debug" {
		t.Errorf("Current().Logging.Level = %q, want debug", got)
	}
}

func TestConfigWatcherPrepare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voron.yaml")
	writeConfig(t, path, "storage:\n  dataDir: /from/file\n")

	updates := make(chan []FieldDescriptor, 4)
	w, err := NewConfigWatcher(&WatcherConfig{
		FilePath:     path,
		PollInterval: 10 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		Prepare:      func(c *Config) { c.Storage.DataDir = "/override" },
		OnChange: func(oldCfg, newCfg *Config, _ UpdateType) {
			updates <- Changed(oldCfg, newCfg)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Current().Storage.DataDir; got != "/override" {
		t.Errorf("Current().Storage.DataDir = %q, want /override", got)
	}
	startWatcher(t, w)

	// The file's data directory changes too, but the override hides it.
	writeConfig(t, path, "storage:\n  dataDir: /moved\nmemory:\n  monitorInterval: 2s\n")

	select {
	case changed := <-updates:
		if len(changed) != 1 || changed[0].Path != "memory.monitorInterval" {
			paths := make([]string, len(changed))
			for i, f := range changed {
				paths[i] = f.Path
			}
			t.Errorf("changed = %v, want [memory.monitorInterval]", paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update reported")
	}
}

func TestConfigWatcherKeepsConfigOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voron.yaml")
	writeConfig(t, path, "logging:\n  level: info\n")

	errs := make(chan error, 4)
	w, err := NewConfigWatcher(&WatcherConfig{
		FilePath:     path,
		PollInterval: 10 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		OnChange: func(_, _ *Config, _ UpdateType) {
			t.Error("OnChange called for an invalid file")
		},
		OnError: func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	startWatcher(t, w)

	writeConfig(t, path, "logging:\n  level: loud\n")

	select {
	case err := <-errs:
		if err == nil {
			t.Error("OnError received nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
	}

	if got := w.Current().Logging.Level; got != "info" {
		t.Errorf("Current().Logging.Level = %q, want info", got)
	}
}
