package config

import (
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/memory"
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// NewLogger creates the logger described by the logging section.
func (c *Config) NewLogger() logging.Logger {
	return logging.New(logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	})
}

// PoolOptions converts the memory section into buffer pool options.
func (c *Config) PoolOptions(logger logging.Logger) (memory.PoolOptions, error) {
	maxPooled, err := parseSize(c.Memory.MaxPooledSize)
	if err != nil {
		return memory.PoolOptions{}, fmt.Errorf("memory.maxPooledSize: %w", err)
	}
	return memory.PoolOptions{MaxPooledSize: int(maxPooled), Logger: logger}, nil
}

// NewLowMemoryMonitor creates the monitor described by the memory section.
// A missing threshold yields a monitor that never fires on its own.
func (c *Config) NewLowMemoryMonitor(logger logging.Logger) (*memory.LowMemoryMonitor, error) {
	threshold, err := c.LowMemoryThreshold()
	if err != nil {
		return nil, err
	}
	return memory.NewLowMemoryMonitor(threshold, c.Memory.MonitorInterval, logger), nil
}

// LowMemoryThreshold returns memory.lowMemoryThreshold in bytes.
func (c *Config) LowMemoryThreshold() (uint64, error) {
	threshold, err := parseSize(c.Memory.LowMemoryThreshold)
	if err != nil {
		return 0, fmt.Errorf("memory.lowMemoryThreshold: %w", err)
	}
	return uint64(threshold), nil
}

// EnvironmentOptions converts the configuration into environment options.
// The journal encryption key, when configured, is loaded from its file.
func (c *Config) EnvironmentOptions(logger logging.Logger) (storage.EnvironmentOptions, error) {
	opts := storage.DefaultEnvironmentOptions(c.Storage.DataDir).
		WithJournalPath(c.Journal.Dir).
		WithTempPath(c.Storage.TempDir).
		WithSyncJournal(c.Journal.Sync).
		WithManualFlush(c.Storage.ManualFlush).
		WithLogger(logger)

	if c.Storage.FlushInterval > 0 {
		opts = opts.WithFlushInterval(c.Storage.FlushInterval)
	}
	if c.Storage.FlushThresholdPages > 0 {
		opts = opts.WithFlushThresholdPages(c.Storage.FlushThresholdPages)
	}
	if c.Storage.WriteTransactionTimeout > 0 {
		opts = opts.WithWriteTransactionTimeout(c.Storage.WriteTransactionTimeout)
	}

	size, err := parseSize(c.Journal.MaxFileSize)
	if err != nil {
		return storage.EnvironmentOptions{}, fmt.Errorf("journal.maxFileSize: %w", err)
	}
	if size > 0 {
		opts = opts.WithMaxJournalFileSize(size)
	}

	initial, err := parseSize(c.Storage.InitialFileSize)
	if err != nil {
		return storage.EnvironmentOptions{}, fmt.Errorf("storage.initialFileSize: %w", err)
	}
	if initial > 0 {
		opts.InitialFileSize = initial
	}

	if c.Journal.EncryptionKeyFile != "" {
		key, err := crypto.LoadKeyFromFile(c.Journal.EncryptionKeyFile)
		if err != nil {
			return storage.EnvironmentOptions{}, fmt.Errorf("journal.encryptionKeyFile: %w", err)
		}
		opts = opts.WithEncryptionKey(key)
	}

	return opts, nil
}
