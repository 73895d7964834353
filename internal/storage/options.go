package storage

import (
	"errors"
	"time"

	"github.com/KilimcininKorOglu/voron/internal/crypto"
	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/memory"
)

// Default option values.
const (
	DefaultMaxJournalFileSize      = 64 * 1024 * 1024
	DefaultFlushInterval           = time.Second
	DefaultFlushThresholdPages     = 2048
	DefaultWriteTransactionTimeout = 30 * time.Second
	DefaultInitialFileSize         = 64 * 1024
	minJournalFileSize             = 16 * PageSize
)

// ErrInvalidOptions is returned by Validate for unusable options.
var ErrInvalidOptions = errors.New("invalid environment options")

// EnvironmentOptions configures a storage environment.
type EnvironmentOptions struct {
	// BasePath is the directory holding the data file.
	BasePath string

	// JournalPath overrides the journal directory.
	// Default: <BasePath>/Journals.
	JournalPath string

	// TempPath overrides the temp directory.
	// Default: <BasePath>/Temp.
	TempPath string

	// MaxJournalFileSize is the size at which a new journal file is started.
	// Default: 64MB.
	MaxJournalFileSize int64

	// SyncJournal syncs the journal on every commit. Validate leaves it
	// as is, so a zero EnvironmentOptions does not sync; only
	// DefaultEnvironmentOptions turns it on.
	SyncJournal bool

	// FlushInterval is how often committed pages are applied to the data file.
	// Default: 1 second.
	FlushInterval time.Duration

	// FlushThresholdPages triggers a flush once this many pages are unflushed.
	// Default: 2048.
	FlushThresholdPages int

	// ManualFlush disables the background flusher; FlushJournal must be
	// called explicitly.
	ManualFlush bool

	// WriteTransactionTimeout bounds the wait for the write lock.
	// Default: 30 seconds.
	WriteTransactionTimeout time.Duration

	// InitialFileSize is the initial size of the data file in bytes.
	// Default: 64KB.
	InitialFileSize int64

	// EncryptionKey encrypts journal payloads when set.
	EncryptionKey *crypto.EncryptionKey

	// Pool supplies page buffers. When nil the environment creates and
	// owns one.
	Pool *memory.BuffersPool

	// Logger receives engine events. Default: no-op.
	Logger logging.Logger
}

// DefaultEnvironmentOptions returns the default options for the given base path.
func DefaultEnvironmentOptions(basePath string) EnvironmentOptions {
	return EnvironmentOptions{
		BasePath:                basePath,
		MaxJournalFileSize:      DefaultMaxJournalFileSize,
		SyncJournal:             true,
		FlushInterval:           DefaultFlushInterval,
		FlushThresholdPages:     DefaultFlushThresholdPages,
		WriteTransactionTimeout: DefaultWriteTransactionTimeout,
		InitialFileSize:         DefaultInitialFileSize,
	}
}

// Validate fills in defaults and rejects unusable values.
func (o *EnvironmentOptions) Validate() error {
	if o.BasePath == "" {
		return errors.Join(ErrInvalidOptions, ErrEmptyPath)
	}
	if o.MaxJournalFileSize <= 0 {
		o.MaxJournalFileSize = DefaultMaxJournalFileSize
	}
	if o.MaxJournalFileSize < minJournalFileSize {
		return errors.Join(ErrInvalidOptions, errors.New("max journal file size must be at least 64KB"))
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.FlushThresholdPages <= 0 {
		o.FlushThresholdPages = DefaultFlushThresholdPages
	}
	if o.WriteTransactionTimeout <= 0 {
		o.WriteTransactionTimeout = DefaultWriteTransactionTimeout
	}
	if o.InitialFileSize <= 0 {
		o.InitialFileSize = DefaultInitialFileSize
	}
	if o.InitialFileSize%PageSize != 0 {
		o.InitialFileSize += PageSize - o.InitialFileSize%PageSize
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return nil
}

// WithJournalPath sets the journal directory.
func (o EnvironmentOptions) WithJournalPath(path string) EnvironmentOptions {
	o.JournalPath = path
	return o
}

// WithTempPath sets the temp directory.
func (o EnvironmentOptions) WithTempPath(path string) EnvironmentOptions {
	o.TempPath = path
	return o
}

// WithMaxJournalFileSize sets the journal rotation size.
func (o EnvironmentOptions) WithMaxJournalFileSize(size int64) EnvironmentOptions {
	o.MaxJournalFileSize = size
	return o
}

// WithSyncJournal enables or disables syncing the journal on commit.
func (o EnvironmentOptions) WithSyncJournal(sync bool) EnvironmentOptions {
	o.SyncJournal = sync
	return o
}

// WithFlushInterval sets the background flush interval.
func (o EnvironmentOptions) WithFlushInterval(interval time.Duration) EnvironmentOptions {
	o.FlushInterval = interval
	return o
}

// WithFlushThresholdPages sets the unflushed page count that triggers a flush.
func (o EnvironmentOptions) WithFlushThresholdPages(pages int) EnvironmentOptions {
	o.FlushThresholdPages = pages
	return o
}

// WithManualFlush disables the background flusher.
func (o EnvironmentOptions) WithManualFlush(manual bool) EnvironmentOptions {
	o.ManualFlush = manual
	return o
}

// WithWriteTransactionTimeout sets the write lock wait limit.
func (o EnvironmentOptions) WithWriteTransactionTimeout(timeout time.Duration) EnvironmentOptions {
	o.WriteTransactionTimeout = timeout
	return o
}

// WithEncryptionKey enables journal encryption.
func (o EnvironmentOptions) WithEncryptionKey(key *crypto.EncryptionKey) EnvironmentOptions {
	o.EncryptionKey = key
	return o
}

// WithPool injects a shared buffer pool.
func (o EnvironmentOptions) WithPool(pool *memory.BuffersPool) EnvironmentOptions {
	o.Pool = pool
	return o
}

// WithLogger sets the logger.
func (o EnvironmentOptions) WithLogger(logger logging.Logger) EnvironmentOptions {
	o.Logger = logger
	return o
}
