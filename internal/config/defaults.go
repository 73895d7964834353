package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:                 "/var/lib/voron",
			TempDir:                 "",
			InitialFileSize:         "64KiB",
			WriteTransactionTimeout: 30 * time.Second,
			FlushInterval:           time.Second,
			FlushThresholdPages:     2048,
			ManualFlush:             false,
		},
		Journal: JournalConfig{
			Dir:               "",
			MaxFileSize:       "64MiB",
			Sync:              true,
			EncryptionKeyFile: "",
		},
		Memory: MemoryConfig{
			MaxPooledSize:      "16MiB",
			LowMemoryThreshold: "",
			MonitorInterval:    5 * time.Second,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
