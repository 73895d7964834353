// Package config provides configuration parsing and management for Voron.
package config

import "time"

// Config holds the complete engine configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Journal JournalConfig `yaml:"journal"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LogConfig     `yaml:"logging"`
}

// StorageConfig holds data file and transaction settings.
type StorageConfig struct {
	DataDir                 string        `yaml:"dataDir"`
	TempDir                 string        `yaml:"tempDir"`
	InitialFileSize         string        `yaml:"initialFileSize"`
	WriteTransactionTimeout time.Duration `yaml:"writeTransactionTimeout"`
	FlushInterval           time.Duration `yaml:"flushInterval"`
	FlushThresholdPages     int           `yaml:"flushThresholdPages"`
	ManualFlush             bool          `yaml:"manualFlush"`
}

// JournalConfig holds write-ahead journal settings.
type JournalConfig struct {
	Dir               string `yaml:"dir"`
	MaxFileSize       string `yaml:"maxFileSize"`
	Sync              bool   `yaml:"sync"`
	EncryptionKeyFile string `yaml:"encryptionKeyFile"`
}

// MemoryConfig holds buffer pool settings.
type MemoryConfig struct {
	MaxPooledSize      string        `yaml:"maxPooledSize"`
	LowMemoryThreshold string        `yaml:"lowMemoryThreshold"`
	MonitorInterval    time.Duration `yaml:"monitorInterval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}
