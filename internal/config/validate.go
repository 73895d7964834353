// Package config provides configuration parsing and management for Voron.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateStorageConfig(&config.Storage)...)
	errs = append(errs, validateJournalConfig(&config.Journal)...)
	errs = append(errs, validateMemoryConfig(&config.Memory)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)

	return errs
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(config *StorageConfig) []error {
	var errs []error

	if config.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.dataDir",
			Message: "data directory is required",
		})
	}

	if size, err := parseSize(config.InitialFileSize); err != nil {
		errs = append(errs, ValidationError{
			Field:   "storage.initialFileSize",
			Message: err.Error(),
		})
	} else if size != 0 && size < storage.PageSize {
		errs = append(errs, ValidationError{
			Field:   "storage.initialFileSize",
			Message: fmt.Sprintf("must be at least one page (%d bytes)", storage.PageSize),
		})
	}

	if config.WriteTransactionTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.writeTransactionTimeout",
			Message: "must be non-negative",
		})
	}

	if config.FlushInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.flushInterval",
			Message: "must be non-negative",
		})
	}

	if config.FlushThresholdPages < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.flushThresholdPages",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateJournalConfig validates journal configuration.
func validateJournalConfig(config *JournalConfig) []error {
	var errs []error

	if size, err := parseSize(config.MaxFileSize); err != nil {
		errs = append(errs, ValidationError{
			Field:   "journal.maxFileSize",
			Message: err.Error(),
		})
	} else if size != 0 && size < 16*storage.PageSize {
		errs = append(errs, ValidationError{
			Field:   "journal.maxFileSize",
			Message: "must be at least 64KiB",
		})
	}

	if config.EncryptionKeyFile != "" {
		if _, err := os.Stat(config.EncryptionKeyFile); err != nil {
			errs = append(errs, ValidationError{
				Field:   "journal.encryptionKeyFile",
				Message: err.Error(),
			})
		}
	}

	return errs
}

// validateMemoryConfig validates buffer pool configuration.
func validateMemoryConfig(config *MemoryConfig) []error {
	var errs []error

	if _, err := parseSize(config.MaxPooledSize); err != nil {
		errs = append(errs, ValidationError{
			Field:   "memory.maxPooledSize",
			Message: err.Error(),
		})
	}

	if _, err := parseSize(config.LowMemoryThreshold); err != nil {
		errs = append(errs, ValidationError{
			Field:   "memory.lowMemoryThreshold",
			Message: err.Error(),
		})
	}

	if config.MonitorInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "memory.monitorInterval",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogConfig validates logging configuration.
func validateLogConfig(config *LogConfig) []error {
	var errs []error

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if config.Level != "" && !validLevels[strings.ToLower(config.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	// Validate log format
	validFormats := map[string]bool{"text": true, "json": true}
	if config.Format != "" && !validFormats[strings.ToLower(config.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	// Validate output
	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: "must be stdout, stderr, or an absolute file path",
			})
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		}
	}

	return errs
}
