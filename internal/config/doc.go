// Package config provides configuration parsing and management for Voron.
//
// # Overview
//
// The config package loads, parses and validates engine configuration
// from YAML files and environment variables. It supports:
//
//   - YAML configuration files
//   - ${VAR} and ${VAR:-default} substitution
//   - Default values for all settings
//   - Configuration validation
//   - Human readable sizes ("64MiB", "100MB")
//
// # Configuration Structure
//
//	type Config struct {
//	    Storage StorageConfig // Data file and transaction settings
//	    Journal JournalConfig // Write-ahead journal settings
//	    Memory  MemoryConfig  // Buffer pool settings
//	    Logging LogConfig     // Logging settings
//	}
//
// # Loading Configuration
//
//	cfg, err := config.LoadConfig("/etc/voron/voron.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts, err := cfg.EnvironmentOptions(cfg.NewLogger())
//
// # Updates
//
// Fields lists every setting with the update it needs when changed.
// RequiredUpdate compares two configurations and returns the strongest
// one, so a watcher can tell a log level change (UpdateReload) from a
// journal directory change (UpdateRestart).
//
// # Example Configuration
//
//	storage:
//	  dataDir: "/var/lib/voron"
//	  initialFileSize: 64KiB
//	  writeTransactionTimeout: 30s
//	  flushInterval: 1s
//	  flushThresholdPages: 2048
//
//	journal:
//	  dir: "${VORON_JOURNAL_DIR:-/var/lib/voron/Journals}"
//	  maxFileSize: 64MiB
//	  sync: true
//	  encryptionKeyFile: "/etc/voron/journal.key"
//
//	memory:
//	  maxPooledSize: 16MiB
//	  lowMemoryThreshold: 2GiB
//	  monitorInterval: 5s
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stderr"
package config
