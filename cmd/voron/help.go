package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `voron - transactional storage engine tools

Usage:
  voron <command> [options]

Commands:
  info        Show environment header, statistics and root objects
  check       Validate every table and fixed-size tree
  recover     Run journal recovery and flush to the data file
  replay      Replay a debug journal into an environment
  serve       Keep an environment open and reload its configuration
  config      Configuration management
  version     Show version information

Use "voron <command> -h" for more information about a command.
`)
}

const environmentOptions = `Options:
  -config string
        Path to configuration file
  -data-dir string
        Data directory path (overrides config, default "/var/lib/voron")
  -h, -help
        Show this help message

Environment Variables:
  VORON_STORAGE_DATA_DIR             Override data directory path
  VORON_JOURNAL_DIR                  Override journal directory path
  VORON_JOURNAL_ENCRYPTION_KEY_FILE  Override journal encryption key file
  VORON_LOGGING_LEVEL                Override log level
`

// printInfoUsage prints the info command usage.
func printInfoUsage(w io.Writer) {
	fmt.Fprint(w, `Show environment header, statistics and root objects

Usage:
  voron info [options]

`+environmentOptions)
}

// printCheckUsage prints the check command usage.
func printCheckUsage(w io.Writer) {
	fmt.Fprint(w, `Validate every table and fixed-size tree

Usage:
  voron check [options]

Exits with status 1 when an index tree is inconsistent with its table.

`+environmentOptions)
}

// printRecoverUsage prints the recover command usage.
func printRecoverUsage(w io.Writer) {
	fmt.Fprint(w, `Run journal recovery and flush to the data file

Usage:
  voron recover [options]

Replays every committed journal record after the last flushed transaction,
truncates a torn journal tail and writes the result to the data file.

`+environmentOptions)
}

// printReplayUsage prints the replay command usage.
func printReplayUsage(w io.Writer) {
	fmt.Fprint(w, `Replay a debug journal into an environment

Usage:
  voron replay -journal <file.djrn> [options]

  -journal string
        Debug journal file (required)
`+environmentOptions)
}

// printServeUsage prints the serve command usage.
func printServeUsage(w io.Writer) {
	fmt.Fprint(w, `Keep an environment open and reload its configuration

Usage:
  voron serve [options]

The environment stays open with its background flusher until SIGINT or
SIGTERM. SIGHUP flushes the journal to the data file. When -config is
given the file is watched: logging.level, logging.format,
memory.lowMemoryThreshold and memory.monitorInterval are applied in
place; other changes are logged and need a restart.

`+environmentOptions)
}

// printConfigUsage prints the config command usage.
func printConfigUsage(w io.Writer) {
	fmt.Fprint(w, `Configuration management

Usage:
  voron config <subcommand> [options]

Subcommands:
  validate    Validate configuration file
  init        Generate default configuration
  show        Show effective configuration

Use "voron config <subcommand> -h" for more information.
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  voron version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}
