package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/KilimcininKorOglu/voron/internal/config"
	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/memory"
	"github.com/KilimcininKorOglu/voron/internal/storage/debugjournal"
	"github.com/KilimcininKorOglu/voron/internal/storage/env"
	"github.com/KilimcininKorOglu/voron/internal/storage/table"
)

// session is an environment opened by a command together with the buffer
// pool and low-memory monitor built from the configuration.
type session struct {
	cfg     *config.Config
	env     *env.Environment
	pool    *memory.BuffersPool
	monitor *memory.LowMemoryMonitor
	logger  logging.Logger
	cancel  context.CancelFunc
}

// openSession loads the configuration, applies the data directory override
// and opens the environment. Recovery runs as part of the open. Commands
// are short-lived, so the background flusher is always disabled.
func openSession(configFile, dataDir string) (*session, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	return startSession(cfg, true)
}

// startSession opens the environment described by cfg. With manualFlush
// set the background flusher stays off whatever cfg says.
func startSession(cfg *config.Config, manualFlush bool) (*session, error) {
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger := cfg.NewLogger()
	poolOpts, err := cfg.PoolOptions(logger)
	if err != nil {
		return nil, err
	}
	monitor, err := cfg.NewLowMemoryMonitor(logger)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.EnvironmentOptions(logger)
	if err != nil {
		return nil, err
	}
	if manualFlush {
		opts = opts.WithManualFlush(true)
	}

	pool := memory.NewBuffersPool(poolOpts)
	monitor.Register(pool)
	monitor.AddSource(func() uint64 { return uint64(pool.Stats().AllocatedBytes) })
	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)

	e, err := env.Open(opts.WithPool(pool))
	if err != nil {
		cancel()
		return nil, errors.Join(err, pool.Close())
	}
	return &session{cfg: cfg, env: e, pool: pool, monitor: monitor, logger: logger, cancel: cancel}, nil
}

// Close closes the environment, stops the monitor and frees the pool.
func (s *session) Close() error {
	err := s.env.Close()
	s.cancel()
	return errors.Join(err, s.pool.Close())
}

// loadConfig returns the file configuration, or the defaults when no file
// is given, with environment overrides applied.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(configFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// commonFlags registers the flags every environment command takes.
func commonFlags(fs *flag.FlagSet) (configFile, dataDir *string, help, helpLong *bool) {
	configFile = fs.String("config", "", "Path to configuration file")
	dataDir = fs.String("data-dir", "", "Data directory path (overrides config)")
	help = fs.Bool("h", false, "Show help message")
	helpLong = fs.Bool("help", false, "Show help message")
	return
}

// infoCmd handles the info command.
func infoCmd(args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile, dataDir, help, helpLong := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printInfoUsage(os.Stdout)
		return 0
	}

	s, err := openSession(*configFile, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening environment: %v\n", err)
		return 1
	}
	defer s.Close()

	header := s.env.Header()
	stats := s.env.Stats()
	paths := s.env.Paths()

	fmt.Printf("Environment %s\n", paths.Base)
	fmt.Printf("  Database ID:       %s\n", header.DbID)
	fmt.Printf("  Journal dir:       %s\n", paths.Journal)
	fmt.Printf("  Transaction:       %d\n", stats.TransactionID)
	fmt.Printf("  Last flushed:      %d\n", stats.LastFlushedTransaction)
	if !header.FlushedAt.IsZero() {
		fmt.Printf("  Flushed at:        %s (%s)\n", header.FlushedAt.Format(time.RFC3339), humanize.Time(header.FlushedAt))
	}
	fmt.Printf("  Data file:         %s\n", humanize.IBytes(uint64(stats.DataFileSize)))
	fmt.Printf("  Next page:         %d\n", stats.NextPageNumber)
	fmt.Printf("  Free pages:        %s\n", humanize.Comma(int64(stats.FreePages)))
	fmt.Printf("  Unflushed pages:   %s\n", humanize.Comma(int64(stats.UnflushedPages)))
	fmt.Printf("  Journal files:     %d\n", stats.JournalFiles)
	fmt.Printf("  Scratch in use:    %s\n", humanize.IBytes(uint64(stats.Scratch.InUse)))

	if version, err := s.env.SchemaVersion(); err == nil {
		fmt.Printf("  Schema version:    %d\n", version)
	}

	tx, err := s.env.ReadTransaction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening read transaction: %v\n", err)
		return 1
	}
	defer tx.Dispose()

	objects, err := tx.RootObjects()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing root objects: %v\n", err)
		return 1
	}

	fmt.Printf("\nRoot objects (%d):\n", len(objects))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tENTRIES\tPAGES\tDEPTH")
	for _, o := range objects {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%d\n", o.Name, o.Type, humanize.Comma(o.State.Entries), o.State.PageCount(), o.State.Depth)
	}
	w.Flush()

	return 0
}

// checkCmd handles the check command.
func checkCmd(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile, dataDir, help, helpLong := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printCheckUsage(os.Stdout)
		return 0
	}

	s, err := openSession(*configFile, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening environment: %v\n", err)
		return 1
	}
	defer s.Close()

	cache, err := table.NewSchemaCache(1024)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema cache: %v\n", err)
		return 1
	}
	defer cache.Close()

	tx, err := s.env.ReadTransaction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening read transaction: %v\n", err)
		return 1
	}
	defer tx.Dispose()

	startTime := time.Now()
	if err := table.AssertValidTables(tx, cache); err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}

	fmt.Printf("Environment is consistent (transaction %d, %v)\n", tx.ID(), time.Since(startTime).Round(time.Millisecond))
	return 0
}

// recoverCmd handles the recover command.
func recoverCmd(args []string) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile, dataDir, help, helpLong := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printRecoverUsage(os.Stdout)
		return 0
	}

	startTime := time.Now()
	s, err := openSession(*configFile, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recovery failed: %v\n", err)
		return 1
	}

	if err := s.env.FlushJournal(); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		s.Close()
		return 1
	}
	stats := s.env.Stats()
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Close failed: %v\n", err)
		return 1
	}

	fmt.Printf("Recovery completed successfully!\n")
	fmt.Printf("  Transaction:   %d\n", stats.TransactionID)
	fmt.Printf("  Journal files: %d\n", stats.JournalFiles)
	fmt.Printf("  Duration:      %v\n", time.Since(startTime).Round(time.Millisecond))
	return 0
}

// replayCmd handles the replay command.
func replayCmd(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile, dataDir, help, helpLong := commonFlags(fs)
	journalFile := fs.String("journal", "", "Debug journal file (.djrn)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printReplayUsage(os.Stdout)
		return 0
	}

	if *journalFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -journal is required")
		return 1
	}

	dir, name := filepath.Split(*journalFile)
	name = strings.TrimSuffix(name, debugjournal.Extension)
	if dir == "" {
		dir = "."
	}
	j, err := debugjournal.FromFile(dir, name, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading journal: %v\n", err)
		return 1
	}

	s, err := openSession(*configFile, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening environment: %v\n", err)
		return 1
	}

	startTime := time.Now()
	if err := j.Replay(context.Background(), s.env); err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		s.Close()
		return 1
	}
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Close failed: %v\n", err)
		return 1
	}

	fmt.Printf("Replay completed successfully!\n")
	fmt.Printf("  Journal:      %s\n", j.Path())
	fmt.Printf("  Transactions: %d\n", len(j.Transactions()))
	fmt.Printf("  Duration:     %v\n", time.Since(startTime).Round(time.Millisecond))
	return 0
}
