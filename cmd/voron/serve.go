package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/voron/internal/config"
	"github.com/KilimcininKorOglu/voron/internal/logging"
)

// errShutdown ends the serve loop on SIGINT or SIGTERM.
var errShutdown = errors.New("shutdown requested")

// server keeps an environment open with its background flusher and applies
// reloadable configuration changes to it while it runs.
type server struct {
	*session
	watcher *config.ConfigWatcher
}

// serveCmd handles the serve command.
func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configFile, dataDir, help, helpLong := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		printServeUsage(os.Stdout)
		return 0
	}

	srv, err := newServer(*configFile, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening environment: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	err = srv.serve(context.Background(), sigCh)
	if closeErr := srv.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Serve failed: %v\n", err)
		return 1
	}
	return 0
}

// newServer opens the environment. With a config file the file is watched
// and every accepted version goes through the same overrides as at startup.
func newServer(configFile, dataDir string) (*server, error) {
	prepare := func(c *config.Config) {
		applyEnvOverrides(c)
		if dataDir != "" {
			c.Storage.DataDir = dataDir
		}
	}

	srv := &server{}
	cfg := config.DefaultConfig()
	if configFile != "" {
		w, err := config.NewConfigWatcher(&config.WatcherConfig{
			FilePath: configFile,
			Prepare:  prepare,
			OnChange: srv.handleConfigReload,
			OnError:  srv.handleConfigError,
		})
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		srv.watcher = w
		cfg = w.Current()
	} else {
		prepare(cfg)
	}

	s, err := startSession(cfg, false)
	if err != nil {
		return nil, err
	}
	srv.session = s
	return srv, nil
}

// serve runs until ctx is done or a shutdown signal arrives. SIGHUP flushes
// the journal to the data file.
func (srv *server) serve(ctx context.Context, signals <-chan os.Signal) error {
	paths := srv.env.Paths()
	srv.logger.Info("environment open", "path", paths.Base, "journal", paths.Journal, "transaction", srv.env.Stats().TransactionID)

	g, gctx := errgroup.WithContext(ctx)
	if srv.watcher != nil {
		g.Go(func() error { return srv.watcher.Run(gctx) })
		srv.logger.Info("config file watcher started")
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case sig := <-signals:
				if sig == syscall.SIGHUP {
					srv.handleSIGHUP()
					continue
				}
				srv.logger.Info("received signal, shutting down", "signal", sig.String())
				return errShutdown
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errShutdown) || ctx.Err() != nil {
		return nil
	}
	return err
}

// handleSIGHUP flushes committed transactions to the data file.
func (srv *server) handleSIGHUP() {
	srv.logger.Info("received SIGHUP, flushing journal")
	if err := srv.env.FlushJournal(); err != nil {
		srv.logger.Error("flush failed", "error", err)
		return
	}
	stats := srv.env.Stats()
	srv.logger.Info("journal flushed", "lastFlushed", stats.LastFlushedTransaction, "journalFiles", stats.JournalFiles)
}

// handleConfigReload applies reloadable settings to the running environment
// and reports the ones that need a restart.
func (srv *server) handleConfigReload(oldCfg, newCfg *config.Config, _ config.UpdateType) {
	for _, f := range config.Changed(oldCfg, newCfg) {
		if f.Update == config.UpdateRestart {
			srv.logger.Warn("config change requires restart", "field", f.Path, "old", f.Get(oldCfg), "new", f.Get(newCfg))
			continue
		}

		switch f.Path {
		case "logging.level":
			srv.logger.SetLevel(logging.ParseLevel(newCfg.Logging.Level))
		case "logging.format":
			srv.logger.SetFormat(logging.ParseFormat(newCfg.Logging.Format))
		case "memory.lowMemoryThreshold":
			threshold, err := newCfg.LowMemoryThreshold()
			if err != nil {
				srv.logger.Warn("config change rejected", "field", f.Path, "error", err)
				continue
			}
			srv.monitor.SetThreshold(threshold)
		case "memory.monitorInterval":
			srv.monitor.SetInterval(newCfg.Memory.MonitorInterval)
		}
		srv.logger.Info("config reloaded", "field", f.Path, "old", f.Get(oldCfg), "new", f.Get(newCfg))
	}
	srv.cfg = newCfg
}

func (srv *server) handleConfigError(err error) {
	srv.logger.Warn("config file ignored", "error", err)
}
