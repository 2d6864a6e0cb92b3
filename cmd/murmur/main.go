// Command murmur runs the Murmur daemon: it opens the local store, applies
// pending schema migrations, then serves the domain services until
// interrupted. Any bootstrap failure is fatal; the daemon never serves
// against an absent or partially migrated store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/murmurapp/murmur/internal/bus"
	"github.com/murmurapp/murmur/internal/config"
	"github.com/murmurapp/murmur/internal/doctor"
	"github.com/murmurapp/murmur/internal/library"
	"github.com/murmurapp/murmur/internal/retention"
	"github.com/murmurapp/murmur/internal/storage"
	"github.com/murmurapp/murmur/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	runDoctor := flag.Bool("doctor", false, "run self-diagnostics and exit")
	dbOverride := flag.String("db", "", "database file path (overrides config)")
	quiet := flag.Bool("quiet", false, "log to file only, keep stdout clean")
	sweepNow := flag.Bool("sweep-now", false, "run one retention sweep immediately after startup")
	flag.Parse()

	if *showVersion {
		fmt.Println("murmur", Version)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: load config: %v\n", err)
		return 1
	}

	if *runDoctor {
		return printDiagnosis(ctx, &cfg)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: init logging: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	path := cfg.DBPath()
	if *dbOverride != "" {
		path = *dbOverride
	}

	eventBus := bus.New()
	store := storage.NewManager(path,
		storage.WithLogger(logger),
		storage.WithBus(eventBus),
		storage.WithRetryPolicy(storage.Policy{
			MaxRetries: cfg.Storage.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay(),
			MaxDelay:   cfg.RetryMaxDelay(),
		}),
	)

	if err := store.Initialize(ctx); err != nil {
		logger.Error("fatal: store open failed", "path", path, "error", err)
		return 1
	}
	defer store.Close()

	runner := storage.NewRunner(store,
		storage.WithRunnerLogger(logger),
		storage.WithRunnerBus(eventBus),
	)
	if err := runner.Run(ctx, storage.Migrations); err != nil {
		// The store may be partially migrated; refuse to serve.
		logger.Error("fatal: migration failed", "error", err)
		return 1
	}

	lib := library.New(store, eventBus, logger)

	var sweeper *retention.Sweeper
	if cfg.Retention.Schedule != "" {
		sweeper, err = retention.NewSweeper(retention.Config{
			Library:         lib,
			Bus:             eventBus,
			Logger:          logger,
			Schedule:        cfg.Retention.Schedule,
			RecordingTTL:    time.Duration(cfg.Retention.RecordingTTLDays) * 24 * time.Hour,
			ArchivedNoteTTL: time.Duration(cfg.Retention.ArchivedNoteTTLDays) * 24 * time.Hour,
		})
		if err != nil {
			logger.Error("fatal: bad retention schedule", "schedule", cfg.Retention.Schedule, "error", err)
			return 1
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
		if *sweepNow {
			sweeper.Sweep(ctx)
		}
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				// Storage and retention settings are bound at startup.
				logger.Info("config changed on disk; restart to apply")
			}
		}()
	}

	logger.Info("murmur ready", "version", Version, "db", path)
	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

func printDiagnosis(ctx context.Context, cfg *config.Config) int {
	d := doctor.Run(ctx, cfg, Version)
	fmt.Printf("murmur %s on %s/%s (%s)\n\n", d.System.Version, d.System.OS, d.System.Arch, d.System.Go)

	exit := 0
	for _, r := range d.Results {
		fmt.Printf("%-4s %-12s %s\n", r.Status, r.Name, r.Message)
		if r.Detail != "" {
			fmt.Printf("     %-12s %s\n", "", r.Detail)
		}
		if r.Status == "FAIL" {
			exit = 1
		}
	}
	return exit
}
