// DocMirror is a daemon that mirrors local document collections into a
// remote document-search service. Local writes land in a SQLite database
// immediately; two background engines push them to the remote side and
// resolve the asynchronous ingestion operations the remote side hands back.
//
// Usage:
//
//	docmirror daemon [--config <path>]      # run engines + HTTP API
//	docmirror sync-once [--config <path>]   # one full reconcile pass then exit
//	docmirror status [--config <path>]      # show config & mirror state
//	docmirror version                       # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docmirror/docmirror/internal/api"
	"github.com/docmirror/docmirror/internal/config"
	"github.com/docmirror/docmirror/internal/events"
	"github.com/docmirror/docmirror/internal/poll"
	"github.com/docmirror/docmirror/internal/remote"
	"github.com/docmirror/docmirror/internal/service"
	"github.com/docmirror/docmirror/internal/state"
	syncp "github.com/docmirror/docmirror/internal/sync"
	"github.com/docmirror/docmirror/internal/telemetry"
	"github.com/docmirror/docmirror/internal/wake"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch os.Args[1] {
	case "daemon":
		return runMirror(os.Args[2:], true)
	case "sync-once":
		return runMirror(os.Args[2:], false)
	case "status":
		return runStatus(os.Args[2:])
	case "version":
		fmt.Println("docmirror", version)
		return nil
	}

	return fmt.Errorf("unknown command %q, run 'docmirror' for usage", os.Args[1])
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "DocMirror, a local mirror for a remote document-search service")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  docmirror daemon [--config ...]      Run engines + HTTP API")
	fmt.Fprintln(os.Stderr, "  docmirror sync-once [--config ...]   One full reconcile pass then exit")
	fmt.Fprintln(os.Stderr, "  docmirror status [--config ...]      Show config & mirror state")
	fmt.Fprintln(os.Stderr, "  docmirror version                    Print version")
	fmt.Fprintln(os.Stderr, "")
	os.Exit(1)
	return nil // unreachable
}

// runStatus prints the current configuration and mirror state.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("DocMirror Status")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:       %s (invalid: %v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:       %s\n", *cfgPath)
	fmt.Printf("  Remote:       %s\n", cfg.RemoteBaseURL)
	if cfg.ListenAddr != "" {
		fmt.Printf("  HTTP API:     %s\n", cfg.ListenAddr)
	} else {
		fmt.Printf("  HTTP API:     disabled\n")
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		fmt.Printf("  Database:     not found (%s)\n", dbPath)
		return nil
	}
	fmt.Printf("  Database:     %s (%d bytes)\n", dbPath, info.Size())

	store, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	defer store.Close()

	cols, err := store.ListCollections(context.Background())
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	fmt.Printf("  Collections:  %d\n", len(cols))
	for _, c := range cols {
		fmt.Printf("    %-36s  %-10s  %d item(s), %d pending, %d failed\n",
			c.Title, c.Status, c.ItemCount, c.LocalPendingCount, c.LocalFailedCount)
	}
	return nil
}

// runMirror handles both "daemon" and "sync-once".
func runMirror(args []string, daemon bool) error {
	fs := flag.NewFlagSet("mirror", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}
	logger.Info("config loaded",
		"remote", cfg.RemoteBaseURL,
		"sync_interval", cfg.SyncInterval,
		"poll_interval", cfg.PollInterval,
	)

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	store, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", dbPath)

	gw := remote.NewClient(cfg.RemoteBaseURL, cfg.APIKey, logger)
	bus := events.NewBus()
	syncSignal := wake.NewSignal()
	pollSignal := wake.NewSignal()

	engine := syncp.NewEngine(store, gw, bus, syncSignal, pollSignal, cfg.SyncInterval, logger)
	poller := poll.NewPoller(store, gw, bus, pollSignal, cfg.PollInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if !daemon {
		return runOnce(ctx, engine, poller, store, logger)
	}

	engine.Start(ctx)
	poller.Start(ctx)
	logger.Info("engines started",
		"sync_interval", cfg.SyncInterval,
		"poll_interval", cfg.PollInterval,
	)

	if cfg.ListenAddr != "" {
		svc := service.New(store, syncSignal, pollSignal, logger)
		srv := api.NewServer(cfg.ListenAddr, svc, bus, logger)
		go func() {
			logger.Info("HTTP API listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP API server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP API shutdown", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown complete")
	return nil
}

// runOnce drives one full reconcile pass: a single sync cycle (its four
// steps cover the whole push queue), then poll cycles until no operations
// remain in flight or the wait budget runs out.
func runOnce(ctx context.Context, engine *syncp.Engine, poller *poll.Poller, store *state.Store, logger *slog.Logger) error {
	logger.Info("running single reconcile pass")

	engine.Cycle(ctx)

	deadline := time.Now().Add(5 * time.Minute)
	for poller.Cycle(ctx) {
		pending, err := store.ItemsWithPendingOperations(ctx)
		if err != nil {
			return fmt.Errorf("checking pending operations: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			logger.Warn("remote operations still in flight, giving up", "pending", len(pending))
			break
		}
		logger.Info("waiting for remote operations", "pending", len(pending))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll.ActiveInterval):
		}
	}

	logger.Info("reconcile pass complete")
	return nil
}

func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return state.DefaultDBPath()
}
