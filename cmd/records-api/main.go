// main is the entry point of the Records API application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger and the metrics registry
//  3. Connect to the configured store (Redis by default, or SQLite)
//  4. Build the record service and the HTTP route table
//  5. Serve HTTP until an OS signal (Ctrl+C / kill) arrives
//  6. Gracefully shut down: finish in-flight requests, close the store, exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/records-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/records-api
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aanand-mishra/records-api/internal/config"
	"github.com/aanand-mishra/records-api/internal/http/router"
	"github.com/aanand-mishra/records-api/internal/metrics"
	"github.com/aanand-mishra/records-api/internal/service/record"
	"github.com/aanand-mishra/records-api/internal/storage"
	"github.com/aanand-mishra/records-api/internal/storage/redis"
	"github.com/aanand-mishra/records-api/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// The logger becomes the slog default so packages that log through
	// slog.Info / slog.Warn share its handler and level.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting records-api",
		slog.String("env", cfg.Env),
		slog.String("driver", cfg.Storage.Driver),
	)

	if err := run(cfg, log); err != nil {
		log.Error("records-api stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// run returns once the server has stopped and the store is closed.
func run(cfg *config.Config, log *slog.Logger) error {
	m := metrics.NewManager()

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	store, err := openStore(cfg, m)
	if err != nil {
		return fmt.Errorf("initialise storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	// ── 4. Service and Routes ─────────────────────────────────────────────
	svc := record.New(storage.NewInstrumented(store, m))

	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: router.New(svc, m, cfg.HTTPServer),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 5. Serve until signalled ──────────────────────────────────────────
	// The group's context is cancelled by SIGINT/SIGTERM or by the server
	// failing to listen; either way the shutdown goroutine runs.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// ── 6. Graceful Shutdown ──────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore builds the backend named by cfg.Storage.Driver.
func openStore(cfg *config.Config, m *metrics.Manager) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("storage initialised", slog.String("path", cfg.Storage.SQLitePath))
		return s, nil
	default:
		r, err := redis.New(cfg, m)
		if err != nil {
			return nil, err
		}
		slog.Info("storage initialised", slog.String("address", cfg.Redis.Addr()))
		return r, nil
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
