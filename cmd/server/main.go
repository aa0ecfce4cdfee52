package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gyaneshwarpardhi/subway/internal/api"
	"github.com/gyaneshwarpardhi/subway/internal/config"
	"github.com/gyaneshwarpardhi/subway/internal/fare"
	"github.com/gyaneshwarpardhi/subway/internal/store"
	"github.com/gyaneshwarpardhi/subway/internal/transit"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("subway server stopped", "err", err)
		os.Exit(1)
	}
}

// run owns every resource of the process, so its defers close the store and
// stop the watcher on both normal shutdown and failure.
func run(args []string) error {
	fs := flag.NewFlagSet("subway", flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := fs.String("config", "configs/subway.yaml", "Path to YAML config; empty runs on defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}

	level := new(slog.LevelVar)
	logger := newLogger(os.Stdout, "text", level)
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()
	level.Set(parseLevel(cfg.Log.Level))
	if cfg.Log.Format != "text" {
		logger = newLogger(os.Stdout, cfg.Log.Format, level)
		slog.SetDefault(logger)
	}
	srvConf := cfg.Server
	if *addr != "" {
		srvConf.Addr = *addr
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	st, err := store.Open(store.Options{Path: cfg.Store.Path, Logger: logger})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", "err", err)
		}
	}()
	if cfg.Store.Path == "" {
		slog.Warn("store path not set, data will not survive a restart")
	}

	// ── Transit graph ─────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := transit.New(ctx, st, transit.Options{
		RouteCacheSize: cfg.Routing.CacheSize,
		Logger:         logger.With("component", "transit"),
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	specs, err := lineSpecs(cfg)
	if err != nil {
		return err
	}
	if err := svc.Seed(ctx, specs); err != nil {
		return fmt.Errorf("seed network: %w", err)
	}
	stats := svc.Stats()
	slog.Info("graph built", "stations", stats.Stations, "edges", stats.Edges, "lines", len(cfg.Network.Lines))

	ledger := fare.NewLedger(st)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.AppConfig) error {
		level.Set(parseLevel(newCfg.Log.Level))
		if newCfg.Store.Path != cfg.Store.Path {
			slog.Warn("store path change needs a restart", "current", cfg.Store.Path, "configured", newCfg.Store.Path)
		}
		specs, err := lineSpecs(newCfg)
		if err != nil {
			return err
		}
		if err := svc.Seed(ctx, specs); err != nil {
			return fmt.Errorf("seed network: %w", err)
		}
		slog.Info("network hot-reloaded", "lines", len(newCfg.Network.Lines), "graph_version", svc.Stats().Version)
		return nil
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(svc, ledger, loader, logger)
	srv := &http.Server{
		Addr:         srvConf.Addr,
		Handler:      handler,
		ReadTimeout:  srvConf.ReadTimeout(),
		WriteTimeout: srvConf.WriteTimeout(),
		IdleTimeout:  srvConf.IdleTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srvConf.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("serve %s: %w", srvConf.Addr, err)
		}
	case <-quit:
	}
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	cancel()
	slog.Info("goodbye")
	return nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func lineSpecs(cfg *config.AppConfig) ([]transit.LineSpec, error) {
	out := make([]transit.LineSpec, len(cfg.Network.Lines))
	for i, l := range cfg.Network.Lines {
		cents, err := l.FareCents()
		if err != nil {
			return nil, fmt.Errorf("line %q fare: %w", l.Name, err)
		}
		out[i] = transit.LineSpec{Name: l.Name, FareCents: cents, Stations: l.Stations}
	}
	return out, nil
}
