// Command storewatch watches a browser tab on the supported game store and
// community hosts, detects the game on screen, and injects a playtime
// statistics widget into the page.
//
// Usage:
//
//	storewatch -config storewatch.yaml                       # full config
//	storewatch -url https://store.steampowered.com/app/620/  # open one page
//	storewatch -attach -remote ws://127.0.0.1:9222/...       # join user's tab
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

	"github.com/playsense/storewatch"
	"github.com/playsense/storewatch/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to storewatch.yaml config file")
	url := flag.String("url", "", "open and watch a single URL")
	remote := flag.String("remote", "", "DevTools WebSocket URL of a running browser")
	attach := flag.Bool("attach", false, "attach to an existing tab instead of opening one")
	backendURL := flag.String("backend", "", "stats service endpoint")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *url, *remote, *attach, *backendURL); err != nil {
		logger.Error("storewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, url, remote string, attach bool, backendURL string) error {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Flags override the file.
	if url != "" {
		cfg.Watch.URL = url
	}
	if remote != "" {
		cfg.Browser.Remote = remote
	}
	if attach {
		cfg.Watch.Attach = true
	}
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}

	if cfg.Watch.URL == "" && !cfg.Watch.Attach {
		fmt.Fprintln(os.Stderr, "usage: storewatch -config <file> | -url <url> | -attach [-remote <ws-url>]")
		os.Exit(1)
	}
	if cfg.Backend.URL == "" {
		return fmt.Errorf("no backend endpoint configured")
	}

	w := storewatch.New(cfg, logger)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	cs := storewatch.NewControlServer(w, cfg.Control.Listen, logger)
	cs.Start()

	<-ctx.Done()
	logger.Info("storewatch: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("storewatch: control shutdown", "error", err)
	}
	return nil
}
