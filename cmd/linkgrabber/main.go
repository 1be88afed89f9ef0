package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/linkgrabber/internal/api"
	"github.com/dgnsrekt/linkgrabber/internal/browser"
	"github.com/dgnsrekt/linkgrabber/internal/capture"
	"github.com/dgnsrekt/linkgrabber/internal/cdp"
	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/controller"
	"github.com/dgnsrekt/linkgrabber/internal/handoff"
	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/journal"
	"github.com/dgnsrekt/linkgrabber/internal/netutil"
	"github.com/dgnsrekt/linkgrabber/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("linkgrabber stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"policy_file", cfg.PolicyFile,
		"handoff_timeout_ms", cfg.HandoffTimeoutMS,
		"journal", cfg.JournalEnabled,
		"passive", cfg.Passive,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	// A policy that cannot be read stops boot before any decision is made.
	policy, err := config.NewHolder(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load policy %s: %w", cfg.PolicyFile, err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			BinaryPath: cfg.BrowserPath,
		})
		if err := launcher.Launch(ctx); err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		defer launcher.Stop()
	}

	store := capture.NewStore()
	defer store.Close()

	manager := handoff.NewClient(&http.Client{}, policy, cfg.HandoffTimeout())
	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.HandoffTimeout())
	if err := manager.Ping(pingCtx); err != nil {
		slog.Warn("download manager not reachable yet", "port", policy.Current().Port, "error", err)
	} else {
		slog.Info("download manager reachable", "port", policy.Current().Port)
	}
	pingCancel()

	broker := relay.NewBroker()
	mediaSink := relay.NewMediaSink(broker, 0)

	var recorder intercept.Recorder
	if cfg.JournalEnabled {
		jw := journal.NewWriter(cfg.JournalDir, 1024, cfg.JournalMaxSizeMB)
		defer func() { _ = jw.Close() }()
		recorder = jw
	}

	cdpClient := cdp.NewClient(cfg, store)
	defer func() { _ = cdpClient.Close() }()

	engine, err := intercept.New(intercept.Options{
		Store:    store,
		Policy:   policy,
		Handoff:  manager,
		Media:    mediaSink,
		Tabs:     cdpClient,
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	if err := cdpClient.Connect(ctx, engine); err != nil {
		return fmt.Errorf("connect to browser at %s: %w", cfg.GetCDPURL(), err)
	}

	svc := controller.NewService(controller.Options{
		Engine:  engine,
		Store:   store,
		Policy:  policy,
		Handoff: manager,
		Browser: cdpClient,
		Media:   mediaSink,
		Feed:    broker,
	})
	h := api.NewServer(svc, api.Feeds{
		SSE: relay.SSEHandler(broker),
		WS:  relay.WSHandler(broker),
	})

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return fmt.Errorf("bind control API: %w", err)
	}

	// Feed streams end with the base context, so shutdown does not wait on
	// them.
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("control API listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-serveErr:
			return fmt.Errorf("control API server: %w", err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, err := policy.Reload(); err == nil {
					slog.Info("policy reloaded on SIGHUP")
				}
				continue
			}
			slog.Info("shutting down", "signal", sig.String())
			stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("control API shutdown failed", "error", err)
			}
			cancel()
			stats := engine.Stats()
			slog.Info("final stats", "observed", stats.Observed, "accepted", stats.Accepted,
				"cancelled", stats.Cancelled, "passed", stats.Passed, "media_reported", stats.MediaReported)
			return nil
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
	return nil
}
