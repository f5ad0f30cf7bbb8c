package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/api"
	"github.com/dgnsrekt/chartdesk/internal/browser"
	"github.com/dgnsrekt/chartdesk/internal/cdpchart"
	"github.com/dgnsrekt/chartdesk/internal/config"
	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/metrics"
	"github.com/dgnsrekt/chartdesk/internal/netutil"
	"github.com/dgnsrekt/chartdesk/internal/notify"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/relay"
	"github.com/dgnsrekt/chartdesk/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load server config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("chartdesk config loaded",
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"port_auto_fallback", cfg.PortAutoFallback,
		"storage", cfg.StorageBackend,
		"cdp_enabled", cfg.CDPEnabled,
		"alpaca_feed", cfg.AlpacaFeed,
		"upstream_data_url", cfg.UpstreamDataURL,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	style, err := config.LoadStyle(cfg.StylePath)
	if err != nil {
		slog.Error("failed to load style", "path", cfg.StylePath, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool := storage.DefaultPoolConfig()
	pool.MaxConns = int32(cfg.PoolMaxConns)
	kv, err := storage.Open(ctx, storage.Config{
		Backend:     storage.Backend(cfg.StorageBackend),
		Dir:         cfg.DataDir,
		BadgerPath:  cfg.BadgerPath,
		DatabaseURL: cfg.DatabaseURL,
		Pool:        pool,
	})
	if err != nil {
		slog.Error("failed to open record store", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	journal := storage.NewJournal(cfg.JournalDir, "save_failures", cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	var alerter *notify.Alerter
	if cfg.NotifyURL != "" {
		alerter = notify.NewAlerter(cfg.NotifyURL, cfg.NotifyInterval, nil)
	}
	persister := overlay.NewPersister(kv,
		overlay.WithJournal(journal),
		overlay.WithSaveFailureHook(func(symbol string, err error) {
			m.SaveFailed()
			alerter.SaveFailed(symbol, err)
		}),
	)

	var provider marketdata.Provider
	if cfg.UpstreamDataURL != "" {
		provider = marketdata.NewClient(cfg.UpstreamDataURL, nil)
	} else {
		provider = marketdata.NewAlpacaProvider(cfg.AlpacaFeed)
	}

	var cdpClient *cdpchart.Client
	if cfg.BrowserLaunch {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress:   cfg.CDPAddress,
			CDPPort:      cfg.CDPPort,
			DashboardURL: cfg.DashboardURL,
			ProfileDir:   cfg.BrowserProfile,
			BinaryPath:   cfg.BrowserPath,
			Headless:     cfg.BrowserHeadless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}
	if cfg.CDPEnabled {
		cdpClient = cdpchart.NewClient(cfg.CDPURL(), cfg.CDPTabFilter, cfg.EvalTimeout())
		if err := cdpClient.Connect(ctx); err != nil {
			slog.Error("failed to connect CDP", "cdp_url", cfg.CDPURL(), "error", err)
			os.Exit(1)
		}
		defer cdpClient.Close()
	}

	broker := relay.NewBroker()
	svc := controller.NewService(controller.Deps{
		Persister:    persister,
		Provider:     provider,
		Broker:       broker,
		Metrics:      m,
		CDP:          cdpClient,
		Style:        style,
		MoveInterval: cfg.MoveInterval(),
	})
	h := api.NewServer(svc, api.Options{Broker: broker, Metrics: m})

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("chartdesk listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("chartdesk server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("chartdesk shutdown failed", "error", err)
	}
	svc.Close(shutdownCtx)
	broker.Close()
	if err := journal.Close(); err != nil {
		slog.Warn("journal close failed", "error", err)
	}
	if err := kv.Close(); err != nil {
		slog.Warn("record store close failed", "error", err)
	}
	slog.Info("chartdesk stopped")
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
