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

	"github.com/loykin/procman"
	"github.com/loykin/procman/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func runServe(configPath, listenOverride string) error {
	cfg, err := procman.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenOverride != "" {
		cfg.Server.Listen = listenOverride
	}

	closer := logger.Setup(cfg.Logging)
	defer func() { _ = closer.Close() }()

	if err := procman.RegisterMetrics(); err != nil {
		slog.Warn("failed to register metrics", "error", err)
	}

	ctx := context.Background()
	mgr, err := procman.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	stopReaper := mgr.StartReaper(cfg)
	defer stopReaper()

	server := procman.NewHTTPServer(mgr, cfg)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
