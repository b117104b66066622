package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vantage-db/vantage/internal/config"
	"github.com/vantage-db/vantage/internal/engine"
	"github.com/vantage-db/vantage/internal/secrets"
	"github.com/vantage-db/vantage/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cipher, err := secrets.New(cfg.MasterSecret)
	if err != nil {
		return err
	}

	eng := engine.New(cipher, logger)
	history := server.NewMemoryHistory(cfg.HistoryLimit)
	srv := server.New(eng, history, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
