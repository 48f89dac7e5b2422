package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/healthlog/internal/app"
	"github.com/ent0n29/healthlog/internal/config"
	"github.com/ent0n29/healthlog/internal/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		logrus.Fatalf("logger error: %v", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal(err)
	}
}

// run returns only after the store has been released.
func run(cfg config.Config, log *logrus.Logger) error {
	built, err := app.Build(context.Background(), cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.WithError(err).Warn("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.BindAddr,
			"timezone": cfg.Location.String(),
			"store":    httpapi.StoreMode(built.Store),
		}).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen error: %w", err)
	case <-sigCh:
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info("shutdown complete")
	return nil
}
