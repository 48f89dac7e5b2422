package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/healthlog/internal/admin"
	"github.com/ent0n29/healthlog/internal/auth"
	"github.com/ent0n29/healthlog/internal/config"
	"github.com/ent0n29/healthlog/internal/httpapi"
	"github.com/ent0n29/healthlog/internal/observability"
	"github.com/ent0n29/healthlog/internal/store"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Store   store.Store
	Admin   *admin.Service
	Metrics *observability.Metrics
	Logger  *logrus.Logger

	// Cleanup should be called on shutdown to release external resources (DB pool).
	Cleanup func() error
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("APP_LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// Build wires every collaborator explicitly; nothing is held in package state.
func Build(ctx context.Context, cfg config.Config, log *logrus.Logger, reg prometheus.Registerer) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	adminSvc := admin.New(admin.Config{
		Concurrency: cfg.AdminConcurrency,
		MaxAttempts: cfg.AdminMaxAttempts,
		RetryBase:   cfg.AdminRetryBase,
	}, st, metrics, log.WithField("component", "admin"))

	api := httpapi.New(cfg, st, verifier, adminSvc, metrics, log.WithField("component", "httpapi"))

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Store:   st,
		Admin:   adminSvc,
		Metrics: metrics,
		Logger:  log,
		Cleanup: st.Close,
	}, nil
}
