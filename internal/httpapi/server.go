package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/healthlog/internal/admin"
	"github.com/ent0n29/healthlog/internal/auth"
	"github.com/ent0n29/healthlog/internal/config"
	"github.com/ent0n29/healthlog/internal/observability"
	"github.com/ent0n29/healthlog/internal/store"
)

type Server struct {
	cfg      config.Config
	store    store.Store
	verifier auth.Verifier
	admin    *admin.Service
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	log      logrus.FieldLogger
	now      func() time.Time
}

func New(cfg config.Config, st store.Store, verifier auth.Verifier, adminSvc *admin.Service, metrics *observability.Metrics, log logrus.FieldLogger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		verifier: verifier,
		admin:    adminSvc,
		metrics:  metrics,
		stages:   observability.NewStageWindow(256),
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the anchor clock used for the summary window.
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/v1/aggregate", s.handleAggregate)
		r.Get("/v1/records", s.handleListRecords)
		r.Post("/v1/records/{kind}", s.handleCreateRecord)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/v1/admin/backfill-ids", s.handleBackfillIDs)
		r.Post("/v1/admin/accounts/delete", s.handleDeleteAccounts)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode(),
		"timezone":   s.cfg.Location.String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"store_mode":    s.storeMode(),
		"admin_enabled": s.adminEnabled(),
	})
}

func (s *Server) storeMode() string {
	return StoreMode(s.store)
}

// StoreMode names the backing store kind for health output and startup logs.
func StoreMode(st store.Store) string {
	switch st.(type) {
	case *store.PostgresStore:
		return "postgres"
	case *store.InMemoryStore:
		return "in-memory"
	case nil:
		return "disabled"
	default:
		return "custom"
	}
}

func (s *Server) adminEnabled() bool {
	return s.admin != nil && strings.TrimSpace(s.cfg.AdminToken) != ""
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
