package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/healthlog/internal/observability"
	"github.com/ent0n29/healthlog/internal/records"
	"github.com/ent0n29/healthlog/internal/store"
	"github.com/ent0n29/healthlog/internal/summary"
)

type rawDay struct {
	DayKey  summary.DayKey   `json:"day_key"`
	Records []records.Record `json:"records"`
}

type createRecordRequest struct {
	ID          string         `json:"id"`
	CreatedDate string         `json:"createdDate"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	started := time.Now()

	c, err := s.store.LoadRecords(r.Context(), userID)
	if err != nil {
		s.observeAggregate("store_error")
		s.log.WithField("user_id", userID).WithError(err).Error("load records failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to load records")
		return
	}
	loaded := time.Now()
	s.stages.Observe(observability.StageLoadRecords, loaded.Sub(started))

	res, err := summary.Aggregate(summary.NewWindow(s.now(), s.cfg.Location), c)
	if err != nil {
		var malformed *records.MalformedRecordError
		if errors.As(err, &malformed) {
			s.observeAggregate("malformed")
			s.log.WithFields(logrus.Fields{"user_id": userID, "record_id": malformed.ID}).WithError(err).Warn("malformed record")
			respondError(w, http.StatusUnprocessableEntity, "malformed_record", err.Error())
			return
		}
		s.observeAggregate("error")
		respondError(w, http.StatusInternalServerError, "aggregate_failed", err.Error())
		return
	}
	s.stages.Observe(observability.StageAggregate, time.Since(loaded))
	s.stages.Observe(observability.StageTotal, time.Since(started))

	if s.metrics != nil {
		s.metrics.RecordsBucketed.Add(float64(res.Stats.Bucketed))
		s.metrics.RecordsOutsideWindow.Add(float64(res.Stats.OutsideWindow))
		s.metrics.ObserveAggregateLatency(time.Since(started))
	}
	s.observeAggregate("ok")
	s.log.WithFields(logrus.Fields{
		"user_id":        userID,
		"summary_days":   len(res.Summary),
		"bucketed":       res.Stats.Bucketed,
		"outside_window": res.Stats.OutsideWindow,
	}).Info("aggregated results")

	respondJSON(w, http.StatusOK, res)
}

// handleListRecords returns the raw in-window records, one entry per day newest first.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	c, err := s.store.LoadRecords(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", "failed to load records")
		return
	}
	window := summary.NewWindow(s.now(), s.cfg.Location)
	buckets, _, err := summary.Bucket(window, c.All())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "malformed_record", err.Error())
		return
	}

	days := make([]rawDay, 0, summary.WindowDays)
	for _, key := range window.Descending() {
		days = append(days, rawDay{DayKey: key, Records: buckets.Records(key)})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"days":    days,
	})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	kind, err := records.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}

	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec := records.Record{
		ID:          strings.TrimSpace(req.ID),
		Kind:        kind,
		CreatedDate: strings.TrimSpace(req.CreatedDate),
		Metadata:    req.Metadata,
	}
	if rec.CreatedDate == "" {
		rec.CreatedDate = s.now().UTC().Format(time.RFC3339)
	}
	if _, err := rec.CreatedAt(s.cfg.Location); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_record", err.Error())
		return
	}
	if kind == records.KindPain {
		if _, ok := rec.PainScore(); !ok {
			respondError(w, http.StatusBadRequest, "invalid_request", "metadata.painScore must be a number")
			return
		}
	}
	if rec.ID == "" {
		rec.ID = newRecordID()
	}

	if err := s.store.AppendRecord(r.Context(), userID, rec); err != nil {
		if errors.Is(err, store.ErrUnknownKind) {
			respondError(w, http.StatusBadRequest, "invalid_kind", err.Error())
			return
		}
		s.log.WithField("user_id", userID).WithError(err).Error("append record failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to save record")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsCreated.WithLabelValues(string(kind)).Inc()
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) observeAggregate(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AggregateRequests.WithLabelValues(outcome).Inc()
}
