package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ent0n29/healthlog/internal/admin"
)

type deleteAccountsRequest struct {
	UserIDs []string `json:"user_ids"`
	All     bool     `json:"all"`
}

func (s *Server) handleBackfillIDs(w http.ResponseWriter, r *http.Request) {
	report, err := s.admin.BackfillIDs(r.Context())
	respondBatch(w, report, err)
}

func (s *Server) handleDeleteAccounts(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ids := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 && req.All {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_ids and all are mutually exclusive")
		return
	}
	if len(ids) == 0 && !req.All {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_ids is required unless all is true")
		return
	}

	report, err := s.admin.DeleteAccounts(r.Context(), ids)
	respondBatch(w, report, err)
}

func respondBatch(w http.ResponseWriter, report admin.Report, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, report)
		return
	}
	if _, ok := admin.IsBatchError(err); ok {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"code":   "batch_partial_failure",
			"report": report,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, "batch_failed", err.Error())
}

func newRecordID() string {
	return uuid.NewString()
}
