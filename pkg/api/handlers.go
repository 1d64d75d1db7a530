package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/greenlight-sh/greenlight/pkg/orchestrator"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

// submitPayload is the inbound release request body
type submitPayload struct {
	TargetEnvironment string `json:"target_environment"`
	ImageTag          string `json:"image_tag"`
	RequestedBy       string `json:"requested_by"`
}

func (s *Server) handleSubmitRelease(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxPayloadBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := types.ReleaseRequest{
		TargetEnvironment: types.EnvironmentName(payload.TargetEnvironment),
		ImageTag:          payload.ImageTag,
		RequestedBy:       payload.RequestedBy,
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	rec, err := s.orch.SubmitRelease(r.Context(), req)
	switch {
	case errors.Is(err, orchestrator.ErrReleaseInFlight):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrFatalState):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, orchestrator.ErrValidation):
		// The aborted run was still recorded; return it with the error
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"record": rec,
		})
	case err != nil:
		// Fatal rollback or other orchestration failure; the record
		// carries the detail
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"record": rec,
		})
	default:
		s.respondJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := s.store.ListRecords(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read deployment history")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleLastRelease(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(1)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read deployment history")
		return
	}
	if len(records) == 0 {
		s.respondError(w, http.StatusNotFound, "no deployments yet")
		return
	}
	s.respondJSON(w, http.StatusOK, records[0])
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := s.store.ListEnvironments()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read environments")
		return
	}

	fatal, reason, err := s.store.Fatal()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read fatal state")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"environments": envs,
		"state":        s.orch.State(),
		"fatal":        fatal,
		"fatal_reason": reason,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.orch.Cancel() {
		s.respondError(w, http.StatusConflict, "no cancellable release in flight")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleClearFatal(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearFatal(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
