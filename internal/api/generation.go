package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"influencegen/internal/log"
	"influencegen/internal/model"
	"influencegen/internal/store"
	"influencegen/internal/webhooks"
)

const errorCodeNotConfigured = "n8n_not_configured"

// CreateGenerationHandler handles POST /v1/ai/generation-requests: it stores
// the request and queues it for the orchestration service.
func (s *Server) CreateGenerationHandler(w http.ResponseWriter, r *http.Request) {
	var in model.GenerationParams
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	p, _ := principalFrom(r.Context())
	in.UserID = p.Subject
	in.ApplyDefaults()
	if err := in.Validate(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid generation request", err.Error(), r.URL.Path)
		return
	}

	req, err := s.Store.CreateGenerationRequest(r.Context(), in)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create generation request failed", err.Error(), r.URL.Path)
		return
	}
	s.appendAudit(r, model.AuditEntry{
		Actor:       p.Subject,
		EventType:   "ai.generation.requested",
		TargetModel: "generation_request",
		TargetID:    req.ID,
		Action:      "create",
		Details:     map[string]any{"influencer_profile_id": req.InfluencerProfileID},
	})

	deliveryID, err := s.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		code := webhooks.ErrorCodeDispatchFailed
		status := http.StatusInternalServerError
		if errors.Is(err, webhooks.ErrNotConfigured) {
			code, status = errorCodeNotConfigured, http.StatusServiceUnavailable
		}
		s.logger.Error().Err(err).Str(log.FieldRequestID, req.ID).Msg("dispatch failed")
		if _, perr := s.Processor.Process(r.Context(), model.GenerationResult{
			RequestID:    req.ID,
			Status:       model.ResultFailure,
			ErrorMessage: err.Error(),
			ErrorCode:    code,
		}, model.Origin{Actor: p.Subject, IPAddress: clientIP(r)}); perr != nil {
			s.logger.Error().Err(perr).Str(log.FieldRequestID, req.ID).Msg("record dispatch failure")
		}
		writeProblem(w, status, "Dispatch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"request": req, "deliveryId": deliveryID})
}

// ListGenerationsHandler handles GET /v1/ai/generation-requests.
func (s *Server) ListGenerationsHandler(w http.ResponseWriter, r *http.Request) {
	var profileID int64
	if v := r.URL.Query().Get("influencer_profile_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid influencer_profile_id", err.Error(), r.URL.Path)
			return
		}
		profileID = n
	}
	items, next, err := s.Store.ListGenerationRequests(r.Context(), profileID, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List generation requests failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// GetGenerationHandler handles GET /v1/ai/generation-requests/{id}.
func (s *Server) GetGenerationHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.Store.GetGenerationRequest(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get generation request failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) appendAudit(r *http.Request, e model.AuditEntry) {
	if e.IPAddress == "" {
		e.IPAddress = clientIP(r)
	}
	if _, err := s.Store.AppendAudit(r.Context(), e); err != nil {
		s.logger.Error().Err(err).Str("event_type", e.EventType).Msg("append audit entry")
	}
}
