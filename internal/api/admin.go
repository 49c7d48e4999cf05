package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"influencegen/internal/model"
	"influencegen/internal/params"
)

const auditEventParam = "system.param"

// ListParamsHandler handles GET /v1/admin/params. Secret values are masked.
func (s *Server) ListParamsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Params.List(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List params failed", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i] = params.Mask(items[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetParamHandler handles GET /v1/admin/params/{key}.
func (s *Server) GetParamHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok, err := s.Params.Get(r.Context(), key)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get param failed", err.Error(), r.URL.Path)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, params.Mask(params.Param{Key: key, Value: v}))
}

// PutParamHandler handles PUT /v1/admin/params/{key} with body {"value": "..."}.
func (s *Server) PutParamHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var in struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if in.Value == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid param", "value is required", r.URL.Path)
		return
	}
	err := s.Params.Set(r.Context(), key, *in.Value)
	s.auditParam(r, key, "set", err)
	if errors.Is(err, params.ErrInvalidParam) {
		writeProblem(w, http.StatusBadRequest, "Invalid param", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Set param failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, params.Mask(params.Param{Key: key, Value: *in.Value}))
}

// DeleteParamHandler handles DELETE /v1/admin/params/{key}.
func (s *Server) DeleteParamHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := s.Params.Delete(r.Context(), key)
	s.auditParam(r, key, "delete", err)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete param failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// auditParam records a parameter change. The value itself is never recorded.
func (s *Server) auditParam(r *http.Request, key, action string, err error) {
	p, _ := principalFrom(r.Context())
	e := model.AuditEntry{
		Actor:       p.Subject,
		EventType:   auditEventParam,
		TargetModel: "system_param",
		TargetID:    key,
		Action:      action,
		Outcome:     model.OutcomeSuccess,
	}
	if err != nil {
		e.Outcome = model.OutcomeFailure
		e.Details = map[string]any{"error": err.Error()}
	}
	s.appendAudit(r, e)
}

// AuditHandler handles GET /v1/admin/audit?event_type=&cursor=&limit=.
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, next, err := s.Store.ListAudit(r.Context(), q.Get("event_type"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List audit failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// DeliveriesHandler handles GET /v1/admin/deliveries?status=&cursor=&limit=.
func (s *Server) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, next, err := s.Store.ListDeliveries(r.Context(), q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
