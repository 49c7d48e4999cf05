package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"influencegen/internal/callbacks"
	"influencegen/internal/log"
	"influencegen/internal/model"
	"influencegen/internal/store"
)

// CallbackHandler handles POST /influence_gen/n8n/ai_callback. It runs behind
// requireCallbackAuth.
func (s *Server) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.Config.Callback.MaxBodyBytes)
	var res model.GenerationResult
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldPath, r.URL.Path).Msg("callback payload rejected")
		writeCallbackError(w, http.StatusBadRequest, "Validation error", "Invalid payload structure or types: "+err.Error())
		return
	}

	origin := model.Origin{Actor: strings.ToLower(s.Config.System), IPAddress: clientIP(r)}
	_, err := s.Processor.Process(r.Context(), res, origin)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Callback processed successfully."})
	case errors.Is(err, callbacks.ErrInvalidResult):
		writeCallbackError(w, http.StatusBadRequest, "Validation error", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeCallbackError(w, http.StatusNotFound, "Not found", "Unknown request_id.")
	case errors.Is(err, store.ErrAlreadyFinal):
		writeCallbackError(w, http.StatusConflict, "Conflict", "A result was already recorded for this request.")
	default:
		s.logger.Error().Err(err).Str(log.FieldRequestID, res.RequestID).Msg("callback processing failed")
		writeCallbackError(w, http.StatusInternalServerError, "Processing error", "An error occurred while processing the AI generation result.")
	}
}
