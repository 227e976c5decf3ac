package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/gcal"
	"github.com/omriShneor/calbot/internal/samples"
)

const maxBodyBytes = 1 << 20

// Health Check

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "healthy",
		"model":    s.modelName,
		"calendar": "not_configured",
	}
	if s.calendar != nil && s.calendar.IsConfigured() {
		status["calendar"] = "configured"
	}
	respondJSON(w, http.StatusOK, status)
}

// Extraction

type parseRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}

	candidate, err := s.extractor.Extract(r.Context(), req.Text, extract.ParseMode(req.Type))
	if err != nil {
		s.logger.Error("failed to parse text", "type", req.Type, "error", err)
		respondError(w, statusFor(err), errorMessage(err, "Failed to parse text"))
		return
	}

	respondJSON(w, http.StatusOK, candidate)
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		respondJSON(w, http.StatusOK, samples.All())
		return
	}
	respondJSON(w, http.StatusOK, samples.ByCategory(samples.Category(category)))
}

// Helpers

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrNoPendingEvent):
		return http.StatusConflict
	case gcal.IsEventNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the message of err, or fallback when it has none.
func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	return err.Error()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
