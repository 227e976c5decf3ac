package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/export"
)

const defaultMaxResults = 10

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())

	var event domain.CalendarEvent
	if err := decodeJSON(r, &event); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := s.calendar.Create(r.Context(), cred, event)
	if err != nil {
		s.logger.Error("failed to create event", "error", err)
		respondError(w, statusFor(err), errorMessage(err, "Failed to create event"))
		return
	}

	respondJSON(w, http.StatusOK, created)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())

	events, err := s.calendar.List(r.Context(), cred, maxResults(r))
	if err != nil {
		s.logger.Error("failed to list events", "error", err)
		respondError(w, statusFor(err), errorMessage(err, "Failed to list events"))
		return
	}

	respondJSON(w, http.StatusOK, events)
}

type updateEventRequest struct {
	EventID string            `json:"eventId"`
	Event   domain.EventPatch `json:"event"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())

	var req updateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		respondError(w, http.StatusBadRequest, "Event ID is required")
		return
	}

	updated, err := s.calendar.Update(r.Context(), cred, req.EventID, req.Event)
	if err != nil {
		s.logger.Error("failed to update event", "event_id", req.EventID, "error", err)
		respondError(w, statusFor(err), errorMessage(err, "Failed to update event"))
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// handleExportEvents serves the upcoming events as an iCalendar file.
func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())

	events, err := s.calendar.List(r.Context(), cred, maxResults(r))
	if err != nil {
		s.logger.Error("failed to list events for export", "error", err)
		respondError(w, statusFor(err), errorMessage(err, "Failed to list events"))
		return
	}

	data, err := s.exporter.Bytes(events)
	if err != nil {
		s.logger.Error("failed to export events", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to export events")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="calbot.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// maxResults reads ?maxResults, falling back to the default for missing or invalid values.
func maxResults(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if err != nil || n <= 0 {
		return defaultMaxResults
	}
	return n
}
