package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
)

// session returns the caller's chat session, starting one (and setting its cookie) when
// the browser has none or the stored one is gone.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *chat.Session {
	id := s.cookies.SessionID(r)
	session := s.sessions.GetOrCreate(r.Context(), id)
	if session.ID != id {
		s.cookies.SetSessionID(w, session.ID)
	}
	return session
}

// respondView answers a chat operation. Failures inside a flow are already rendered as
// turns in the view, so only request-level errors reach here.
func (s *Server) respondView(w http.ResponseWriter, view chat.View, err error) {
	if err != nil {
		respondError(w, statusFor(err), errorMessage(err, "Request failed"))
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type chatTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session(w, r).View())
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cred, _ := auth.CredentialFromContext(r.Context())

	view, err := s.orchestrator.HandleMessage(r.Context(), s.session(w, r), cred, req.Text)
	s.respondView(w, view, err)
}

func (s *Server) handleChatExtract(w http.ResponseWriter, r *http.Request) {
	var req chatTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := s.orchestrator.ExtractAnnouncement(r.Context(), s.session(w, r), req.Text)
	s.respondView(w, view, err)
}

type confirmRequest struct {
	Edits *chat.Edits `json:"edits,omitempty"`
}

func (s *Server) handleChatConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	// The body is optional; an empty one confirms the candidate unchanged.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cred, _ := auth.CredentialFromContext(r.Context())

	view, err := s.orchestrator.Confirm(r.Context(), s.session(w, r), cred, req.Edits)
	s.respondView(w, view, err)
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.orchestrator.Cancel(r.Context(), s.session(w, r))
	s.respondView(w, view, err)
}

func (s *Server) handleChatRefresh(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())
	session := s.session(w, r)

	if _, err := s.orchestrator.RefreshEvents(r.Context(), session, cred); err != nil {
		s.logger.Error("failed to refresh events", "session_id", session.ID, "error", err)
		respondError(w, statusFor(err), "Failed to retrieve events. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, session.View())
}

// handleChatStream streams the session's new turns and state changes as server-sent events.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not clear write deadline", "error", err)
	}

	updates := s.hub.Subscribe(session.ID)
	defer s.hub.Unsubscribe(session.ID, updates)

	// Send initial state
	fmt.Fprintf(w, "event: state\ndata: %s\n\n", session.State())
	flusher.Flush()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, update.Data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
