package server

import (
	"fmt"
	"net/http"

	"github.com/omriShneor/calbot/internal/gcal"
)

const (
	msgLoginSuccess = "✅ Successfully connected to Google Calendar! You can now create and manage events."
	msgLoggedOut    = "You have been logged out successfully."
)

// loginURL issues an OAuth state cookie and returns the consent URL carrying it.
func (s *Server) loginURL(w http.ResponseWriter) (string, bool) {
	if s.calendar == nil || !s.calendar.IsConfigured() {
		respondError(w, http.StatusServiceUnavailable, "Google Calendar is not configured")
		return "", false
	}
	state, err := s.cookies.NewState(w)
	if err != nil {
		s.logger.Error("failed to issue oauth state", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to initiate login")
		return "", false
	}
	url, err := s.calendar.AuthURL(state)
	if err != nil {
		s.logger.Error("failed to build auth url", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to initiate login")
		return "", false
	}
	return url, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	url, ok := s.loginURL(w)
	if !ok {
		return
	}
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"authUrl": url})
}

// handleLoginQR renders the consent URL as a QR code so a phone can complete the login.
// The phone has no state cookie, so the callback accepts it without one.
func (s *Server) handleLoginQR(w http.ResponseWriter, r *http.Request) {
	url, ok := s.loginURL(w)
	if !ok {
		return
	}
	png, err := gcal.LoginQR(url, gcal.DefaultQRSize)
	if err != nil {
		s.logger.Error("failed to render login QR", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	if code == "" {
		s.authFailed(w, r, "no_code")
		return
	}
	if !s.cookies.VerifyState(w, r, query.Get("state")) {
		s.logger.Warn("oauth state mismatch")
		s.authFailed(w, r, "auth_failed")
		return
	}

	cred, err := s.calendar.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("oauth code exchange failed", "error", err)
		s.authFailed(w, r, "auth_failed")
		return
	}
	if cred.AccessToken == "" {
		s.authFailed(w, r, "no_token")
		return
	}
	if err := s.cookies.SetCredential(w, cred); err != nil {
		s.logger.Error("failed to store credential", "error", err)
		s.authFailed(w, r, "auth_failed")
		return
	}

	if session := s.sessions.Get(r.Context(), s.cookies.SessionID(r)); session != nil {
		s.orchestrator.Greet(r.Context(), session, msgLoginSuccess)
	}
	s.logger.Info("google calendar connected", "refresh_token", cred.RefreshToken != "")
	http.Redirect(w, r, "/?auth=success", http.StatusFound)
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, reason string) {
	if session := s.sessions.Get(r.Context(), s.cookies.SessionID(r)); session != nil {
		s.orchestrator.Greet(r.Context(), session,
			fmt.Sprintf("❌ Authentication failed: %s. Please try logging in again.", reason))
	}
	http.Redirect(w, r, "/?error="+reason, http.StatusFound)
}

// handleLogout clears the credential and starts a fresh conversation.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.cookies.ClearCredential(w)
	if id := s.cookies.SessionID(r); id != "" {
		s.sessions.Delete(r.Context(), id)
	}

	session := s.sessions.GetOrCreate(r.Context(), "")
	s.cookies.SetSessionID(w, session.ID)
	respondJSON(w, http.StatusOK, s.orchestrator.Greet(r.Context(), session, msgLoggedOut))
}
