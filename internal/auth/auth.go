package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omriShneor/calbot/internal/domain"
)

const (
	AccessTokenCookie  = "google_access_token"
	RefreshTokenCookie = "google_refresh_token"
	SessionCookie      = "calbot_session"
	StateCookie        = "oauth_state"

	AccessTokenMaxAge  = 7 * 24 * time.Hour
	RefreshTokenMaxAge = 365 * 24 * time.Hour
	SessionMaxAge      = 30 * 24 * time.Hour
	StateMaxAge        = 10 * time.Minute

	maxPendingStates = 10000
)

// CredentialStore reads and writes the Google credential of a browser.
type CredentialStore interface {
	Credential(r *http.Request) (domain.Credential, bool)
	SetCredential(w http.ResponseWriter, cred domain.Credential) error
	ClearCredential(w http.ResponseWriter)
}

// CookieStore keeps credentials in encrypted, http-only cookies. OAuth states it issues are
// also remembered in memory until they are used or expire.
type CookieStore struct {
	enc    *Encryptor
	secure bool
	logger *slog.Logger

	mu     sync.Mutex
	states    map[string]time.Time
	maxStates int
	now       func() time.Time
}

// NewCookieStore creates a CookieStore. secure should only be false for local development
// over plain HTTP.
func NewCookieStore(enc *Encryptor, secure bool, logger *slog.Logger) *CookieStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CookieStore{
		enc:       enc,
		secure:    secure,
		logger:    logger,
		states:    make(map[string]time.Time),
		maxStates: maxPendingStates,
		now:       time.Now,
	}
}

// Credential returns the credential carried by r. A cookie that cannot be decrypted (for
// example after a key rotation) is treated as absent.
func (s *CookieStore) Credential(r *http.Request) (domain.Credential, bool) {
	access := s.read(r, AccessTokenCookie)
	if access == "" {
		return domain.Credential{}, false
	}
	return domain.Credential{
		AccessToken:  access,
		RefreshToken: s.read(r, RefreshTokenCookie),
	}, true
}

// SetCredential writes the access cookie and, when the provider issued one, the refresh cookie.
func (s *CookieStore) SetCredential(w http.ResponseWriter, cred domain.Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if err := s.write(w, AccessTokenCookie, cred.AccessToken, AccessTokenMaxAge); err != nil {
		return err
	}
	if cred.RefreshToken != "" {
		if err := s.write(w, RefreshTokenCookie, cred.RefreshToken, RefreshTokenMaxAge); err != nil {
			return err
		}
	}
	return nil
}

// ClearCredential expires both credential cookies.
func (s *CookieStore) ClearCredential(w http.ResponseWriter) {
	s.expire(w, AccessTokenCookie)
	s.expire(w, RefreshTokenCookie)
}

// SessionID returns the chat session id cookie, or "".
func (s *CookieStore) SessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// SetSessionID remembers the chat session of a browser.
func (s *CookieStore) SetSessionID(w http.ResponseWriter, id string) {
	http.SetCookie(w, s.cookie(SessionCookie, id, SessionMaxAge))
}

// NewState issues a single-use OAuth state value, remembers it for StateMaxAge and sets it
// in a short-lived cookie.
func (s *CookieStore) NewState(w http.ResponseWriter) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	now := s.now()
	for st, expires := range s.states {
		if !now.Before(expires) {
			delete(s.states, st)
		}
	}
	if len(s.states) >= s.maxStates {
		s.dropOldestState()
	}
	s.states[state] = now.Add(StateMaxAge)
	s.mu.Unlock()

	http.SetCookie(w, s.cookie(StateCookie, state, StateMaxAge))
	return state, nil
}

// VerifyState consumes state and reports whether this store issued it less than
// StateMaxAge ago. When the browser still carries the state cookie it must match too; a
// callback without the cookie is accepted for an issued state, since the login URL may have
// been opened on another device (the QR login flow).
func (s *CookieStore) VerifyState(w http.ResponseWriter, r *http.Request, state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	expires, issued := s.states[state]
	delete(s.states, state)
	now := s.now()
	s.mu.Unlock()

	if !issued || !now.Before(expires) {
		return false
	}
	if c, err := r.Cookie(StateCookie); err == nil {
		s.expire(w, StateCookie)
		return c.Value == state
	}
	return true
}

// dropOldestState forgets the state closest to expiry. Callers hold mu.
func (s *CookieStore) dropOldestState() {
	var oldest string
	var oldestExp time.Time
	for st, expires := range s.states {
		if oldest == "" || expires.Before(oldestExp) {
			oldest, oldestExp = st, expires
		}
	}
	delete(s.states, oldest)
}

func (s *CookieStore) read(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return ""
	}
	value, err := s.enc.DecryptString(c.Value)
	if err != nil {
		s.logger.Debug("ignoring undecryptable cookie", "cookie", name, "error", err)
		return ""
	}
	return value
}

func (s *CookieStore) write(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	sealed, err := s.enc.EncryptString(value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", name, err)
	}
	http.SetCookie(w, s.cookie(name, sealed, maxAge))
	return nil
}

func (s *CookieStore) expire(w http.ResponseWriter, name string) {
	c := s.cookie(name, "", 0)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (s *CookieStore) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
