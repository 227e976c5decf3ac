package auth

import (
	"net/http"
	"strings"

	"github.com/omriShneor/calbot/internal/domain"
)

// Middleware puts the caller's credential on the request context.
type Middleware struct {
	store CredentialStore
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(store CredentialStore) *Middleware {
	return &Middleware{store: store}
}

// RequireCredential rejects requests without a credential with 401.
func (m *Middleware) RequireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := m.lookup(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Not authenticated"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
	})
}

// OptionalCredential attaches a credential when one is present.
func (m *Middleware) OptionalCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cred, ok := m.lookup(r); ok {
			r = r.WithContext(WithCredential(r.Context(), cred))
		}
		next.ServeHTTP(w, r)
	})
}

// lookup prefers the cookie and falls back to an Authorization bearer token, which lets
// scripts call the API with a raw Google access token.
func (m *Middleware) lookup(r *http.Request) (domain.Credential, bool) {
	if cred, ok := m.store.Credential(r); ok {
		return cred, true
	}
	if token := extractBearerToken(r); token != "" {
		return domain.Credential{AccessToken: token}, true
	}
	return domain.Credential{}, false
}

// extractBearerToken extracts the token from the Authorization header
// Expects format: "Bearer <token>"
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
