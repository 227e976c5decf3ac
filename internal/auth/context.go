package auth

import (
	"context"

	"github.com/omriShneor/calbot/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const credentialContextKey contextKey = "credential"

// CredentialFromContext returns the credential placed on the context by the middleware.
func CredentialFromContext(ctx context.Context) (domain.Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey).(domain.Credential)
	if !ok || cred.IsZero() {
		return domain.Credential{}, false
	}
	return cred, true
}

// WithCredential returns a new context carrying cred.
func WithCredential(ctx context.Context, cred domain.Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, cred)
}
