package domain

import "time"

// Credential is the opaque per-user calendar credential carried between requests.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// IsZero reports whether there is no usable bearer token.
func (c Credential) IsZero() bool {
	return c.AccessToken == ""
}
