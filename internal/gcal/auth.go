package gcal

import (
	"context"
	"fmt"
	"os"

	"github.com/omriShneor/calbot/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const callbackPath = "/auth/callback"

// OAuthScopes are the scopes requested at login.
var OAuthScopes = []string{
	calendar.CalendarScope,
	calendar.CalendarEventsScope,
}

// AuthOptions tells LoadOAuthConfig where to find the OAuth client.
type AuthOptions struct {
	CredentialsJSON string
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	// BaseURL is the public origin of this service; the redirect URL is BaseURL + /auth/callback.
	BaseURL string
}

// CallbackURL returns the OAuth redirect URL for baseURL.
func CallbackURL(baseURL string) string {
	return baseURL + callbackPath
}

// LoadOAuthConfig loads the OAuth2 client from inline JSON, a credentials file,
// ./credentials.json, or a bare client id/secret pair, in that order.
func LoadOAuthConfig(opts AuthOptions) (*oauth2.Config, error) {
	redirect := CallbackURL(opts.BaseURL)

	// Inline JSON first (useful for container deployments)
	if opts.CredentialsJSON != "" {
		config, err := google.ConfigFromJSON([]byte(opts.CredentialsJSON), OAuthScopes...)
		if err == nil {
			config.RedirectURL = redirect
			return config, nil
		}
	}

	if opts.CredentialsFile != "" {
		if config, err := loadConfigFromFile(opts.CredentialsFile, redirect); err == nil {
			return config, nil
		}
	}

	if config, err := loadConfigFromFile("./credentials.json", redirect); err == nil {
		return config, nil
	}

	if opts.ClientID != "" && opts.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       OAuthScopes,
			RedirectURL:  redirect,
		}, nil
	}

	return nil, fmt.Errorf("no Google OAuth client found - provide credentials.json, GOOGLE_CREDENTIALS_JSON or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET")
}

func loadConfigFromFile(path, redirect string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := google.ConfigFromJSON(data, OAuthScopes...)
	if err != nil {
		return nil, err
	}

	config.RedirectURL = redirect
	return config, nil
}

// AuthURL returns the consent URL. Offline access with forced consent makes Google issue
// a refresh token on every login.
func (c *Client) AuthURL(state string) (string, error) {
	if c.config == nil {
		return "", fmt.Errorf("google oauth is not configured")
	}
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a credential.
func (c *Client) Exchange(ctx context.Context, code string) (domain.Credential, error) {
	if c.config == nil {
		return domain.Credential{}, fmt.Errorf("google oauth is not configured")
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return domain.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// IsConfigured reports whether an OAuth client is available for login.
func (c *Client) IsConfigured() bool {
	return c.config != nil
}
