package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// Client is the Google Calendar provider. It holds no user state: every call carries the
// caller's credential.
type Client struct {
	config     *oauth2.Config
	endpoint   string
	httpClient *http.Client
	timezone   string
	now        func() time.Time
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	// OAuth may be nil, in which case login is unavailable but API calls still work.
	OAuth *oauth2.Config
	// Endpoint overrides the Calendar API base URL, e.g. "http://127.0.0.1:1234/calendar/v3/".
	Endpoint string
	// HTTPClient is the base transport under the bearer-token layer.
	HTTPClient *http.Client
	// Timezone is applied to timed events that arrive without one.
	Timezone string
	Clock    func() time.Time
	Logger   *slog.Logger
}

// NewClient creates a Google Calendar client
func NewClient(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	return &Client{
		config:     opts.OAuth,
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		timezone:   opts.Timezone,
		now:        opts.Clock,
		logger:     opts.Logger,
	}
}

// Timezone returns the zone applied to timed events without one.
func (c *Client) Timezone() string {
	return c.timezone
}

// service builds a Calendar service authorized with the credential's access token.
// Tokens are not refreshed; an expired token surfaces as an AuthError from Google's 401.
func (c *Client) service(ctx context.Context, cred domain.Credential) (*calendar.Service, error) {
	if cred.IsZero() {
		return nil, &domain.AuthError{Err: fmt.Errorf("no access token")}
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, &domain.ProviderError{Op: "connect", Err: fmt.Errorf("failed to create calendar service: %w", err)}
	}
	return service, nil
}
