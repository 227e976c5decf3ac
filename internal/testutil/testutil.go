package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/database"
	"github.com/omriShneor/calbot/internal/export"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/gcal"
	"github.com/omriShneor/calbot/internal/gcal/gcaltest"
	"github.com/omriShneor/calbot/internal/notify"
	"github.com/omriShneor/calbot/internal/server"
	"github.com/omriShneor/calbot/internal/sse"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// AccessToken is the Google access token issued by TestServer.Login.
const AccessToken = "ya29.e2e-access"

// Now is the fixed clock of every TestServer.
var Now = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

// TestServer wraps a fully wired server for E2E testing
type TestServer struct {
	Server     *server.Server
	DB         *database.DB
	HTTPServer *httptest.Server
	Hub        *sse.Hub
	Sessions   *chat.Manager

	// External services
	Calendar *gcaltest.FakeCalendar
	Model    *ScriptedCompleter

	webhook  *httptest.Server
	mu       sync.Mutex
	received []notifyPayload

	client *http.Client
	t      *testing.T
}

type notifyPayload struct {
	Type  string `json:"type"`
	Event struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"event"`
}

// TestServerOption configures a test server
type TestServerOption func(*TestServer)

// WithWebhook starts a receiver for event-created webhooks
func WithWebhook() TestServerOption {
	return func(ts *TestServer) {
		ts.webhook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p notifyPayload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, p)
			ts.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
	}
}

// NewTestServer creates a fully configured test server for E2E testing
func NewTestServer(t *testing.T, opts ...TestServerOption) *TestServer {
	t.Helper()

	db := database.NewTestDB(t)
	fake := gcaltest.NewFakeCalendar(AccessToken)

	ts := &TestServer{
		DB:       db,
		Hub:      sse.NewHub(),
		Calendar: fake,
		Model:    NewScriptedCompleter(),
		t:        t,
	}

	// Apply options before creating server
	for _, opt := range opts {
		opt(ts)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return Now }

	calendar := gcal.NewClient(gcal.Options{
		OAuth: &oauth2.Config{
			ClientID:     "e2e-client",
			ClientSecret: "e2e-secret",
			Endpoint:     oauth2.Endpoint{AuthURL: fake.Server.URL + "/auth", TokenURL: fake.TokenURL()},
			RedirectURL:  "http://localhost/auth/callback",
			Scopes:       gcal.OAuthScopes,
		},
		Endpoint:   fake.Endpoint(),
		HTTPClient: fake.Server.Client(),
		Timezone:   "UTC",
		Clock:      clock,
		Logger:     logger,
	})
	extractor := extract.New(extract.Options{
		Completer: ts.Model,
		Timezone:  "UTC",
		Clock:     clock,
		Logger:    logger,
	})

	var targets []notify.Target
	if ts.webhook != nil {
		targets = append(targets, notify.Target{Notifier: notify.NewWebhookNotifier(), Recipient: ts.webhook.URL})
	}

	ts.Sessions = chat.NewManager(chat.NewDBStore(db), logger)
	orchestrator := chat.NewOrchestrator(chat.Options{
		Extractor: extractor,
		Provider:  calendar,
		Notifier:  notify.NewService(logger, targets...),
		Publisher: ts.Hub,
		Store:     chat.NewDBStore(db),
		Timezone:  "UTC",
		Clock:     clock,
		Logger:    logger,
	})

	enc, err := auth.NewEncryptorFromSecret("e2e-cookie-secret")
	require.NoError(t, err)

	ts.Server = server.New(server.Config{
		Orchestrator: orchestrator,
		Sessions:     ts.Sessions,
		Hub:          ts.Hub,
		Calendar:     calendar,
		Extractor:    extractor,
		Cookies:      auth.NewCookieStore(enc, false, logger),
		Exporter:     export.NewEncoder("UTC", clock),
		ModelName:    "scripted",
		Logger:       logger,
	})
	ts.HTTPServer = httptest.NewServer(ts.Server.Handler())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	ts.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	t.Cleanup(func() {
		ts.HTTPServer.Close()
		fake.Close()
		if ts.webhook != nil {
			ts.webhook.Close()
		}
	})

	return ts
}

// BaseURL returns the test server base URL
func (ts *TestServer) BaseURL() string {
	return ts.HTTPServer.URL
}

// Client returns the browser-like client: it keeps cookies and does not follow redirects
func (ts *TestServer) Client() *http.Client {
	return ts.client
}

// Login starts a login and runs the OAuth callback with the issued state so the client holds
// a credential cookie
func (ts *TestServer) Login() {
	ts.t.Helper()
	code := fmt.Sprintf("code-%d", time.Now().UnixNano())
	ts.Calendar.AddAuthCode(code, gcaltest.FakeToken{AccessToken: AccessToken, RefreshToken: "1//e2e-refresh"})

	var login struct {
		AuthURL string `json:"authUrl"`
	}
	DecodeJSON(ts.t, ts.Get("/auth/login"), &login)
	authURL, err := url.Parse(login.AuthURL)
	require.NoError(ts.t, err)
	q := url.Values{"code": {code}, "state": {authURL.Query().Get("state")}}

	resp, err := ts.client.Get(ts.BaseURL() + "/auth/callback?" + q.Encode())
	require.NoError(ts.t, err)
	resp.Body.Close()
	require.Equal(ts.t, http.StatusFound, resp.StatusCode)
	require.Equal(ts.t, "/?auth=success", resp.Header.Get("Location"))
}

// Get issues a GET with the client's cookies
func (ts *TestServer) Get(path string) *http.Response {
	ts.t.Helper()
	resp, err := ts.client.Get(ts.BaseURL() + path)
	require.NoError(ts.t, err)
	return resp
}

// PostJSON posts body as JSON with the client's cookies
func (ts *TestServer) PostJSON(path string, body any) *http.Response {
	ts.t.Helper()
	var payload io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		payload = strings.NewReader(string(data))
	}
	resp, err := ts.client.Post(ts.BaseURL()+path, "application/json", payload)
	require.NoError(ts.t, err)
	return resp
}

// DecodeJSON decodes and closes a response body
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// NotifiedTitles returns the titles of events announced to the webhook receiver
func (ts *TestServer) NotifiedTitles() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	titles := make([]string, 0, len(ts.received))
	for _, p := range ts.received {
		titles = append(titles, p.Event.Title)
	}
	return titles
}
