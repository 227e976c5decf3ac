package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/export"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/gcal"
	"github.com/omriShneor/calbot/internal/gcal/gcaltest"
	"github.com/omriShneor/calbot/internal/mocks"
	"github.com/omriShneor/calbot/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

const testToken = "ya29.server-test"

var testNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	server    *Server
	fake      *gcaltest.FakeCalendar
	extractor *mocks.MockExtractor
	sessions  *chat.Manager
}

// createTestServer wires a server against the fake calendar and a mocked extractor
func createTestServer(t *testing.T) *testEnv {
	t.Helper()

	fake := gcaltest.NewFakeCalendar(testToken)
	t.Cleanup(fake.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return testNow }

	calendarClient := gcal.NewClient(gcal.Options{
		OAuth: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: fake.TokenURL()},
			RedirectURL:  "http://localhost:8080/auth/callback",
		},
		Endpoint:   fake.Endpoint(),
		HTTPClient: fake.Server.Client(),
		Timezone:   "UTC",
		Clock:      clock,
		Logger:     logger,
	})

	extractor := new(mocks.MockExtractor)
	hub := sse.NewHub()
	sessions := chat.NewManager(nil, logger)
	orchestrator := chat.NewOrchestrator(chat.Options{
		Extractor: extractor,
		Provider:  calendarClient,
		Publisher: hub,
		Timezone:  "UTC",
		Clock:     clock,
		Logger:    logger,
	})

	enc, err := auth.NewEncryptorFromSecret("server-test-secret")
	require.NoError(t, err)

	s := New(Config{
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Hub:          hub,
		Calendar:     calendarClient,
		Extractor:    extractor,
		Cookies:      auth.NewCookieStore(enc, false, logger),
		Exporter:     export.NewEncoder("UTC", clock),
		ModelName:    "claude-test",
		Logger:       logger,
	})

	return &testEnv{server: s, fake: fake, extractor: extractor, sessions: sessions}
}

func (e *testEnv) do(method, path string, body any, authed bool, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func seedStandup(fake *gcaltest.FakeCalendar) string {
	return fake.Seed(&calendar.Event{
		Summary:  "Team Standup",
		Location: "Room 4",
		Start:    &calendar.EventDateTime{DateTime: "2025-03-06T09:00:00Z"},
		End:      &calendar.EventDateTime{DateTime: "2025-03-06T09:30:00Z"},
	})
}

func TestHandleHealthCheck(t *testing.T) {
	env := createTestServer(t)

	w := env.do("GET", "/health", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "claude-test", response["model"])
	assert.Equal(t, "configured", response["calendar"])
}

func TestCORSPreflight(t *testing.T) {
	env := createTestServer(t)

	w := env.do("OPTIONS", "/events/list", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleLogin(t *testing.T) {
	env := createTestServer(t)

	t.Run("returns auth url with state", func(t *testing.T) {
		w := env.do("GET", "/auth/login", nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		var response map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		state := findCookie(w, auth.StateCookie)
		require.NotNil(t, state)
		assert.True(t, state.HttpOnly)
		assert.Contains(t, response["authUrl"], "https://accounts.example.com/auth")
		assert.Contains(t, response["authUrl"], "state="+state.Value)
	})

	t.Run("redirects when asked", func(t *testing.T) {
		w := env.do("GET", "/auth/login?redirect=true", nil, false)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Contains(t, w.Header().Get("Location"), "https://accounts.example.com/auth")
	})

	t.Run("QR code", func(t *testing.T) {
		w := env.do("GET", "/auth/login/qr", nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
	})
}

func TestHandleLogin_NotConfigured(t *testing.T) {
	env := createTestServer(t)
	env.server.calendar = gcal.NewClient(gcal.Options{})

	w := env.do("GET", "/auth/login", nil, false)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// issueState starts a login and returns the state cookie; its value is the state.
func (e *testEnv) issueState(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.do("GET", "/auth/login", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	c := findCookie(w, auth.StateCookie)
	require.NotNil(t, c)
	return c
}

func TestHandleOAuthCallback(t *testing.T) {
	env := createTestServer(t)
	env.fake.AddAuthCode("good-code", gcaltest.FakeToken{AccessToken: "ya29.fresh", RefreshToken: "1//refresh"})
	env.fake.AddAuthCode("access-only", gcaltest.FakeToken{AccessToken: "ya29.access-only"})

	tests := []struct {
		name string
		// request builds the query and cookies, issuing states as needed.
		request     func(t *testing.T) (string, []*http.Cookie)
		location    string
		wantAccess  bool
		wantRefresh bool
	}{
		{
			name:     "missing code",
			request:  func(*testing.T) (string, []*http.Cookie) { return "", nil },
			location: "/?error=no_code",
		},
		{
			name: "unknown code",
			request: func(t *testing.T) (string, []*http.Cookie) {
				c := env.issueState(t)
				return "?code=bad-code&state=" + c.Value, []*http.Cookie{c}
			},
			location: "/?error=auth_failed",
		},
		{
			name: "state mismatch",
			request: func(t *testing.T) (string, []*http.Cookie) {
				c := env.issueState(t)
				other := env.issueState(t)
				return "?code=good-code&state=" + other.Value, []*http.Cookie{c}
			},
			location: "/?error=auth_failed",
		},
		{
			name: "forged state without cookie",
			request: func(*testing.T) (string, []*http.Cookie) {
				return "?code=good-code&state=attacker-chosen", nil
			},
			location: "/?error=auth_failed",
		},
		{
			name: "missing state without cookie",
			request: func(*testing.T) (string, []*http.Cookie) {
				return "?code=good-code", nil
			},
			location: "/?error=auth_failed",
		},
		{
			name: "success with matching state",
			request: func(t *testing.T) (string, []*http.Cookie) {
				c := env.issueState(t)
				return "?code=good-code&state=" + c.Value, []*http.Cookie{c}
			},
			location:    "/?auth=success",
			wantAccess:  true,
			wantRefresh: true,
		},
		{
			name: "issued state on another device",
			request: func(t *testing.T) (string, []*http.Cookie) {
				c := env.issueState(t)
				return "?code=access-only&state=" + c.Value, nil
			},
			location:   "/?auth=success",
			wantAccess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, cookies := tt.request(t)
			w := env.do("GET", "/auth/callback"+query, nil, false, cookies...)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
			assert.Equal(t, tt.wantAccess, findCookie(w, auth.AccessTokenCookie) != nil)
			assert.Equal(t, tt.wantRefresh, findCookie(w, auth.RefreshTokenCookie) != nil)
		})
	}

	t.Run("state is single use", func(t *testing.T) {
		env.fake.AddAuthCode("replayed", gcaltest.FakeToken{AccessToken: "ya29.replayed"})
		c := env.issueState(t)
		first := env.do("GET", "/auth/callback?code=good-code&state="+c.Value, nil, false, c)
		require.Equal(t, "/?auth=success", first.Header().Get("Location"))

		w := env.do("GET", "/auth/callback?code=replayed&state="+c.Value, nil, false)
		assert.Equal(t, "/?error=auth_failed", w.Header().Get("Location"))
	})
}

func TestHandleOAuthCallback_GreetsSession(t *testing.T) {
	env := createTestServer(t)
	env.fake.AddAuthCode("good-code", gcaltest.FakeToken{AccessToken: "ya29.fresh"})

	first := env.do("GET", "/chat/session", nil, false)
	sessionCookie := findCookie(first, auth.SessionCookie)
	require.NotNil(t, sessionCookie)

	state := env.issueState(t)
	w := env.do("GET", "/auth/callback?code=good-code&state="+state.Value, nil, false, sessionCookie, state)
	require.Equal(t, "/?auth=success", w.Header().Get("Location"))

	session := env.sessions.Get(t.Context(), sessionCookie.Value)
	require.NotNil(t, session)
	view := session.View()
	require.Len(t, view.Messages, 1)
	assert.Equal(t, msgLoginSuccess, view.Messages[0].Text)
}

func TestHandleLogout(t *testing.T) {
	env := createTestServer(t)

	first := env.do("GET", "/chat/session", nil, false)
	oldSession := findCookie(first, auth.SessionCookie)
	require.NotNil(t, oldSession)

	w := env.do("POST", "/auth/logout", nil, false, oldSession)
	require.Equal(t, http.StatusOK, w.Code)

	access := findCookie(w, auth.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Less(t, access.MaxAge, 0)

	newSession := findCookie(w, auth.SessionCookie)
	require.NotNil(t, newSession)
	assert.NotEqual(t, oldSession.Value, newSession.Value)
	assert.Nil(t, env.sessions.Get(t.Context(), oldSession.Value))

	var view chat.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Messages, 1)
	assert.Equal(t, msgLoggedOut, view.Messages[0].Text)
}

func TestEventsRequireCredential(t *testing.T) {
	env := createTestServer(t)

	for _, route := range []struct{ method, path string }{
		{"POST", "/events/create"},
		{"GET", "/events/list"},
		{"POST", "/events/update"},
		{"GET", "/events/export.ics"},
		{"POST", "/chat/refresh"},
	} {
		t.Run(route.path, func(t *testing.T) {
			w := env.do(route.method, route.path, nil, false)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"Not authenticated"}`, w.Body.String())
		})
	}
}

func TestHandleListEvents(t *testing.T) {
	env := createTestServer(t)
	seedStandup(env.fake)
	env.fake.Seed(&calendar.Event{
		Summary: "Birthday Party",
		Start:   &calendar.EventDateTime{Date: "2025-03-08"},
		End:     &calendar.EventDateTime{Date: "2025-03-09"},
	})

	t.Run("default", func(t *testing.T) {
		w := env.do("GET", "/events/list", nil, true)

		require.Equal(t, http.StatusOK, w.Code)
		var events []domain.CalendarEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		require.Len(t, events, 2)
		assert.Equal(t, "Team Standup", events[0].Title)
		assert.Equal(t, "Room 4", events[0].Location)
		assert.True(t, events[1].AllDay)
	})

	t.Run("maxResults", func(t *testing.T) {
		w := env.do("GET", "/events/list?maxResults=1", nil, true)

		require.Equal(t, http.StatusOK, w.Code)
		var events []domain.CalendarEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		assert.Len(t, events, 1)
	})

	t.Run("revoked token", func(t *testing.T) {
		env.fake.RevokeToken(testToken)
		defer env.fake.AcceptToken(testToken)

		w := env.do("GET", "/events/list", nil, true)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		env.fake.FailNext(1)

		w := env.do("GET", "/events/list", nil, true)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleCreateEvent(t *testing.T) {
	env := createTestServer(t)

	t.Run("creates event", func(t *testing.T) {
		w := env.do("POST", "/events/create", map[string]any{
			"title": "Dentist",
			"start": map[string]string{"dateTime": "2025-03-07T15:00:00Z"},
			"end":   map[string]string{"dateTime": "2025-03-07T16:00:00Z"},
		}, true)

		require.Equal(t, http.StatusOK, w.Code)
		var created domain.CalendarEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "Dentist", created.Title)

		stored, ok := env.fake.Event(created.ID)
		require.True(t, ok)
		assert.Equal(t, "Dentist", stored.Summary)
	})

	t.Run("invalid body", func(t *testing.T) {
		w := env.do("POST", "/events/create", "{not json", true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleUpdateEvent(t *testing.T) {
	env := createTestServer(t)
	id := seedStandup(env.fake)

	t.Run("requires event id", func(t *testing.T) {
		w := env.do("POST", "/events/update", map[string]any{"event": map[string]string{"title": "x"}}, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Event ID is required"}`, w.Body.String())
	})

	t.Run("updates title and keeps location", func(t *testing.T) {
		w := env.do("POST", "/events/update", map[string]any{
			"eventId": id,
			"event":   map[string]string{"title": "Daily Standup"},
		}, true)

		require.Equal(t, http.StatusOK, w.Code)
		var updated domain.CalendarEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, "Daily Standup", updated.Title)
		assert.Equal(t, "Room 4", updated.Location)
	})

	t.Run("unknown event", func(t *testing.T) {
		w := env.do("POST", "/events/update", map[string]any{
			"eventId": "missing",
			"event":   map[string]string{"title": "x"},
		}, true)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleExportEvents(t *testing.T) {
	env := createTestServer(t)
	seedStandup(env.fake)

	w := env.do("GET", "/events/export.ics", nil, true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "calbot.ics")
	body := w.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Team Standup")
}

func TestHandleParse(t *testing.T) {
	env := createTestServer(t)
	candidate := &domain.EventCandidate{Title: "Lunch with Sam", Confidence: 0.9}

	env.extractor.On("Extract", mock.Anything, "lunch with Sam tomorrow", extract.ModeCommand).
		Return(candidate, nil)
	env.extractor.On("Extract", mock.Anything, "Science fair on Friday", extract.ModeFreeform).
		Return(nil, &domain.ExtractionError{Msg: "Failed to parse event from text", Err: errors.New("boom")})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantBody   string
	}{
		{name: "missing text", body: map[string]string{"type": "command"}, wantStatus: http.StatusBadRequest, wantBody: `{"error":"Text is required"}`},
		{name: "invalid body", body: "[", wantStatus: http.StatusBadRequest},
		{name: "command", body: map[string]string{"text": "lunch with Sam tomorrow", "type": "command"}, wantStatus: http.StatusOK},
		{name: "extraction failure", body: map[string]string{"text": "Science fair on Friday", "type": "text"}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/parse", tt.body, false)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
	env.extractor.AssertExpectations(t)
}

func TestHandleListSamples(t *testing.T) {
	env := createTestServer(t)

	w := env.do("GET", "/samples", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.NotEmpty(t, all)

	w = env.do("GET", "/samples?category=school", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var school []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &school))
	require.NotEmpty(t, school)
	assert.Less(t, len(school), len(all))
	for _, s := range school {
		assert.Equal(t, "school", s["category"])
	}
}

func TestChatFlow(t *testing.T) {
	env := createTestServer(t)
	env.extractor.On("Extract", mock.Anything, "Schedule lunch with Sam tomorrow at noon", extract.ModeCommand).
		Return(&domain.EventCandidate{
			Title:         "Lunch with Sam",
			StartDateTime: domain.StringPtr("2025-03-06T12:00:00"),
			EndDateTime:   domain.StringPtr("2025-03-06T13:00:00"),
			Confidence:    0.9,
		}, nil)

	first := env.do("GET", "/chat/session", nil, false)
	require.Equal(t, http.StatusOK, first.Code)
	session := findCookie(first, auth.SessionCookie)
	require.NotNil(t, session)

	t.Run("message without login", func(t *testing.T) {
		w := env.do("POST", "/chat/messages", map[string]string{"text": "list my events"}, false, session)

		require.Equal(t, http.StatusOK, w.Code)
		var view chat.View
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		last := view.Messages[len(view.Messages)-1]
		assert.Equal(t, "Please login with Google Calendar first to use this feature.", last.Text)
	})

	t.Run("empty message", func(t *testing.T) {
		w := env.do("POST", "/chat/messages", map[string]string{"text": "  "}, true, session)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Text is required"}`, w.Body.String())
	})

	t.Run("cancel with nothing pending", func(t *testing.T) {
		w := env.do("POST", "/chat/cancel", nil, false, session)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("propose then confirm with edits", func(t *testing.T) {
		w := env.do("POST", "/chat/messages", map[string]string{"text": "Schedule lunch with Sam tomorrow at noon"}, true, session)
		require.Equal(t, http.StatusOK, w.Code)
		var view chat.View
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, chat.StateAwaitingConfirmation, view.State)
		require.NotNil(t, view.Pending)
		assert.Equal(t, "Lunch with Sam", view.Pending.Title)

		w = env.do("POST", "/chat/confirm", map[string]any{"edits": map[string]string{"location": "Cafe Uno"}}, true, session)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, chat.StateIdle, view.State)
		last := view.Messages[len(view.Messages)-1]
		assert.Equal(t, "✅ Event \"Lunch with Sam\" has been successfully added to your calendar!", last.Text)
		require.Len(t, view.Events, 1)
		assert.Equal(t, "Cafe Uno", view.Events[0].Location)

		events := env.fake.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "Cafe Uno", events[0].Location)
	})

	t.Run("confirm with nothing pending", func(t *testing.T) {
		w := env.do("POST", "/chat/confirm", nil, true, session)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("refresh", func(t *testing.T) {
		seedStandup(env.fake)

		w := env.do("POST", "/chat/refresh", nil, true, session)
		require.Equal(t, http.StatusOK, w.Code)
		var view chat.View
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Len(t, view.Events, 2)
	})
}

func TestChatExtract(t *testing.T) {
	env := createTestServer(t)
	text := "Parents evening on 2025-03-12 at 18:00 in the school hall"
	env.extractor.On("Extract", mock.Anything, text, extract.ModeFreeform).
		Return(&domain.EventCandidate{
			Title:         "Parents Evening",
			StartDateTime: domain.StringPtr("2025-03-12T18:00:00"),
			Confidence:    0.8,
		}, nil)

	w := env.do("POST", "/chat/extract", map[string]string{"text": text}, false)

	require.Equal(t, http.StatusOK, w.Code)
	var view chat.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, chat.StateAwaitingConfirmation, view.State)
	assert.Equal(t, "Extract event from: "+text, view.Messages[0].Text)
	require.NotNil(t, view.Pending)
	assert.Equal(t, "Parents Evening", view.Pending.Title)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &domain.AuthError{}), http.StatusUnauthorized},
		{chat.ErrBusy, http.StatusConflict},
		{chat.ErrNoPendingEvent, http.StatusConflict},
		{&domain.ProviderError{Op: "update", Err: fmt.Errorf("%w: gone", gcal.ErrEventNotFound)}, http.StatusNotFound},
		{&domain.ProviderError{Op: "list", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "fallback", errorMessage(nil, "fallback"))
	assert.Equal(t, "Text is required", errorMessage(fmt.Errorf("x: %w", domain.NewValidationError("Text is required")), "fallback"))
	assert.Equal(t, "boom", errorMessage(errors.New("boom"), "fallback"))
}
