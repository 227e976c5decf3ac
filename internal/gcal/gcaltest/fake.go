// Package gcaltest runs an in-process fake of the Google Calendar API for tests and the dev server.
package gcaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
)

// FakeCalendar emulates the subset of the Google Calendar v3 REST API and the OAuth token
// endpoint that calbot uses. Requests must carry one of the accepted bearer tokens.
type FakeCalendar struct {
	Server *httptest.Server

	mu       sync.Mutex
	events   map[string]*calendar.Event
	order    []string
	tokens   map[string]bool
	codes    map[string]FakeToken
	nextID   int
	requests []FakeRequest
	failNext int
}

// FakeToken is what the token endpoint returns for an authorization code.
type FakeToken struct {
	AccessToken  string
	RefreshToken string
}

// FakeRequest records one API call.
type FakeRequest struct {
	Method string
	Path   string
	Query  string
}

// NewFakeCalendar starts a fake calendar that accepts accessToken.
func NewFakeCalendar(accessToken string) *FakeCalendar {
	f := &FakeCalendar{
		events: make(map[string]*calendar.Event),
		tokens: map[string]bool{accessToken: true},
		codes:  make(map[string]FakeToken),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendar/v3/calendars/{calendarID}/events", f.handleInsert)
	mux.HandleFunc("GET /calendar/v3/calendars/{calendarID}/events", f.handleList)
	mux.HandleFunc("GET /calendar/v3/calendars/{calendarID}/events/{eventID}", f.handleGet)
	mux.HandleFunc("PUT /calendar/v3/calendars/{calendarID}/events/{eventID}", f.handleUpdate)
	mux.HandleFunc("POST /token", f.handleToken)

	f.Server = httptest.NewServer(f.record(mux))
	return f
}

// Close shuts the fake down.
func (f *FakeCalendar) Close() {
	f.Server.Close()
}

// Endpoint is the Calendar API base URL to hand to the gcal client.
func (f *FakeCalendar) Endpoint() string {
	return f.Server.URL + "/calendar/v3/"
}

// TokenURL is the OAuth token endpoint.
func (f *FakeCalendar) TokenURL() string {
	return f.Server.URL + "/token"
}

// AcceptToken adds a valid bearer token.
func (f *FakeCalendar) AcceptToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = true
}

// RevokeToken makes token answer 401.
func (f *FakeCalendar) RevokeToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
}

// AddAuthCode registers an authorization code for the token endpoint. The issued access
// token is accepted by the API.
func (f *FakeCalendar) AddAuthCode(code string, token FakeToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = token
	if token.AccessToken != "" {
		f.tokens[token.AccessToken] = true
	}
}

// FailNext makes the next n API calls answer 500.
func (f *FakeCalendar) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Seed stores an event as if it had been created earlier and returns its id.
func (f *FakeCalendar) Seed(ev *calendar.Event) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(ev)
}

// Event returns a copy of a stored event.
func (f *FakeCalendar) Event(id string) (*calendar.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}

// Events returns copies of all stored events in insertion order.
func (f *FakeCalendar) Events() []*calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*calendar.Event, 0, len(f.order))
	for _, id := range f.order {
		cp := *f.events[id]
		out = append(out, &cp)
	}
	return out
}

// Requests returns the recorded API calls.
func (f *FakeCalendar) Requests() []FakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeRequest(nil), f.requests...)
}

func (f *FakeCalendar) insert(ev *calendar.Event) string {
	f.nextID++
	id := ev.Id
	if id == "" {
		id = fmt.Sprintf("evt%03d", f.nextID)
	}
	cp := *ev
	cp.Id = id
	if cp.Status == "" {
		cp.Status = "confirmed"
	}
	f.events[id] = &cp
	f.order = append(f.order, id)
	return id
}

func (f *FakeCalendar) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, FakeRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
		f.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/calendar/") {
			f.mu.Lock()
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			ok := f.tokens[token]
			fail := f.failNext > 0
			if fail {
				f.failNext--
			}
			f.mu.Unlock()

			if !ok {
				writeGoogleError(w, http.StatusUnauthorized, "Invalid Credentials")
				return
			}
			if fail {
				writeGoogleError(w, http.StatusInternalServerError, "Backend Error")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCalendar) handleInsert(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "Parse Error")
		return
	}
	if msg := validateTimes(&ev); msg != "" {
		writeGoogleError(w, http.StatusBadRequest, msg)
		return
	}
	ev.Id = ""

	f.mu.Lock()
	id := f.insert(&ev)
	stored := *f.events[id]
	f.mu.Unlock()

	writeJSON(w, &stored)
}

func (f *FakeCalendar) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var timeMin time.Time
	if v := q.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeGoogleError(w, http.StatusBadRequest, "Bad Request")
			return
		}
		timeMin = t
	}
	maxResults := 250
	if v := q.Get("maxResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxResults = n
		}
	}

	f.mu.Lock()
	items := make([]*calendar.Event, 0, len(f.events))
	for _, id := range f.order {
		ev := f.events[id]
		if !timeMin.IsZero() && !eventEnd(ev).After(timeMin) {
			continue
		}
		cp := *ev
		items = append(items, &cp)
	}
	f.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		return eventStart(items[i]).Before(eventStart(items[j]))
	})
	if len(items) > maxResults {
		items = items[:maxResults]
	}

	writeJSON(w, &calendar.Events{Kind: "calendar#events", Items: items})
}

func (f *FakeCalendar) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	ev, ok := f.events[r.PathValue("eventID")]
	var cp calendar.Event
	if ok {
		cp = *ev
	}
	f.mu.Unlock()

	if !ok {
		writeGoogleError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, &cp)
}

func (f *FakeCalendar) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("eventID")
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "Parse Error")
		return
	}
	if msg := validateTimes(&ev); msg != "" {
		writeGoogleError(w, http.StatusBadRequest, msg)
		return
	}

	f.mu.Lock()
	_, ok := f.events[id]
	if ok {
		ev.Id = id
		if ev.Status == "" {
			ev.Status = "confirmed"
		}
		f.events[id] = &ev
	}
	f.mu.Unlock()

	if !ok {
		writeGoogleError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, &ev)
}

func (f *FakeCalendar) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	tok, ok := f.codes[r.PostForm.Get("code")]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func validateTimes(ev *calendar.Event) string {
	if ev.Start == nil || ev.End == nil {
		return "Missing time"
	}
	if (ev.Start.Date == "") == (ev.Start.DateTime == "") || (ev.End.Date == "") == (ev.End.DateTime == "") {
		return "Invalid start or end"
	}
	if (ev.Start.Date == "") != (ev.End.Date == "") {
		return "Start and end must use the same representation"
	}
	if !eventEnd(ev).After(eventStart(ev)) {
		return "The specified time range is empty."
	}
	return ""
}

func eventStart(ev *calendar.Event) time.Time {
	return parseEventDateTime(ev.Start)
}

func eventEnd(ev *calendar.Event) time.Time {
	return parseEventDateTime(ev.End)
}

func parseEventDateTime(edt *calendar.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, edt.DateTime)
		return t
	}
	t, _ := time.Parse("2006-01-02", edt.Date)
	return t
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeGoogleError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors":  []map[string]string{{"message": message, "reason": "fake"}},
		},
	})
}
