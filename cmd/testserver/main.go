// Package main runs calbot against an in-process fake of Google Calendar for manual and
// client E2E testing. The model is the real Claude API when ANTHROPIC_API_KEY is set and a
// scripted completer otherwise.
//
// Usage:
//
//	go run ./cmd/testserver
//
// Extra endpoints:
//   - GET  /dev/login               - stands in for Google's consent page
//   - POST /api/test/seed-event     - put an event into the fake calendar
//   - POST /api/test/model-reply    - script a model reply (scripted mode only)
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/claude"
	"github.com/omriShneor/calbot/internal/config"
	"github.com/omriShneor/calbot/internal/database"
	"github.com/omriShneor/calbot/internal/export"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/gcal"
	"github.com/omriShneor/calbot/internal/gcal/gcaltest"
	"github.com/omriShneor/calbot/internal/notify"
	"github.com/omriShneor/calbot/internal/server"
	"github.com/omriShneor/calbot/internal/sse"
	"github.com/omriShneor/calbot/internal/testutil"
)

const devAccessToken = "ya29.dev-access"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("Starting calbot test server with a fake Google Calendar")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(database.MemoryPath)
	if err != nil {
		logger.Error("failed to create database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	fake := gcaltest.NewFakeCalendar(devAccessToken)
	defer fake.Close()

	var completer claude.Completer
	var scripted *testutil.ScriptedCompleter
	if cfg.AnthropicAPIKey != "" {
		completer = claude.NewClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.ClaudeTemperature)
		logger.Info("Claude API configured for extraction", "model", cfg.ClaudeModel)
	} else {
		scripted = testutil.NewScriptedCompleter().
			Otherwise(testutil.NewReplyBuilder("Test Event").
				Timed(time.Now().Add(24*time.Hour).Format("2006-01-02")+"T10:00:00", "").
				JSON())
		completer = scripted
		logger.Warn("ANTHROPIC_API_KEY not set, using scripted model replies")
	}

	calendarClient := gcal.NewClient(gcal.Options{
		OAuth: &oauth2.Config{
			ClientID:     "dev-client",
			ClientSecret: "dev-secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.BaseURL + "/dev/login",
				TokenURL: fake.TokenURL(),
			},
			RedirectURL: gcal.CallbackURL(cfg.BaseURL),
			Scopes:      gcal.OAuthScopes,
		},
		Endpoint:   fake.Endpoint(),
		HTTPClient: fake.Server.Client(),
		Timezone:   cfg.Timezone,
		Logger:     logger,
	})
	extractor := extract.New(extract.Options{Completer: completer, Timezone: cfg.Timezone, Logger: logger})

	enc, err := auth.NewEncryptorFromSecret(cfg.CookieSecret)
	if err != nil {
		logger.Error("failed to create cookie encryptor", "error", err)
		os.Exit(1)
	}

	hub := sse.NewHub()
	store := chat.NewDBStore(db)
	srv := server.New(server.Config{
		Orchestrator: chat.NewOrchestrator(chat.Options{
			Extractor:           extractor,
			Provider:            calendarClient,
			Notifier:            notify.NewService(logger),
			Publisher:           hub,
			Store:               store,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Timezone:            cfg.Timezone,
			Logger:              logger,
		}),
		Sessions:  chat.NewManager(store, logger),
		Hub:       hub,
		Calendar:  calendarClient,
		Extractor: extractor,
		Cookies:   auth.NewCookieStore(enc, false, logger),
		Exporter:  export.NewEncoder(cfg.Timezone, nil),
		Port:      cfg.HTTPPort,
		ModelName: cfg.ClaudeModel,
		Logger:    logger,
	})

	testMux := http.NewServeMux()

	// The consent page: issue a code the fake token endpoint accepts and go straight back.
	testMux.HandleFunc("GET /dev/login", func(w http.ResponseWriter, r *http.Request) {
		code := uuid.NewString()
		fake.AddAuthCode(code, gcaltest.FakeToken{AccessToken: devAccessToken, RefreshToken: "1//dev-refresh"})
		q := url.Values{"code": {code}, "state": {r.URL.Query().Get("state")}}
		http.Redirect(w, r, "/auth/callback?"+q.Encode(), http.StatusFound)
	})

	testMux.HandleFunc("POST /api/test/seed-event", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title    string `json:"title"`
			Location string `json:"location"`
			Start    string `json:"start"`
			Date     string `json:"date"`
			Minutes  int    `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		b := testutil.NewEventBuilder().WithTitle(req.Title).WithLocation(req.Location)
		switch {
		case req.Date != "":
			if _, err := time.Parse("2006-01-02", req.Date); err != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			b.AllDay(req.Date)
		case req.Start != "":
			start, err := time.Parse(time.RFC3339, req.Start)
			if err != nil {
				http.Error(w, "start must be RFC 3339", http.StatusBadRequest)
				return
			}
			if req.Minutes <= 0 {
				req.Minutes = 60
			}
			b.At(start, time.Duration(req.Minutes)*time.Minute)
		}

		id := fake.Seed(b.Build())
		logger.Info("seeded event", "id", id, "title", req.Title)
		respondJSON(w, http.StatusOK, map[string]string{"id": id})
	})

	testMux.HandleFunc("POST /api/test/model-reply", func(w http.ResponseWriter, r *http.Request) {
		if scripted == nil {
			http.Error(w, "Model replies are only scripted without ANTHROPIC_API_KEY", http.StatusConflict)
			return
		}
		var req struct {
			Contains string          `json:"contains"`
			Reply    json.RawMessage `json:"reply"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Contains == "" {
			http.Error(w, "contains and reply are required", http.StatusBadRequest)
			return
		}
		scripted.On(req.Contains, string(req.Reply))
		respondJSON(w, http.StatusOK, map[string]string{"status": "scripted"})
	})

	testMux.Handle("/", srv.Handler())

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: testMux,
	}

	go func() {
		logger.Info("Test server listening", "url", cfg.BaseURL, "login", cfg.BaseURL+"/auth/login?redirect=true")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down test server...")
	httpSrv.Close()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
