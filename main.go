package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/claude"
	"github.com/omriShneor/calbot/internal/config"
	"github.com/omriShneor/calbot/internal/database"
	"github.com/omriShneor/calbot/internal/export"
	"github.com/omriShneor/calbot/internal/extract"
	"github.com/omriShneor/calbot/internal/gcal"
	"github.com/omriShneor/calbot/internal/notify"
	"github.com/omriShneor/calbot/internal/samples"
	"github.com/omriShneor/calbot/internal/server"
	"github.com/omriShneor/calbot/internal/sse"
)

func main() {
	app := &cli.App{
		Name:  "calbot",
		Usage: "Chat with your Google Calendar.",
		Commands: []*cli.Command{
			serveCommand(),
			parseCommand(),
			samplesCommand(),
			qrCommand(),
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP server (default).",
		Action: serve,
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Extract an event from TEXT and print it as JSON.",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: "text", Usage: "\"command\" for chat commands, \"text\" for announcements."},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("text is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			candidate, err := newExtractor(cfg, logger).Extract(c.Context, text, extract.ParseMode(c.String("mode")))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(candidate)
		},
	}
}

func samplesCommand() *cli.Command {
	return &cli.Command{
		Name:  "samples",
		Usage: "List the demo announcements.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only list one category (school, society, office, friends)."},
		},
		Action: func(c *cli.Context) error {
			list := samples.All()
			if category := c.String("category"); category != "" {
				list = samples.ByCategory(samples.Category(category))
			}
			for _, s := range list {
				fmt.Printf("[%s] %s (%s)\n%s\n\n", s.Category, s.Title, s.ID, strings.TrimSpace(s.Text))
			}
			return nil
		},
	}
}

func qrCommand() *cli.Command {
	return &cli.Command{
		Name:  "qr",
		Usage: "Write the Google login URL as a QR code PNG.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "login-qr.png", Usage: "Output file."},
			&cli.IntFlag{Name: "size", Value: gcal.DefaultQRSize, Usage: "Edge length in pixels."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			calendarClient, err := newCalendarClient(cfg, logger)
			if err != nil {
				return err
			}
			// The phone that scans the code carries no state cookie, so the callback accepts
			// any state for it.
			url, err := calendarClient.AuthURL("qr-" + uuid.NewString())
			if err != nil {
				return err
			}
			if err := gcal.WriteLoginQR(url, c.String("out"), c.Int("size")); err != nil {
				return err
			}
			logger.Info("wrote login QR code", "path", c.String("out"))
			return nil
		},
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	if cfg.ConfigFile != "" {
		logger.Info("loaded config file", "path", cfg.ConfigFile)
	}

	calendarClient, err := newCalendarClient(cfg, logger)
	if err != nil {
		logger.Warn("google calendar login disabled", "error", err)
	}

	db, store, err := initSessionStore(c.Context, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	cookies, err := initCookieStore(cfg, logger)
	if err != nil {
		return err
	}

	hub := sse.NewHub()
	extractor := newExtractor(cfg, logger)
	sessions := chat.NewManager(store, logger)
	sessions.SetLimits(time.Duration(cfg.SessionIdleHours)*time.Hour, cfg.MaxSessions)
	orchestrator := chat.NewOrchestrator(chat.Options{
		Extractor:           extractor,
		Provider:            calendarClient,
		Notifier:            initNotifyService(cfg, logger),
		Publisher:           hub,
		Store:               store,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Timezone:            cfg.Timezone,
		Logger:              logger,
	})

	srv := server.New(server.Config{
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Hub:          hub,
		Calendar:     calendarClient,
		Extractor:    extractor,
		Cookies:      cookies,
		Exporter:     export.NewEncoder(cfg.Timezone, nil),
		Port:         cfg.HTTPPort,
		ModelName:    cfg.ClaudeModel,
		Logger:       logger,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()
	logger.Info("calbot ready", "addr", cfg.ListenAddr(), "base_url", cfg.BaseURL, "timezone", cfg.Timezone)

	waitForShutdown(srv, logger)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newExtractor(cfg *config.Config, logger *slog.Logger) *extract.Extractor {
	var completer claude.Completer
	if cfg.AnthropicAPIKey != "" {
		completer = claude.NewClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.ClaudeTemperature)
	}
	return extract.New(extract.Options{
		Completer: completer,
		Timezone:  cfg.Timezone,
		Logger:    logger,
	})
}

// newCalendarClient always returns a usable client; the error only reports that login is
// unavailable because no OAuth client was found.
func newCalendarClient(cfg *config.Config, logger *slog.Logger) (*gcal.Client, error) {
	oauthConfig, err := gcal.LoadOAuthConfig(gcal.AuthOptions{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		BaseURL:         cfg.BaseURL,
	})
	client := gcal.NewClient(gcal.Options{
		OAuth:    oauthConfig,
		Timezone: cfg.Timezone,
		Logger:   logger,
	})
	return client, err
}

func initSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, chat.Store, error) {
	if cfg.DBPath == "" {
		logger.Info("chat sessions kept in memory only")
		return nil, nil, nil
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SessionMaxAge > 0 {
		before := time.Now().AddDate(0, 0, -cfg.SessionMaxAge)
		if n, err := db.PruneChatSessions(ctx, before); err != nil {
			logger.Warn("failed to prune chat sessions", "error", err)
		} else if n > 0 {
			logger.Info("pruned stale chat sessions", "count", n)
		}
	}
	logger.Info("chat sessions persisted", "path", cfg.DBPath)
	return db, chat.NewDBStore(db), nil
}

func initCookieStore(cfg *config.Config, logger *slog.Logger) (*auth.CookieStore, error) {
	enc, err := auth.NewEncryptorFromSecret(cfg.CookieSecret)
	if err != nil {
		return nil, fmt.Errorf("creating cookie encryptor: %w", err)
	}
	return auth.NewCookieStore(enc, !cfg.DevMode, logger), nil
}

func initNotifyService(cfg *config.Config, logger *slog.Logger) *notify.Service {
	var targets []notify.Target
	if cfg.ResendAPIKey != "" && cfg.NotifyEmail != "" {
		targets = append(targets, notify.Target{
			Notifier:  notify.NewResendNotifier(cfg.ResendAPIKey, cfg.EmailFrom, cfg.BaseURL, cfg.Timezone),
			Recipient: cfg.NotifyEmail,
		})
		logger.Info("email notifications configured (Resend)", "to", cfg.NotifyEmail)
	}
	if cfg.NotifyWebhookURL != "" {
		targets = append(targets, notify.Target{
			Notifier:  notify.NewWebhookNotifier(),
			Recipient: cfg.NotifyWebhookURL,
		})
		logger.Info("webhook notifications configured")
	}
	return notify.NewService(logger, targets...)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func waitForShutdown(srv *server.Server, logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
}
