package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/omriShneor/calbot/internal/auth"
	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/domain"
	"github.com/omriShneor/calbot/internal/export"
	"github.com/omriShneor/calbot/internal/sse"
)

// Calendar is the provider surface the HTTP layer needs: the chat operations plus login.
type Calendar interface {
	chat.CalendarProvider
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (domain.Credential, error)
	IsConfigured() bool
}

type Server struct {
	orchestrator *chat.Orchestrator
	sessions     *chat.Manager
	hub          *sse.Hub
	calendar     Calendar
	extractor    chat.Extractor
	cookies      *auth.CookieStore
	middleware   *auth.Middleware
	exporter     *export.Encoder
	modelName    string
	logger       *slog.Logger
	httpSrv      *http.Server
	port         int
}

// Config holds the collaborators of the HTTP surface.
type Config struct {
	Orchestrator *chat.Orchestrator
	Sessions     *chat.Manager
	Hub          *sse.Hub
	Calendar     Calendar
	// Extractor backs POST /parse; it is the same extractor the orchestrator uses.
	Extractor chat.Extractor
	Cookies   *auth.CookieStore
	Exporter  *export.Encoder
	Port      int
	ModelName string
	Logger    *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Exporter == nil {
		cfg.Exporter = export.NewEncoder("UTC", nil)
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		sessions:     cfg.Sessions,
		hub:          cfg.Hub,
		calendar:     cfg.Calendar,
		extractor:    cfg.Extractor,
		cookies:      cfg.Cookies,
		middleware:   auth.NewMiddleware(cfg.Cookies),
		exporter:     cfg.Exporter,
		modelName:    cfg.ModelName,
		logger:       cfg.Logger,
		port:         cfg.Port,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.corsMiddleware(mux),
		ReadTimeout: 15 * time.Second,
		// Extraction waits on the model, whose client times out after 60s.
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	required := s.middleware.RequireCredential
	optional := s.middleware.OptionalCredential

	// Health check
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// Google login
	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/login/qr", s.handleLoginQR)
	mux.HandleFunc("GET /auth/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	// Events API
	mux.Handle("POST /events/create", required(http.HandlerFunc(s.handleCreateEvent)))
	mux.Handle("GET /events/list", required(http.HandlerFunc(s.handleListEvents)))
	mux.Handle("POST /events/update", required(http.HandlerFunc(s.handleUpdateEvent)))
	mux.Handle("GET /events/export.ics", required(http.HandlerFunc(s.handleExportEvents)))

	// Extraction
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("GET /samples", s.handleListSamples)

	// Chat API
	mux.HandleFunc("GET /chat/session", s.handleGetSession)
	mux.Handle("POST /chat/messages", optional(http.HandlerFunc(s.handleChatMessage)))
	mux.HandleFunc("POST /chat/extract", s.handleChatExtract)
	mux.Handle("POST /chat/confirm", optional(http.HandlerFunc(s.handleChatConfirm)))
	mux.HandleFunc("POST /chat/cancel", s.handleChatCancel)
	mux.Handle("POST /chat/refresh", required(http.HandlerFunc(s.handleChatRefresh)))
	mux.HandleFunc("GET /chat/stream", s.handleChatStream)
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", fmt.Sprintf("http://localhost:%d", s.port))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware adds CORS headers so a separately served client can call the API
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
