// Package server is the composition root: it builds every dependency from
// the resolved config, wires handlers to routes and runs the HTTP server.
//
//	config → sqlstore → registrar → notify → webhook → services → handlers
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/config"
	"github.com/sakif/forkwatch/internal/handler"
	"github.com/sakif/forkwatch/internal/metrics"
	"github.com/sakif/forkwatch/internal/middleware"
	"github.com/sakif/forkwatch/internal/notify"
	"github.com/sakif/forkwatch/internal/registrar"
	"github.com/sakif/forkwatch/internal/repository/sqlstore"
	"github.com/sakif/forkwatch/internal/service"
	"github.com/sakif/forkwatch/internal/webhook"
)

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	mailer  notify.Mailer
	oauth   handler.OAuthProvider
	version string
}

// WithMailer replaces the SMTP transport.
func WithMailer(m notify.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithOAuthProvider replaces the GitHub OAuth flow.
func WithOAuthProvider(p handler.OAuthProvider) Option {
	return func(o *options) { o.oauth = p }
}

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Server owns the router and the store. The store is closed when Start
// returns.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqlstore.DB
	metrics *metrics.Metrics
	tokens  *auth.TokenService
}

// New opens the store and assembles the whole dependency graph.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		DSN:            cfg.DatabaseURL,
		ConnectTimeout: cfg.StoreConnectTimeout,
		OpTimeout:      cfg.StoreOpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	if err := s.setupRoutes(o); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tokens exposes the session token service, mainly for tests.
func (s *Server) Tokens() *auth.TokenService {
	return s.tokens
}

// Close releases the store. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes builds services and handlers and mounts them.
//
//	GET    /auth/github/login        → start GitHub sign-in
//	GET    /auth/github/callback     → finish sign-in, set session cookie
//	POST   /auth/logout              → clear session cookie
//	POST   /api/webhook              → GitHub fork deliveries
//	GET    /api/health               → liveness + store ping
//	GET    /api/me                   → session identity        (auth)
//	POST   /api/repos/add            → track a repository      (auth)
//	DELETE /api/repos/delete         → untrack a repository    (auth)
//	GET    /api/repos/get            → tracked repositories    (auth)
//	GET    /api/repos/list           → owned GitHub repos      (auth)
//	GET    /api/hoverlay             → repository activity     (auth)
//	POST   /api/test/simulate-fork   → synthetic fork event    (non-production)
//	GET    /metrics                  → Prometheus
func (s *Server) setupRoutes(o options) error {
	cfg := s.config

	secret := cfg.SessionSecret
	if secret == "" {
		secret = ephemeralSecret()
		s.logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.tokens = tokens

	gh, err := registrar.New(registrar.Config{
		BaseURL: cfg.GitHubAPIURL,
		Timeout: cfg.GitHubTimeout,
	}, s.logger.With(slog.String("component", "registrar")))
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	mailer := o.mailer
	if mailer == nil && notify.KeyConfigured(cfg.EmailAPIKey) {
		mailer = &notify.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.EmailAPIKey,
			Timeout:  30 * time.Second,
		}
	}
	dispatcher, err := notify.NewDispatcher(notify.Config{
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		Timezone: cfg.NotifyTimezone,
	}, mailer, s.logger.With(slog.String("component", "notify")))
	if err != nil {
		return fmt.Errorf("creating notification dispatcher: %w", err)
	}
	if !dispatcher.Configured() {
		s.logger.Warn("email transport not configured; fork notifications will be skipped")
	}

	processor := webhook.NewProcessor(s.db, s.db, dispatcher, s.metrics, s.logger.With(slog.String("component", "webhook")))
	verifier := webhook.NewVerifier(cfg.WebhookSecret, cfg.IsProduction())

	authService := service.NewAuthService(s.db, tokens, s.logger)
	trackingService := service.NewTrackingService(s.db, gh, service.TrackingConfig{
		WebhooksEnabled: cfg.WebhooksEnabled(),
		CallbackURL:     cfg.WebhookCallbackURL(),
		WebhookSecret:   cfg.WebhookSecret,
		AdminToken:      cfg.GitHubAccessToken,
	}, s.metrics, s.logger)
	githubService := service.NewGitHubService(gh, s.logger)

	oauth := o.oauth
	if oauth == nil && cfg.AuthEnabled() {
		oauth = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL, gh)
	}
	if oauth == nil {
		s.logger.Warn("GitHub OAuth not configured; sign-in is disabled")
	}

	secure := cfg.IsProduction()
	authHandler := handler.NewAuthHandler(oauth, authService, secure, s.logger)
	repoHandler := handler.NewRepoHandler(trackingService, githubService, s.logger)
	webhookHandler := handler.NewWebhookHandler(processor, verifier, cfg.WebhookStrictStatus, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, o.version, cfg.Env, s.logger)

	// === Global middleware, in order ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/webhook", webhookHandler.HandleWebhook)
		r.Get("/health", healthHandler.HandleHealth)

		if !cfg.IsProduction() {
			simulate := handler.NewSimulateHandler(processor, s.logger)
			r.Post("/test/simulate-fork", simulate.HandleSimulateFork)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Post("/repos/add", repoHandler.HandleTrack)
			r.Delete("/repos/delete", repoHandler.HandleUntrack)
			r.Get("/repos/get", repoHandler.HandleListTracked)
			r.Get("/repos/list", repoHandler.HandleListOwned)
			r.Get("/hoverlay", repoHandler.HandleActivity)
		})
	})

	s.logger.Info("routes configured",
		slog.String("env", cfg.Env),
		slog.Bool("webhooks", cfg.WebhooksEnabled()),
		slog.Bool("signatureRequired", cfg.IsProduction() && cfg.WebhookSecret != ""),
	)
	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Outbound GitHub and SMTP calls happen inside requests.
		WriteTimeout: s.config.GitHubTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("appURL", s.config.AppURL),
			slog.String("store", string(s.db.Dialect())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
