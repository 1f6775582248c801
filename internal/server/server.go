// Package server wires configuration, storage, services and handlers into
// an HTTP server.
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the token verifier, then
//
//	Server.New: sqlite.DB → services → GraphQL schema → handlers → routes
//
// Everything is assembled here (the composition root) so handlers never see
// the database and services never see HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/config"
	"github.com/sakif/support-desk/internal/handler"
	"github.com/sakif/support-desk/internal/middleware"
	sqliteRepo "github.com/sakif/support-desk/internal/repository/sqlite"
	"github.com/sakif/support-desk/internal/schema"
	"github.com/sakif/support-desk/internal/service"
)

// Server owns the router and the database connection. The connection is
// closed when Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	guard  *auth.Guard
}

// NewVerifier builds the JWKS-backed token verifier for cfg. Without a
// configured domain the server still runs, but every authenticated call is
// rejected.
func NewVerifier(cfg config.Auth, logger *slog.Logger) (auth.TokenVerifier, error) {
	if !cfg.Enabled() {
		logger.Warn("AUTH0_DOMAIN not set; authentication is disabled")
		return auth.Disabled(), nil
	}
	fetcher, err := auth.NewKeySetFetcher(auth.FetcherConfig{
		URL:           cfg.JWKSURL(),
		Timeout:       cfg.JWKSTimeout,
		SkipTLSVerify: cfg.SkipTLSVerify,
		CABundle:      cfg.CABundle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating key set fetcher: %w", err)
	}

	return auth.NewVerifier(fetcher, auth.VerifierConfig{
		Issuer:     cfg.Issuer(),
		Audience:   cfg.Audience,
		Algorithms: cfg.Algorithms,
		Namespace:  cfg.Namespace,
	}), nil
}

// New opens the database and builds the routes.
func New(cfg config.Config, logger *slog.Logger, verifier auth.TokenVerifier) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		guard:  auth.NewGuard(verifier, logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
// GET  /                 → health check (text)
// POST /graphql          → GraphQL queries and mutations
// GET  /api/secure-data  → authenticated smoke test
//
// /graphql and /api are mounted sub-routers so the CORS middleware sees
// preflight OPTIONS requests before chi answers 405 for them.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	gqlSchema, err := schema.New(schema.Services{
		Conversations: service.NewConversationService(s.db, s.logger),
		Challenges:    service.NewChallengeService(s.db, s.logger),
		Users:         service.NewUserService(s.db, s.logger),
	}, s.logger)
	if err != nil {
		return err
	}
	gqlHandler := handler.NewGraphQLHandler(gqlSchema, s.logger)

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           int((24 * time.Hour).Seconds()),
	})

	s.router.Get("/", handler.HandleHealth)

	s.router.Route("/graphql", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.With(s.guard.WithSession).Post("/", gqlHandler.HandleQuery)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.With(s.guard.RequireAuth("")).Get("/secure-data", handler.HandleSecureData)
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // a JWKS fetch sits inside some requests
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("auth", s.config.Auth.Enabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
