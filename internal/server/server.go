// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it receives the already-opened
// infrastructure (database, optional Redis and broker) from main and
// wires services, handlers and middleware around it.
//
//	main.go:   config → logger → sqlstore.Open → redis → amqp
//	server.New: TokenService, PasswordService → AuthService, TaskService
//	            → AuthHandler, TaskHandler, HealthHandler → routes
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/auth"
	"github.com/sakif/todo-api/internal/config"
	"github.com/sakif/todo-api/internal/events"
	"github.com/sakif/todo-api/internal/handler"
	"github.com/sakif/todo-api/internal/middleware"
	"github.com/sakif/todo-api/internal/repository/sqlstore"
	"github.com/sakif/todo-api/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Deps is the infrastructure main hands to the server. The server does
// not own it: main closes everything after Start returns.
type Deps struct {
	DB        *sqlstore.DB
	Redis     *redis.Client    // optional; nil disables rate limiting
	Publisher events.Publisher // optional; nil means events.Nop
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger zerolog.Logger
	deps   Deps
}

// New builds the services and the router. It fails only on an invalid
// JWT or bcrypt setting, which config validation normally catches first.
func New(cfg *config.Config, logger zerolog.Logger, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                                         → service info
// GET    /health, /health/ready                    → liveness, readiness
// GET    /metrics                                  → Prometheus
// POST   /api/auth/register, /api/auth/login       → public, rate limited
// GET    /api/auth/me, POST /api/auth/logout       → bearer token
// *      /users/{userId}/tasks[/{taskId}[/toggle-complete]] → bearer token + owner
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, RealIP: everything after sees the id and client address
//  2. Logger: wraps Recoverer so a recovered panic is logged as a 500
//  3. Recoverer, Metrics, CORS
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(auth.Options{
		Secret:    s.config.JWT.Secret,
		Algorithm: s.config.JWT.Algorithm,
		TTL:       s.config.TokenTTL(),
	})
	if err != nil {
		return err
	}
	passwords, err := auth.NewPasswordService(s.config.BcryptCost)
	if err != nil {
		return err
	}
	guard := auth.NewGuard(tokens)
	s.logger.Debug().
		Str("jwt_algorithm", tokens.Algorithm()).
		Dur("token_ttl", s.config.TokenTTL()).
		Msg("token service ready")

	authService := service.NewAuthService(s.deps.DB.Users(), tokens, passwords, s.logger)
	taskService := service.NewTaskService(s.deps.DB.Tasks(), s.deps.Publisher, s.logger)

	authHandler := handler.NewAuthHandler(authService)
	taskHandler := handler.NewTaskHandler(taskService)
	healthHandler := handler.NewHealthHandler(s.deps.DB, s.deps.Redis)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, &apperror.AppError{Err: apperror.ErrNotFound, Message: "Not Found"})
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"detail":"Method Not Allowed"}` + "\n"))
	})

	// === Operational Routes ===
	s.router.Get("/", healthHandler.HandleRoot)
	s.router.Get("/health", healthHandler.HandleLiveness)
	s.router.Get("/health/ready", healthHandler.HandleReadiness)
	s.router.Handle("/metrics", promhttp.Handler())

	requireAuth := auth.RequireAuth(guard, handler.WriteError)

	// === Auth Routes ===
	s.router.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.config.RateLimit, s.deps.Redis, s.logger))
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.HandleMe)
			r.Post("/logout", authHandler.HandleLogout)
		})
	})

	// === Task Routes ===
	// RequireAuth (401) always runs before RequireOwner (403).
	s.router.Route("/users/{userId}/tasks", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(auth.RequireOwner(guard, "userId", handler.WriteError))

		r.Get("/", taskHandler.HandleList)
		r.Post("/", taskHandler.HandleCreate)
		r.Route("/{taskId}", func(r chi.Router) {
			r.Get("/", taskHandler.HandleGet)
			r.Put("/", taskHandler.HandleUpdate)
			r.Patch("/", taskHandler.HandleUpdate)
			r.Delete("/", taskHandler.HandleDelete)
			r.Patch("/toggle-complete", taskHandler.HandleToggle)
		})
	})

	return nil
}

// Start serves HTTP until SIGINT/SIGTERM, then drains in-flight requests
// for up to 30 seconds.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", srv.Addr).
			Str("env", s.config.Env).
			Str("database", s.deps.DB.Dialect()).
			Bool("rate_limit", s.deps.Redis != nil && s.config.RateLimit.Enabled).
			Msg("server starting")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info().Msg("server stopped gracefully")
	}
	return nil
}
