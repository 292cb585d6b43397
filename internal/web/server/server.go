package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/metrics"
	"github.com/damaro/courier/internal/ratelimit"
	"github.com/damaro/courier/internal/store"
	"github.com/damaro/courier/internal/tenant"
	"github.com/damaro/courier/internal/web/db"
	"github.com/damaro/courier/internal/web/handlers"
	"github.com/damaro/courier/internal/web/middleware"
)

// Server wires the dispatcher together: storage, limiter, registry and
// the HTTP surface.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *db.DB
	store   *store.Store
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	tenants *tenant.Registry
	http    *http.Server
}

// New builds a fully wired server from configuration
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open campaign storage: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(st.DB(), ratelimit.Config{
		MaxPerHour:    cfg.Campaign.MaxPerHour,
		FlushInterval: cfg.Campaign.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	m := metrics.New()
	registry := tenant.NewRegistry(cfg, limiter, st, m, logger, nil)

	if err := registry.Restore(); err != nil {
		return nil, fmt.Errorf("failed to restore tenants: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		store:   st,
		limiter: limiter,
		metrics: m,
		tenants: registry,
	}

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() http.Handler {
	h := handlers.New(s.cfg, s.db, s.logger, s.tenants, s.limiter)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.db, s.logger))

		r.Post("/logout", h.Logout)
		r.Post("/upload", h.Upload)
		r.Post("/upload-media", h.UploadMedia)
		r.Post("/config", h.Configure)
		r.Post("/campaign/start", h.Start)
		r.Post("/campaign/pause", h.Pause)
		r.Post("/campaign/resume", h.Resume)
		r.Post("/campaign/cancel", h.Cancel)
		r.Get("/state", h.State)
		r.Get("/events", h.Events)
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts everything down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.cfg.Server.ListenAddr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		s.shutdown()
		return nil
	}
}

func (s *Server) shutdown() {
	s.tenants.Close()
	if err := s.limiter.Stop(); err != nil {
		s.logger.Error("failed to stop rate limiter", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close campaign storage", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
}
