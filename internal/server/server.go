package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/config"
	"github.com/mycloud-app/mycloud/internal/db"
	"github.com/mycloud-app/mycloud/internal/handlers"
	"github.com/mycloud-app/mycloud/internal/mq"
	"github.com/mycloud-app/mycloud/internal/services"
	"github.com/mycloud-app/mycloud/internal/storage"
	"github.com/mycloud-app/mycloud/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
	logger     *zap.Logger
}

// Deps are the backing services of the API. Open builds them from config;
// tests pass in-memory ones to NewWithDeps.
type Deps struct {
	Users   services.UserRepository
	Files   services.FileRepository
	Objects storage.ObjectStorage
	Events  *mq.MQ
	DB      *sql.DB
	Logger  *zap.Logger
}

// New connects to postgres, object storage and the broker named in cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var deps Deps
	deps.Logger = logger
	if strings.EqualFold(cfg.Database.Backend, "memory") {
		mem := store.NewMemory()
		deps.Users, deps.Files = mem.Users(), mem.Files()
	} else {
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		deps.DB = dbConn
		deps.Users = store.NewUserRepository(dbConn)
		deps.Files = store.NewFileRepository(dbConn)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		closeDB(deps.DB)
		return nil, err
	}
	deps.Objects = objects

	events, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		closeDB(deps.DB)
		return nil, err
	}
	deps.Events = events

	return NewWithDeps(cfg, deps), nil
}

// NewWithDeps builds the router over already constructed dependencies.
func NewWithDeps(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fileService := services.NewFileService(deps.Files, deps.Objects, deps.Events, logger, cfg.PublicURL, cfg.MaxUploadBytes)
	userService := services.NewUserService(deps.Users, fileService, deps.Events, logger)

	secret := cfg.SessionSecret
	if secret == "" {
		secret = cfg.JWTSecret
	}
	sessions := handlers.NewSessionStore(secret, strings.HasPrefix(cfg.PublicURL, "https://"))
	authHandler := handlers.NewAuthHandler(userService, sessions, handlers.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
		LoginRateLimit: cfg.LoginRateLimit,
	}, logger)
	fileHandler := handlers.NewFileHandler(fileService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/media/*", fileHandler.Media)
	router.Route("/api", func(r chi.Router) {
		r.Get("/csrf/", sessions.CSRF)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, authHandler)
		})
		r.Route("/files", func(r chi.Router) {
			handlers.FileRouter(r, fileHandler, authHandler)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8000
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         deps.DB,
		events:     deps.Events,
		logger:     logger,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.events.Close(); cerr != nil {
		s.logger.Warn("close broker failed", zap.Error(cerr))
	}
	closeDB(s.db)
	return err
}

func closeDB(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close()
	}
}
