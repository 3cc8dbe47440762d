package server

import (
	"context"
	"time"

	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/handlers"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Server represents the application HTTP server for the agent review UI.
type Server struct {
	echo       *echo.Echo
	store      *database.Store
	sender     handlers.DraftSender
	translator handlers.DraftTranslator
	reindexer  handlers.Reindexer
	config     *config.Config
	logger     zerolog.Logger
}

// New creates a new server instance. sender, translator and reindexer may
// be nil in offline mode; the corresponding endpoints then report that the
// capability is unavailable.
func New(
	cfg *config.Config,
	store *database.Store,
	sender handlers.DraftSender,
	translator handlers.DraftTranslator,
	reindexer handlers.Reindexer,
	logger zerolog.Logger,
) *Server {
	return &Server{
		config:     cfg,
		store:      store,
		sender:     sender,
		translator: translator,
		reindexer:  reindexer,
		logger:     logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.store.DB()))

	// API endpoints under /api prefix
	api.GET("/", handlers.RootHandler(s.config.Version))

	// Thread queue for agents, ordered by priority
	api.GET("/threads", handlers.ListThreadsHandler(s.store))
	api.GET("/threads/:id", handlers.GetThreadHandler(s.store))

	// Draft review flow
	api.PUT("/drafts/:id", handlers.UpdateDraftHandler(s.store))
	api.POST("/drafts/:id/send", handlers.SendDraftHandler(s.sender))
	api.POST("/drafts/:id/translate", handlers.TranslateDraftHandler(s.store, s.translator))

	// Knowledge base management
	api.GET("/kb", handlers.ListKBEntriesHandler(s.store))
	api.POST("/kb", handlers.CreateKBEntryHandler(s.store, s.reindexer, s.logger))
	api.POST("/kb/reindex", handlers.ReindexKBHandler(s.reindexer))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
