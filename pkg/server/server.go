package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/config"
	"github.com/soundprediction/episodic/pkg/server/handlers"
	"github.com/soundprediction/episodic/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config *config.Config
	router *gin.Engine
	client episodic.Episodic
	server *http.Server
	logger *slog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, client episodic.Episodic, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(requestLogger(s.logger))
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router returns the configured router; nil before Setup.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.client)
	episodeHandler := handlers.NewEpisodeHandler(s.client, s.logger)
	retrieveHandler := handlers.NewRetrieveHandler(s.client)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	v1 := s.router.Group("/api/v1")
	{
		episodes := v1.Group("/episodes")
		{
			episodes.POST("", episodeHandler.AddEpisode)
			episodes.POST("/batch", episodeHandler.AddEpisodes)
		}

		searchGroup := v1.Group("/search")
		{
			searchGroup.POST("", retrieveHandler.Search)
			searchGroup.POST("/entities", retrieveHandler.SearchEntities)
			searchGroup.POST("/relationships", retrieveHandler.SearchRelationships)
		}

		v1.GET("/entities/:name/neighbors", retrieveHandler.Neighbors)
		v1.GET("/stats", retrieveHandler.Stats)
	}
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", attrs...)
		default:
			logger.Debug("Request served", attrs...)
		}
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// contextMiddleware extracts context information from headers
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyUserID, userID)
		}
		if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
			ctx = context.WithValue(ctx, types.ContextKeySessionID, sessionID)
		}
		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
