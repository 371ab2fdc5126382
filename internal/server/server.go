package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/handlers"
	"github.com/emilythestrangee/consensus/backend/internal/middleware"
)

// HealthChecker reports dependency status for /health.
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	handler   *handlers.Handler
	health    HealthChecker
	jwtSecret []byte
	logger    *zap.Logger
}

// NewServer creates and configures a new server
func NewServer(port int, jwtSecret string, handler *handlers.Handler, health HealthChecker, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	newServer := &Server{
		handler:   handler,
		health:    health,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}

	// Create HTTP server
	return &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.logger))

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if s.health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		stats := s.health.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})

	api := r.Group("/api")
	{
		// Vote routes (public reads)
		api.GET("/motions/:id/votes", s.handler.Vote.GetVotes)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.jwtSecret))
		{
			protected.POST("/motions/:id/votes", s.handler.Vote.SubmitVote)

			protected.GET("/notifications", s.handler.Notification.GetNotifications)

			protected.GET("/identities", s.handler.Identity.GetIdentities)
			protected.POST("/identities", s.handler.Identity.LinkIdentity)
		}
	}

	return r
}
