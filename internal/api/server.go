// Package api exposes the daemon's HTTP surface: action submission and
// polling, container management, and conversations. It is thin glue over
// the action server, the container runtime, and the session manager.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/agent"
	"github.com/mkarolys/handbox/internal/session"
)

// Deps are the components the API serves.
type Deps struct {
	Actions  *action.Server
	Executor *action.Executor
	Sessions *session.Manager
	Agent    *agent.CodeAct
	Logger   *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	log      *zap.Logger
	actions  *action.Server
	exec     *action.Executor
	sessions *session.Manager
	agent    *agent.CodeAct
	engine   *gin.Engine
}

// NewServer wires the routes. Gin runs in release mode; request logging
// goes through zap.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		log:      logger,
		actions:  deps.Actions,
		exec:     deps.Executor,
		sessions: deps.Sessions,
		agent:    deps.Agent,
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.healthz)

	api := s.engine.Group("/api")
	{
		api.POST("/actions", s.submitAction)
		api.GET("/actions", s.listActions)
		api.GET("/actions/:id", s.getActionResult)
		api.DELETE("/actions/:id", s.cancelAction)

		api.GET("/containers", s.listContainers)
		api.DELETE("/containers/:id", s.removeContainer)
		api.POST("/containers/cleanup", s.cleanupContainers)

		api.POST("/conversations", s.createConversation)
		api.GET("/conversations", s.listConversations)
		api.GET("/conversations/:id", s.getConversation)
		api.DELETE("/conversations/:id", s.deleteConversation)
		api.POST("/conversations/:id/messages", s.postMessage)
	}
}

// Handler returns the router for an http.Server or a test.
func (s *Server) Handler() *gin.Engine {
	return s.engine
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
