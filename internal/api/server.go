// Package api serves the dashboard and control surface: a JSON HTTP API,
// a WebSocket event stream, and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dotcommander/taskbrew/internal/agent"
	"github.com/dotcommander/taskbrew/internal/board"
)

// Server exposes the board over HTTP.
type Server struct {
	board  *board.Board
	mgr    *agent.InstanceManager
	hub    *Hub
	logger *slog.Logger

	httpServer *http.Server
}

// NewServer wires the API server and subscribes the WebSocket hub to the
// board's event bus.
func NewServer(b *board.Board, mgr *agent.InstanceManager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		board:  b,
		mgr:    mgr,
		hub:    NewHub(logger),
		logger: logger.With("component", "api"),
	}
	b.Bus().Subscribe("*", s.hub.Broadcast)
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/events", s.handleWS)

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/board", s.handleBoard)
		api.GET("/board/filters", s.handleBoardFilters)

		api.GET("/groups", s.handleListGroups)
		api.GET("/groups/:group_id", s.handleGetGroup)
		api.GET("/groups/:group_id/graph", s.handleGroupGraph)
		api.GET("/groups/:group_id/usage", s.handleGroupUsage)
		api.POST("/goals", s.handleCreateGoal)

		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/search", s.handleSearchTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handlePatchTask)
		api.POST("/tasks/:id/complete", s.handleCompleteTask)
		api.POST("/tasks/:id/fail", s.handleFailTask)
		api.POST("/tasks/:id/cancel", s.handleCancelTask)
		api.POST("/tasks/:id/reject", s.handleRejectTask)
		api.POST("/tasks/:id/retry", s.handleRetryTask)
		api.POST("/tasks/:id/reassign", s.handleReassignTask)
		api.POST("/tasks/batch", s.handleBatchTasks)

		api.GET("/agents", s.handleListAgents)
		api.POST("/agents/:role/pause", s.handlePauseRole)
		api.POST("/agents/:role/resume", s.handleResumeRole)

		api.GET("/events", s.handleListEvents)
		api.GET("/metrics/timeseries", s.handleTimeseries)

		api.GET("/workflows", s.handleListWorkflows)
		api.POST("/workflows/:id/start", s.handleStartWorkflow)
		api.GET("/templates", s.handleListTemplates)
		api.POST("/templates/:name/create", s.handleCreateFromTemplate)
	}
	return r
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

const requestIDHeader = "X-Request-ID"

// requestID assigns each request an id, honoring one supplied by the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"request_id", c.GetString("request_id"),
				"duration", time.Since(start))
		}
	}
}
