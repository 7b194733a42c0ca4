package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threatflux/depAuditGoMCP/internal/middleware"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

// ScopeToolsCall is required to run tools when auth is enabled
const ScopeToolsCall = "tools:call"

// RegisterRoutes registers all API routes. Calling it more than once is a no-op.
func (s *Server) RegisterRoutes() {
	s.routesOnce.Do(s.registerRoutes)
}

func (s *Server) registerRoutes() {
	router := s.router

	// Authentication runs before rate limiting so buckets are keyed by subject
	var guards []gin.HandlerFunc
	if s.authMW != nil {
		guards = append(guards, s.authMW.RequireAuthentication())
	}
	if s.limiter != nil {
		guards = append(guards, middleware.RateLimitMiddleware(s.limiter))
	}

	var scoped []gin.HandlerFunc
	if s.authMW != nil {
		scoped = append(scoped, s.authMW.RequireScope(ScopeToolsCall))
	}

	// MCP streamable HTTP endpoint
	mcpGroup := router.Group("/mcp", guards...)
	{
		mcpGroup.POST("", append(scoped, s.handleMCP)...)
		mcpGroup.GET("", s.handleMCPStreamUnsupported)
	}

	apiV1 := router.Group("/api/v1")
	apiV1.GET("/health", s.healthCheck)
	apiV1.HEAD("/health", s.healthCheck)

	tools := apiV1.Group("/tools", guards...)
	{
		tools.GET("", s.listTools)
		tools.POST("/:name", append(scoped, s.callTool)...)
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	router.NoRoute(s.handleNotFound)
	s.logger.Debug("API routes registered")
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"tools":   len(s.tools.Tools()),
	})
}

func (s *Server) handleNotFound(c *gin.Context) {
	utils.NotFound(c, "Route not found: "+c.Request.URL.Path)
}
