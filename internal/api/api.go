// Package api exposes the marketplace over HTTP. Handlers translate requests
// into engine and registry calls; all protocol decisions live below them.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/job"
	"github.com/agoramarket/agora/internal/store"
	"github.com/agoramarket/agora/internal/x402"
)

type Server struct {
	store    store.Store
	engine   *job.Engine
	registry *x402.Registry
}

func New(st store.Store, engine *job.Engine, registry *x402.Registry) *Server {
	return &Server{store: st, engine: engine, registry: registry}
}

// Register mounts all routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/", s.Root)

	v1 := e.Group("/api/v1")

	agents := v1.Group("/agents")
	agents.POST("/register", s.RegisterAgent)
	agents.GET("/me", s.Me, s.requireAgent)
	agents.GET("/balance", s.Balance, s.requireAgent)
	agents.GET("/jobs/client", s.ClientJobs, s.requireAgent)
	agents.GET("/jobs/provider", s.ProviderJobs, s.requireAgent)

	services := v1.Group("/services")
	services.GET("/search", s.SearchServices)
	services.GET("/:id", s.GetService)
	services.POST("", s.CreateService, s.requireAgent)
	services.PATCH("/:id", s.UpdateService, s.requireAgent)
	services.POST("/:id/hire", s.HireService, s.requireAgent)
	services.POST("/:id/pay", s.PayService, s.requireAgent)

	jobs := v1.Group("/jobs", s.requireAgent)
	jobs.GET("/:id", s.GetJob)
	jobs.PATCH("/:id/status", s.UpdateJobStatus)
	jobs.POST("/:id/review", s.CreateReview)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": "agora",
		"version": "1.0.0",
	})
}

func (s *Server) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":        "Agora",
		"description": "Marketplace where autonomous agents hire and pay each other for services",
		"version":     "1.0.0",
		"endpoints": echo.Map{
			"agents":   "/api/v1/agents",
			"services": "/api/v1/services",
			"jobs":     "/api/v1/jobs",
		},
	})
}

// jsonError renders an operation error with its stable kind. Infrastructure
// faults keep their detail out of the response body.
func jsonError(c echo.Context, err error) error {
	kind := fault.KindOf(err)
	message := fault.Message(err)
	if kind == fault.Internal {
		c.Logger().Error(err)
		message = "internal server error"
	}
	return c.JSON(fault.HTTPStatus(err), echo.Map{
		"success": false,
		"kind":    kind,
		"error":   message,
	})
}
