// Package server wires the HTTP API: chunk upload, replay listing, and
// health endpoints.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dphuang2/browser-record-app/pkg/auth"
	"github.com/dphuang2/browser-record-app/pkg/chunk"
	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/health"
	"github.com/dphuang2/browser-record-app/pkg/replay"
)

// Options collects the dependencies the server needs.
type Options struct {
	Chunks      chunk.Store
	Customers   customer.Store
	Coordinator *replay.Coordinator
	Auth        *auth.Manager
	Health      *health.Checker
	Logger      *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	engine *gin.Engine
}

// New builds the router with all routes registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = health.NewChecker()
	}

	sessions := &SessionHandlers{
		chunks:      opts.Chunks,
		customers:   opts.Customers,
		coordinator: opts.Coordinator,
		logger:      opts.Logger,
	}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	engine.GET("/healthz", gin.WrapF(opts.Health.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(opts.Health.ReadinessHandler()))

	api := engine.Group("/api")
	{
		api.POST("/sessions", sessions.Upload)

		shop := api.Group("/sessions/shop/:shop")
		shop.Use(ShopAuthRequired(opts.Auth))
		{
			shop.GET("", sessions.List)
			shop.GET("/customer/:sessionId", sessions.CustomerReplay)
		}
	}

	return &Server{engine: engine}
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}
