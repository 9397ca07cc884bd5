// Package api provides the REST management API for hydrablock.
// It exposes the message bus, a REST mirror of the common actions,
// prometheus metrics and the filter-list directory via a Gin-based HTTP server.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/handlers"
	"github.com/jroosing/hydrablock/internal/api/middleware"
	"github.com/jroosing/hydrablock/internal/blocker"
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/metrics"
)

// Deps are the runtime components behind the API. Every field is optional;
// endpoints whose component is missing answer 503 (or are not mounted, for
// /metrics).
type Deps struct {
	Blocker    *blocker.Blocker
	Dispatcher *messaging.Dispatcher
	Metrics    *metrics.Metrics
}

// Server is the management REST API server.
//
// Security note: do not expose the API to untrusted networks without an api key.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	handler    *handlers.Handler
	httpServer *http.Server
}

// New builds the server. It panics when cfg is nil.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(cfg, logger)
	h.SetBlocker(deps.Blocker)
	h.SetDispatcher(deps.Dispatcher)
	RegisterRoutes(engine, h, cfg, deps.Metrics)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, handler: h, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler exposes the endpoint handlers so components started later can be
// attached.
func (s *Server) Handler() *handlers.Handler {
	return s.handler
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln. Used when the caller owns the listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
