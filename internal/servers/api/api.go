// Package api contains the read-only admin API server.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/protocols/httpp"
	"github.com/camroute/camroute/internal/registry"
	"github.com/camroute/camroute/internal/router"
)

// Server is the admin API server. It exposes the current state of the
// registry and the media plane; all endpoints are read-only.
type Server struct {
	Address     string
	ReadTimeout time.Duration
	Router      *router.Router
	Registry    *registry.Registry
	Parent      logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes the server.
func (s *Server) Initialize() error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	group := engine.Group("/v1")
	group.GET("/capabilities", s.onCapabilities)
	group.GET("/devices", s.onDevices)
	group.GET("/streams", s.onStreams)
	group.GET("/streams/:id", s.onStream)
	group.GET("/egress", s.onEgress)

	s.httpServer = &httpp.Server{
		Address:     s.Address,
		ReadTimeout: s.ReadTimeout,
		Handler:     engine,
		Parent:      s,
	}
	err := s.httpServer.Initialize()
	if err != nil {
		return err
	}

	s.Log(logger.Info, "listener opened on %s", s.Address)

	return nil
}

// Close closes the server.
func (s *Server) Close() {
	s.Log(logger.Info, "listener is closing")
	s.httpServer.Close()
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[API] "+format, args...)
}

func (s *Server) onCapabilities(ctx *gin.Context) {
	caps, err := s.Router.Capabilities()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, caps)
}

func (s *Server) onDevices(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"items": s.Registry.Devices()})
}

func (s *Server) onStreams(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"items": s.Registry.Streams()})
}

func (s *Server) onStream(ctx *gin.Context) {
	info, ok := s.Registry.Stream(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	ctx.JSON(http.StatusOK, info)
}

func (s *Server) onEgress(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"items": s.Router.EgressBindings()})
}
