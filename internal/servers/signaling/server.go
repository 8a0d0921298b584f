// Package signaling contains the WebSocket signaling server.
package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/camroute/camroute/internal/eventbus"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/protocols/httpp"
	"github.com/camroute/camroute/internal/registry"
	"github.com/camroute/camroute/internal/router"
	"github.com/camroute/camroute/internal/websocket"
)

// Server is the signaling server. Every accepted WebSocket connection
// becomes a session with its own state machine.
type Server struct {
	Address     string
	Encryption  bool
	ServerCert  string
	ServerKey   string
	ReadTimeout time.Duration
	Router      *router.Router
	Registry    *registry.Registry
	Bus         *eventbus.Bus
	Parent      logger.Writer

	ctx        context.Context
	ctxCancel  func()
	httpServer *httpp.Server
	sub        *eventbus.Subscription

	mutex    sync.Mutex
	sessions map[*session]struct{}

	wg sync.WaitGroup
}

// Initialize initializes the server.
func (s *Server) Initialize() error {
	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.sessions = make(map[*session]struct{})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET("/", s.onRequest)
	engine.GET("/signaling", s.onRequest)

	s.httpServer = &httpp.Server{
		Address:     s.Address,
		ReadTimeout: s.ReadTimeout,
		Encryption:  s.Encryption,
		ServerCert:  s.ServerCert,
		ServerKey:   s.ServerKey,
		Handler:     engine,
		Parent:      s,
	}
	err := s.httpServer.Initialize()
	if err != nil {
		s.ctxCancel()
		return err
	}

	s.sub = s.Bus.Subscribe()
	s.wg.Add(1)
	go s.runEventPump()

	s.Log(logger.Info, "listener opened on %s", s.Address)

	return nil
}

// Close closes the server and every open session.
func (s *Server) Close() {
	s.Log(logger.Info, "listener is closing")

	s.ctxCancel()
	s.httpServer.Close()

	s.mutex.Lock()
	sub := s.sub
	sessions := make([]*session, 0, len(s.sessions))
	for sx := range s.sessions {
		sessions = append(sessions, sx)
	}
	s.mutex.Unlock()

	sub.Close()

	for _, sx := range sessions {
		sx.close()
	}

	s.wg.Wait()
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[signaling] "+format, args...)
}

// runEventPump broadcasts lifecycle events to every open session.
// Payloads are encoded once per event. When the bus drops the pump as
// a slow subscriber, the pump resubscribes instead of dying.
func (s *Server) runEventPump() {
	defer s.wg.Done()

	sub := s.sub

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				s.Log(logger.Warn, "event pump lagged behind, resubscribing")
				sub = s.Bus.Subscribe()
				s.mutex.Lock()
				s.sub = sub
				s.mutex.Unlock()
				continue
			}

			byts, err := json.Marshal(evt)
			if err != nil {
				continue
			}

			s.mutex.Lock()
			sessions := make([]*session, 0, len(s.sessions))
			for sx := range s.sessions {
				sessions = append(sessions, sx)
			}
			s.mutex.Unlock()

			for _, sx := range sessions {
				sx.pushEncoded(byts)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) onRequest(ctx *gin.Context) {
	conn, err := websocket.NewServerConn(ctx.Writer, ctx.Request)
	if err != nil {
		ctx.Status(http.StatusBadRequest)
		return
	}

	sx := &session{
		server: s,
		conn:   conn,
	}
	sx.initialize()

	s.mutex.Lock()
	s.sessions[sx] = struct{}{}
	s.mutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sx.run()

		s.mutex.Lock()
		delete(s.sessions, sx)
		s.mutex.Unlock()
	}()
}
