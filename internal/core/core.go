// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"

	"github.com/camroute/camroute/internal/conf"
	"github.com/camroute/camroute/internal/eventbus"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/portpool"
	"github.com/camroute/camroute/internal/registry"
	"github.com/camroute/camroute/internal/router"
	"github.com/camroute/camroute/internal/servers/api"
	"github.com/camroute/camroute/internal/servers/signaling"
)

var version = "v0.0.0"

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:"camroute.yml"`
}

// Core is an instance of camroute.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	conf            *conf.Conf
	confFound       bool
	logger          *logger.Logger
	bus             *eventbus.Bus
	registry        *registry.Registry
	pool            *portpool.Pool
	router          *router.Router
	signalingServer *signaling.Server
	apiServer       *api.Server

	// out
	done chan struct{}
}

// New allocates a core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("camroute "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is camroute.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		done:      make(chan struct{}),
	}

	p.conf, p.confFound, err = conf.Load(p.confPath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources()
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-interrupt:
		p.Log(logger.Info, "shutting down gracefully, because a termination signal was received")

	case <-p.ctx.Done():
	}

	p.closeResources()
}

func (p *Core) createResources() error {
	p.logger = &logger.Logger{
		Level:        logger.Level(p.conf.LogLevel),
		Destinations: p.conf.LogDestinations,
		FilePath:     p.conf.LogFile,
	}
	err := p.logger.Initialize()
	if err != nil {
		return err
	}

	p.Log(logger.Info, "camroute %s", version)

	if !p.confFound {
		p.Log(logger.Warn, "configuration file not found, using the default one")
	}

	p.bus = &eventbus.Bus{}
	p.bus.Initialize()

	p.registry = &registry.Registry{
		RemovalGrace: time.Duration(p.conf.RemovalGrace),
		Bus:          p.bus,
		Parent:       p,
	}
	p.registry.Initialize()

	p.pool = &portpool.Pool{
		ListenIP: p.conf.EgressListenIP,
		MinPort:  p.conf.EgressMinPort,
		MaxPort:  p.conf.EgressMaxPort,
	}
	err = p.pool.Initialize()
	if err != nil {
		return err
	}

	p.router = &router.Router{
		AnnouncedIP:            p.conf.AnnouncedIP,
		WebRTCMinPort:          p.conf.WebRTCMinPort,
		WebRTCMaxPort:          p.conf.WebRTCMaxPort,
		Codecs:                 p.conf.Codecs,
		InitialOutgoingBitrate: p.conf.InitialOutgoingBitrate,
		MaxIncomingBitrate:     p.conf.MaxIncomingBitrate,
		HandshakeTimeout:       time.Duration(p.conf.HandshakeTimeout),
		Pool:                   p.pool,
		Registry:               p.registry,
		Parent:                 p,
	}
	err = p.router.Initialize()
	if err != nil {
		return err
	}

	p.signalingServer = &signaling.Server{
		Address:     p.conf.SignalingAddress,
		Encryption:  p.conf.ServerCert != "",
		ServerCert:  p.conf.ServerCert,
		ServerKey:   p.conf.ServerKey,
		ReadTimeout: time.Duration(p.conf.ReadTimeout),
		Router:      p.router,
		Registry:    p.registry,
		Bus:         p.bus,
		Parent:      p,
	}
	err = p.signalingServer.Initialize()
	if err != nil {
		return err
	}

	if p.conf.API {
		p.apiServer = &api.Server{
			Address:     p.conf.APIAddress,
			ReadTimeout: time.Duration(p.conf.ReadTimeout),
			Router:      p.router,
			Registry:    p.registry,
			Parent:      p,
		}
		err = p.apiServer.Initialize()
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Core) closeResources() {
	if p.apiServer != nil {
		p.apiServer.Close()
	}

	if p.signalingServer != nil {
		p.signalingServer.Close()
	}

	if p.router != nil {
		p.router.Close()
	}

	if p.registry != nil {
		p.registry.Close()
	}

	if p.bus != nil {
		p.bus.Close()
	}

	if p.logger != nil {
		p.logger.Close()
	}
}
