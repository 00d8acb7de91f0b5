package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/roomchat/internal/app"
	"github.com/nfrund/roomchat/internal/backend"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/registry"
	"github.com/nfrund/roomchat/internal/rendering"
	"github.com/nfrund/roomchat/web"
)

// Server holds the HTTP server and everything it owns.
type Server struct {
	E        *echo.Echo
	Cfg      config.Provider
	Backend  domain.Backend
	Bus      pubsub.Bus
	Registry *registry.Registry

	modules         []module.Module
	tracingShutdown func()
}

// Option customises New.
type Option func(*Server)

// WithBackend uses b instead of building one from the configuration. The
// server still connects and closes it.
func WithBackend(b domain.Backend, bus pubsub.Bus) Option {
	return func(s *Server) {
		s.Backend = b
		s.Bus = bus
	}
}

// New connects the backend, registers and boots every module and returns a
// server ready to Start.
func New(ctx context.Context, cfg config.Provider, opts ...Option) (*Server, error) {
	s := &Server{Cfg: cfg, tracingShutdown: func() {}}
	for _, opt := range opts {
		opt(s)
	}

	if s.Bus == nil {
		bus, shutdown, err := newBus(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Bus, s.tracingShutdown = bus, shutdown
	}
	if s.Backend == nil {
		b, err := backend.New(cfg, s.Bus)
		if err != nil {
			return nil, err
		}
		s.Backend = b
	}
	if err := s.Backend.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect backend: %w", err)
	}

	renderer := rendering.NewUniversalRenderer()

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.Validator = NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())

	store := sessions.NewCookieStore([]byte(cfg.GetSessionSecret()))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))

	e.StaticFS("/static", echo.MustSubFS(web.FS, "static"))
	s.E = e

	s.Registry = registry.New(cfg)
	registry.Set(s.Registry, registry.BackendKey, s.Backend)
	registry.Set(s.Registry, registry.BusKey, s.Bus)
	registry.Set(s.Registry, registry.RendererKey, rendering.Renderer(renderer))

	s.modules = app.NewModules(app.Dependencies{Config: cfg})
	if err := s.bootModules(ctx); err != nil {
		return nil, err
	}
	s.RegisterRoutes()
	return s, nil
}

func (s *Server) bootModules(ctx context.Context) error {
	for _, m := range s.modules {
		if err := m.Register(s.Registry); err != nil {
			return fmt.Errorf("module %s: register: %w", m.Name(), err)
		}
	}
	root := s.E.Group("")
	for _, m := range s.modules {
		if err := m.Boot(ctx, root, s.Registry); err != nil {
			return fmt.Errorf("module %s: boot: %w", m.Name(), err)
		}
	}
	return nil
}

// newBus builds the in-process bus, traced when the configuration enables it.
func newBus(ctx context.Context, cfg config.Provider) (pubsub.Bus, func(), error) {
	if !cfg.GetTracingEnabled() {
		return pubsub.NewWatermillBridge(pubsub.WithLogger(slog.Default())), func() {}, nil
	}
	tracer, shutdown, err := pubsub.NewTracer(ctx, pubsub.TracingConfig{
		Enabled:     true,
		ServiceName: cfg.GetTracingServiceName(),
		ZipkinURL:   cfg.GetTracingZipkinURL(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	return pubsub.NewWatermillBridge(pubsub.WithLogger(slog.Default()), pubsub.WithTracer(tracer)), shutdown, nil
}
