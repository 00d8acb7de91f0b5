// Package chatroom serves the chat over HTTP: the HTML flow for browsers, a
// JSON API and WebSocket streams of new messages.
package chatroom

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/livefeed"
	"github.com/nfrund/roomchat/internal/messagelog"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/registry"
	"github.com/nfrund/roomchat/internal/rendering"
	"github.com/nfrund/roomchat/internal/room"
)

// Dependencies are the module's settings. Services come from the registry.
type Dependencies struct {
	// BaseURL is the public address used in share links.
	BaseURL string
	// MessageRateLimit caps write requests per client IP per minute.
	MessageRateLimit int
}

// Module implements module.Module.
type Module struct {
	module.BaseModule
	deps Dependencies

	rooms    *room.Manager
	messages *messagelog.Log
	live     *livefeed.Channel
	renderer rendering.Renderer
}

var _ module.Module = (*Module)(nil)

// New creates the module.
func New(deps Dependencies) *Module {
	return &Module{deps: deps}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "chatroom"
}

// Register builds the room manager, message log and live channel on the
// backend found in the registry and publishes them.
func (m *Module) Register(reg *registry.Registry) error {
	backend, ok := registry.Get(reg, registry.BackendKey)
	if !ok {
		return fmt.Errorf("chatroom: backend not registered")
	}
	renderer, ok := registry.Get(reg, registry.RendererKey)
	if !ok {
		return fmt.Errorf("chatroom: renderer not registered")
	}

	m.renderer = renderer
	m.rooms = room.NewManager(backend.Rooms(), room.WithBaseURL(m.deps.BaseURL))
	m.messages = messagelog.New(backend.Messages(), nil)
	m.live = livefeed.New(backend.Feed(), nil)

	registry.Set(reg, registry.RoomManagerKey, m.rooms)
	registry.Set(reg, registry.MessageLogKey, m.messages)
	registry.Set(reg, registry.LiveChannelKey, m.live)
	return nil
}

// Boot mounts the HTML routes on g and the JSON API under /api/v1.
func (m *Module) Boot(ctx context.Context, g *echo.Group, reg *registry.Registry) error {
	h := &Handler{
		rooms:    m.rooms,
		messages: m.messages,
		live:     m.live,
		renderer: m.renderer,
		origins:  originPatterns(m.deps.BaseURL),
	}
	writeLimit := middleware.RateLimiter(m.deps.MessageRateLimit)

	g.GET("/", h.Home)
	g.POST("/rooms", h.CreateRoom, writeLimit)
	g.POST("/join", h.JoinRoom)
	g.POST("/nickname", h.SetNickname)
	g.GET("/rooms/:id", h.RoomPage)
	g.POST("/rooms/:id/messages", h.SendMessage, writeLimit)
	g.GET("/rooms/:id/ws", h.LiveFragments)

	v1 := g.Group("/api/v1")
	{
		v1.POST("/rooms", h.APICreateRoom, writeLimit)
		v1.GET("/rooms/:id", h.APIGetRoom)
		v1.GET("/rooms/:id/messages", h.APIListMessages)
		v1.POST("/rooms/:id/messages", h.APISendMessage, writeLimit)
		v1.GET("/rooms/:id/stream", h.APIStream)
	}

	slog.InfoContext(ctx, "Chatroom routes registered", "event", "module_booted", "module", m.Name())
	return nil
}

// originPatterns allows WebSocket upgrades from the public host. Requests
// from the same host are always allowed.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// Shutdown closes every open live subscription.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.live == nil {
		return nil
	}
	return m.live.Close()
}
