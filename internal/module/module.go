package module

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/registry"
)

// Module is a self-contained application feature.
type Module interface {
	// Name returns a unique identifier for the module.
	Name() string

	// Register builds the module's services and publishes them in the
	// registry. It runs for every module before any Boot.
	Register(reg *registry.Registry) error

	// Boot mounts routes and starts background work.
	Boot(ctx context.Context, router *echo.Group, reg *registry.Registry) error

	// Shutdown releases what Boot started.
	Shutdown(ctx context.Context) error
}

// BaseModule provides no-op implementations for embedding.
type BaseModule struct{}

func (m *BaseModule) Register(reg *registry.Registry) error { return nil }
func (m *BaseModule) Boot(ctx context.Context, router *echo.Group, reg *registry.Registry) error {
	return nil
}
func (m *BaseModule) Shutdown(ctx context.Context) error {
	return nil
}
