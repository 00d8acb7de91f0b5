package registry

import (
	"fmt"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/samber/do/v2"
)

// Key is a type-safe, generic key for registering and retrieving services.
// The string value should be a unique identifier, e.g. "chatroom.rooms".
type Key[T any] string

// Registry lets modules share services at runtime. Values live in a
// samber/do injector under the key's name.
type Registry struct {
	injector do.Injector
	cfg      config.Provider
}

// New creates a registry with the application's configuration provider.
func New(cfg config.Provider) *Registry {
	return &Registry{
		injector: do.New(),
		cfg:      cfg,
	}
}

// Config returns the configuration provider stored in the registry.
func (r *Registry) Config() config.Provider {
	return r.cfg
}

// Set registers value under key, replacing any earlier value.
func Set[T any](r *Registry, key Key[T], value T) {
	do.OverrideNamedValue(r.injector, string(key), value)
}

// Get retrieves a service by key.
func Get[T any](r *Registry, key Key[T]) (T, bool) {
	val, err := do.InvokeNamed[T](r.injector, string(key))
	if err != nil {
		var zero T
		return zero, false
	}
	return val, true
}

// MustGet retrieves a service or panics if it is missing. Use it for wiring
// essential dependencies at startup.
func MustGet[T any](r *Registry, key Key[T]) T {
	val, ok := Get(r, key)
	if !ok {
		panic(fmt.Sprintf("service not found for key: %v", key))
	}
	return val
}
