// Package backend builds the configured store behind the domain.Backend
// boundary.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/cache"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/database"
	"github.com/nfrund/roomchat/internal/database/memory"
	"github.com/nfrund/roomchat/internal/database/postgres"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
)

const roomCachePrefix = "roomchat:room"

// New returns an unconnected backend for cfg.GetBackend(). The postgres and
// memory backends fan inserts out over bus; SurrealDB uses live queries and
// ignores it. When a Redis URL is configured, room lookups are cached.
func New(cfg config.Provider, bus pubsub.Bus) (domain.Backend, error) {
	var inner domain.Backend
	switch cfg.GetBackend() {
	case config.BackendSurreal:
		inner = database.NewStore(cfg)
	case config.BackendPostgres:
		inner = postgres.New(bus, cfg)
	case config.BackendMemory:
		inner = memory.New(bus, cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.GetBackend())
	}

	if cfg.GetRedisURL() == "" {
		return inner, nil
	}
	return &cached{
		Backend: inner,
		url:     cfg.GetRedisURL(),
		ttl:     cfg.GetRoomCacheTTL(),
		open: func(ctx context.Context, url string) (cache.RoomCache, error) {
			return cache.NewRedisRoomCache(ctx, url, roomCachePrefix)
		},
	}, nil
}

// cached puts a room cache in front of another backend. The cache is opened
// on Connect; if Redis cannot be reached the backend runs uncached.
type cached struct {
	domain.Backend
	url  string
	ttl  time.Duration
	open func(ctx context.Context, url string) (cache.RoomCache, error)

	mu    sync.RWMutex
	cache cache.RoomCache
	rooms domain.RoomRepository
}

func (c *cached) Connect(ctx context.Context) error {
	if err := c.Backend.Connect(ctx); err != nil {
		return err
	}

	rc, err := c.open(ctx, c.url)
	if err != nil {
		slog.WarnContext(ctx, "Room cache unavailable, continuing without it", "event", "room_cache_unavailable", "version", "1.0", "error", err)
		return nil
	}

	c.mu.Lock()
	c.cache = rc
	c.rooms = cache.NewCachedRoomRepository(c.Backend.Rooms(), rc, c.ttl)
	c.mu.Unlock()
	slog.InfoContext(ctx, "Room cache enabled", "event", "room_cache_enabled", "version", "1.0")
	return nil
}

func (c *cached) Rooms() domain.RoomRepository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rooms != nil {
		return c.rooms
	}
	return c.Backend.Rooms()
}

func (c *cached) Close(ctx context.Context) error {
	c.mu.Lock()
	rc := c.cache
	c.cache, c.rooms = nil, nil
	c.mu.Unlock()

	err := c.Backend.Close(ctx)
	if rc != nil {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
