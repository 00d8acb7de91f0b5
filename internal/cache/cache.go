// Package cache keeps resolved rooms in Redis so that joins and page loads do
// not hit the backend for a room that was already seen. Rooms are immutable,
// so entries never need invalidation; the TTL only bounds memory.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

// ErrCacheMiss is returned by Get when no entry exists for the key.
var ErrCacheMiss = errors.New("cache miss")

// RoomCacheResult is the cached value for one room.
type RoomCacheResult struct {
	Room domain.Room `json:"room"`
}

// RoomCache stores rooms by key.
type RoomCache interface {
	Get(ctx context.Context, key string) (*RoomCacheResult, error)
	Set(ctx context.Context, key string, result *RoomCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(roomID string) string
	Close() error
}
