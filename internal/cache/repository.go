package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

// CachedRoomRepository decorates a RoomRepository with a read-through cache.
// Cache failures are logged and otherwise ignored; the backend stays the
// source of truth.
type CachedRoomRepository struct {
	next  domain.RoomRepository
	cache RoomCache
	ttl   time.Duration
}

var _ domain.RoomRepository = (*CachedRoomRepository)(nil)

// NewCachedRoomRepository wraps next with cache.
func NewCachedRoomRepository(next domain.RoomRepository, cache RoomCache, ttl time.Duration) *CachedRoomRepository {
	return &CachedRoomRepository{next: next, cache: cache, ttl: ttl}
}

// CreateRoom creates the room in the backend and primes the cache.
func (r *CachedRoomRepository) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	room, err := r.next.CreateRoom(ctx, name)
	if err != nil {
		return nil, err
	}
	r.store(ctx, room)
	return room, nil
}

// FindRoom serves from the cache when possible. Misses are not cached, so a
// room created elsewhere becomes visible on the next lookup.
func (r *CachedRoomRepository) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	key := r.cache.BuildKeyByID(id)
	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		room := cached.Room
		return &room, nil
	case !errors.Is(err, ErrCacheMiss):
		slog.WarnContext(ctx, "Room cache read failed", "event", "room_cache_get_failure", "version", "1.0", "room_id", id, "error", err)
	}

	room, err := r.next.FindRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, room)
	return room, nil
}

func (r *CachedRoomRepository) store(ctx context.Context, room *domain.Room) {
	if err := r.cache.Set(ctx, r.cache.BuildKeyByID(room.ID), &RoomCacheResult{Room: *room}, r.ttl); err != nil {
		slog.WarnContext(ctx, "Room cache write failed", "event", "room_cache_set_failure", "version", "1.0", "room_id", room.ID, "error", err)
	}
}
