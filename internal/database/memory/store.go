// Package memory is an in-process backend. It keeps rooms and messages in maps
// and announces inserts on a pubsub bus, so it behaves like the networked
// backends for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/idgen"
	"github.com/nfrund/roomchat/internal/pubsub"
)

var errClosed = errors.New("memory backend closed")

// Store implements domain.Backend in memory.
type Store struct {
	bus  pubsub.Bus
	feed *pubsub.RoomFeed
	now  func() time.Time

	mu        sync.RWMutex
	connected bool
	down      error
	rooms     map[string]domain.Room
	messages  map[string][]domain.Message
	last      time.Time
}

var _ domain.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests that need fixed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store that publishes on bus. The bus is owned by the caller.
func New(bus pubsub.Bus, cfg config.Provider, opts ...Option) *Store {
	s := &Store{
		bus:      bus,
		now:      time.Now,
		rooms:    make(map[string]domain.Room),
		messages: make(map[string][]domain.Message),
	}
	buffer := 64
	if cfg != nil && cfg.GetSubscriptionBuffer() > 0 {
		buffer = cfg.GetSubscriptionBuffer()
	}
	s.feed = pubsub.NewRoomFeed(bus, pubsub.WithStreamBuffer(buffer), pubsub.WithReadyCheck(func(context.Context) error {
		return s.available()
	}))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect marks the store usable. There is nothing to dial.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	slog.InfoContext(ctx, "Memory backend ready", "event", "backend_connected", "version", "1.0", "backend", config.BackendMemory)
	return nil
}

// Ping fails while the store is closed or marked down.
func (s *Store) Ping(ctx context.Context) error {
	return s.available()
}

// Close ends every open stream. Data is kept so a reconnect sees it again.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.feed.Fail(errClosed)
	return nil
}

// SetDown simulates an outage: while err is non-nil every call fails with
// ErrBackendUnavailable and open streams end with ErrChannelDown. Passing nil
// restores service.
func (s *Store) SetDown(err error) {
	s.mu.Lock()
	s.down = err
	s.mu.Unlock()
	if err != nil {
		s.feed.Fail(err)
	}
}

func (s *Store) Rooms() domain.RoomRepository       { return (*roomRepo)(s) }
func (s *Store) Messages() domain.MessageRepository { return (*messageRepo)(s) }
func (s *Store) Feed() domain.MessageFeed           { return s.feed }

func (s *Store) available() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableLocked()
}

func (s *Store) availableLocked() error {
	if s.down != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, s.down)
	}
	if !s.connected {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, errClosed)
	}
	return nil
}

// timestamp returns a time strictly after the previous one so history order
// matches insert order. Must be called with s.mu held.
func (s *Store) timestamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

type roomRepo Store

func (r *roomRepo) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	s := (*Store)(r)
	id, err := idgen.NewRoomID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.availableLocked(); err != nil {
		return nil, err
	}
	room := domain.Room{ID: id, Name: name, CreatedAt: s.timestamp()}
	s.rooms[id] = room
	return &room, nil
}

func (r *roomRepo) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.availableLocked(); err != nil {
		return nil, err
	}
	room, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrRoomNotFound, id)
	}
	return &room, nil
}

type messageRepo Store

func (r *messageRepo) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.availableLocked(); err != nil {
		return nil, err
	}
	stored := s.messages[roomID]
	out := make([]domain.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// InsertMessage stores the message and publishes it before releasing the
// lock, so the live feed sees inserts in the same order as history does.
func (r *messageRepo) InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.availableLocked(); err != nil {
		return nil, err
	}
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return nil, fmt.Errorf("%w: room %q does not exist", domain.ErrWriteRejected, msg.RoomID)
	}

	stored := domain.Message{
		ID:        idgen.NewMessageID(),
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Body:      msg.Body,
		CreatedAt: s.timestamp(),
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], stored)

	if err := pubsub.PublishRoomMessage(context.WithoutCancel(ctx), s.bus, stored); err != nil {
		// The message is stored; subscribers that missed it see it on their next fetch.
		slog.WarnContext(ctx, "Failed to publish stored message", "event", "message_publish_failure", "version", "1.0", "room_id", msg.RoomID, "message_id", stored.ID, "error", err)
	}
	return &stored, nil
}
