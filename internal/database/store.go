package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
)

// Store is the SurrealDB backend. It owns the managed connection and hands
// out the room, message and live feed views over it.
type Store struct {
	conn     DBConnection
	rooms    *RoomStore
	messages *MessageStore
	feed     *LiveFeed
}

var _ domain.Backend = (*Store)(nil)

// NewStore creates an unconnected SurrealDB backend.
func NewStore(cfg config.Provider) *Store {
	return newStore(NewConnection(cfg), cfg.GetSubscriptionBuffer())
}

func newStore(conn DBConnection, buffer int) *Store {
	return &Store{
		conn:     conn,
		rooms:    NewRoomStore(conn),
		messages: NewMessageStore(conn),
		feed:     NewLiveFeed(conn, buffer),
	}
}

// Connect dials the database, applies the schema and starts health monitoring.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if err := ApplySchema(ctx, s.conn); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	s.conn.StartMonitoring()
	slog.InfoContext(ctx, "SurrealDB backend connected", "event", "backend_connected", "version", "1.0", "backend", config.BackendSurreal, "namespace", s.conn.GetDBNs(), "database", s.conn.GetDBDb())
	return nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Close ends every live stream and closes the connection.
func (s *Store) Close(ctx context.Context) error {
	s.feed.CloseAll()
	return s.conn.Close(ctx)
}

func (s *Store) Rooms() domain.RoomRepository       { return s.rooms }
func (s *Store) Messages() domain.MessageRepository { return s.messages }
func (s *Store) Feed() domain.MessageFeed           { return s.feed }
