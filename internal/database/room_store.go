package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/idgen"
	"github.com/surrealdb/surrealdb.go"
)

// RoomStore is the SurrealDB implementation of domain.RoomRepository.
type RoomStore struct {
	conn DBConnection
}

var _ domain.RoomRepository = (*RoomStore)(nil)

// NewRoomStore creates a RoomStore on top of a managed connection.
func NewRoomStore(conn DBConnection) *RoomStore {
	return &RoomStore{conn: conn}
}

// CreateRoom inserts a room record keyed by a freshly generated room ID.
func (s *RoomStore) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.GetDBExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	id, err := idgen.NewRoomID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
	}

	query := "CREATE type::thing($tb, $id) SET name = $name, created_at = time::now()"
	params := map[string]any{
		"tb":   roomTable,
		"id":   id,
		"name": name,
	}

	var created *roomRecord
	err = s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var qerr error
		created, qerr = QueryOne[roomRecord](ctx, db, query, params)
		return qerr
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create room", "event", "room_create_failure", "version", "1.0", "error", err)
		return nil, classifyWrite(err)
	}
	if created == nil {
		return nil, fmt.Errorf("%w: %w: create returned no record", domain.ErrWriteRejected, ErrUnexpectedResult)
	}

	room := created.toDomain()
	if room.ID == "" {
		room.ID = id
	}
	return room, nil
}

// FindRoom selects the room record with the given key.
func (s *RoomStore) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.GetDBQueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	query := "SELECT * FROM type::thing($tb, $id)"
	params := map[string]any{
		"tb": roomTable,
		"id": id,
	}

	var found *roomRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var qerr error
		found, qerr = QueryOne[roomRecord](ctx, db, query, params)
		return qerr
	})
	if err != nil {
		return nil, classifyRead(err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrRoomNotFound, id)
	}
	return found.toDomain(), nil
}
