package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/idgen"
	"github.com/surrealdb/surrealdb.go"
)

// MessageStore is the SurrealDB implementation of domain.MessageRepository.
type MessageStore struct {
	conn DBConnection
}

var _ domain.MessageRepository = (*MessageStore)(nil)

// NewMessageStore creates a MessageStore on top of a managed connection.
func NewMessageStore(conn DBConnection) *MessageStore {
	return &MessageStore{conn: conn}
}

// ListMessages returns the room's messages oldest first. Messages created in
// the same instant are ordered by their ULID key, which is time sortable.
func (s *MessageStore) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.GetDBQueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	query := "SELECT * FROM message WHERE room_id = $room_id ORDER BY created_at ASC, id ASC"
	params := map[string]any{"room_id": roomID}

	var rows []messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var qerr error
		rows, qerr = Query[messageRecord](ctx, db, query, params)
		return qerr
	})
	if err != nil {
		return nil, classifyRead(err)
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toDomain())
	}
	return messages, nil
}

// InsertMessage creates a message record. The room must exist; the check and
// the insert run in one transaction so a missing room is rejected atomically.
func (s *MessageStore) InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.GetDBExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	query := `BEGIN TRANSACTION;
IF record::exists(type::thing('room', $room_id)) = false { THROW "room does not exist" };
CREATE type::thing('message', $id) SET room_id = $room_id, sender = $sender, text = $text, created_at = time::now();
COMMIT TRANSACTION;`
	params := map[string]any{
		"id":      idgen.NewMessageID(),
		"room_id": msg.RoomID,
		"sender":  msg.Sender,
		"text":    msg.Body,
	}

	var created *messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		results, qerr := surrealdb.Query[[]messageRecord](ctx, db, query, params)
		if qerr != nil {
			return NewDBError(fmt.Errorf("%w: %w", ErrQueryFailed, qerr), "surrealdb").WithQuery(query).WithParams(params)
		}
		// The CREATE result is the last statement that returned rows.
		for i := len(*results) - 1; i >= 0; i-- {
			if rows := (*results)[i].Result; len(rows) > 0 {
				created = &rows[0]
				break
			}
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Message insert failed", "event", "message_insert_failure", "version", "1.0", "room_id", msg.RoomID, "error", err)
		return nil, classifyWrite(err)
	}
	if created == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrWriteRejected, errNoRows)
	}

	stored := created.toDomain()
	return &stored, nil
}
