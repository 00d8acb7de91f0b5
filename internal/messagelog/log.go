// Package messagelog is the append-only, per-room message history.
package messagelog

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nfrund/roomchat/internal/domain"
)

// Log reads and appends room messages through a MessageRepository.
type Log struct {
	messages domain.MessageRepository
	logger   *slog.Logger
}

// New creates a Log. A nil logger uses slog.Default.
func New(messages domain.MessageRepository, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{messages: messages, logger: logger}
}

// FetchHistory returns every message of the room, oldest first. A room with
// no messages yields an empty, non-nil slice.
func (l *Log) FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error) {
	id, err := domain.NormalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	history, err := l.messages.ListMessages(ctx, id)
	if err != nil {
		return nil, domain.Classify(err)
	}
	if history == nil {
		history = []domain.Message{}
	}
	// Backends already order; this keeps ties in the order they returned.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	return history, nil
}

// Append stores a message and returns the persisted record. Input is trimmed
// and validated first; a blank body never reaches the backend.
func (l *Log) Append(ctx context.Context, roomID, sender, body string) (*domain.Message, error) {
	msg := domain.NewMessage{RoomID: roomID, Sender: sender, Body: body}.Normalize()
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored, err := l.messages.InsertMessage(ctx, msg)
	if err != nil {
		l.logger.WarnContext(ctx, "Append failed", "event", "message_append_failure", "room_id", msg.RoomID, "error", err)
		return nil, domain.Classify(err)
	}
	l.logger.DebugContext(ctx, "Message appended", "event", "message_appended", "room_id", stored.RoomID, "message_id", stored.ID)
	return stored, nil
}
