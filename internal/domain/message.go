package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// validatorInstance is shared so the validator caches struct metadata once.
var validatorInstance = validator.New()

// Message is a single immutable entry in a room's log.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage is the input of an append. Body has no length limit.
type NewMessage struct {
	RoomID string `json:"room_id" validate:"required"`
	Sender string `json:"sender" validate:"required"`
	Body   string `json:"text" validate:"required"`
}

// Normalize trims every field and puts the sender in Unicode NFC form. The
// body is only trimmed; its bytes are stored as sent.
func (m NewMessage) Normalize() NewMessage {
	return NewMessage{
		RoomID: strings.TrimSpace(m.RoomID),
		Sender: norm.NFC.String(strings.TrimSpace(m.Sender)),
		Body:   strings.TrimSpace(m.Body),
	}
}

// Validate checks the struct tags and converts the first failure into a
// ValidationError. Call it on a normalised value so whitespace-only fields fail.
func (m NewMessage) Validate() error {
	err := validatorInstance.Struct(m)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Field()
		switch field {
		case "RoomID":
			field = "room_id"
		case "Sender":
			field = "sender"
		case "Body":
			field = "text"
		}
		return NewValidationError(field, "must not be empty")
	}
	return NewValidationError("message", err.Error())
}

// MessageRepository is the backend contract for the messages collection.
type MessageRepository interface {
	// ListMessages returns every message of the room, oldest first.
	ListMessages(ctx context.Context, roomID string) ([]Message, error)

	// InsertMessage persists a validated message and returns the stored
	// record with its identifier and timestamp.
	InsertMessage(ctx context.Context, msg NewMessage) (*Message, error)
}

// ChangeStream delivers messages inserted into one room after it was opened.
type ChangeStream interface {
	// Messages is closed when the stream ends, either through Close or a failure.
	Messages() <-chan Message
	// Err returns the failure that ended the stream, or nil.
	Err() error
	// Close stops the stream and releases backend resources.
	Close() error
}

// MessageFeed opens change streams filtered by room.
type MessageFeed interface {
	WatchRoom(ctx context.Context, roomID string) (ChangeStream, error)
}
