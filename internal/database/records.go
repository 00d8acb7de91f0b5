package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	roomTable    = "room"
	messageTable = "message"
)

// roomRecord is the stored shape of a room.
type roomRecord struct {
	ID        *models.RecordID       `json:"id,omitempty"`
	Name      string                 `json:"name"`
	CreatedAt *models.CustomDateTime `json:"created_at,omitempty"`
}

func (r roomRecord) toDomain() *domain.Room {
	return &domain.Room{
		ID:        recordKey(r.ID),
		Name:      r.Name,
		CreatedAt: dateTime(r.CreatedAt),
	}
}

// messageRecord is the stored shape of a message. The body is stored as
// "text", matching the JSON name used everywhere else.
type messageRecord struct {
	ID        *models.RecordID       `json:"id,omitempty"`
	RoomID    string                 `json:"room_id"`
	Sender    string                 `json:"sender"`
	Text      string                 `json:"text"`
	CreatedAt *models.CustomDateTime `json:"created_at,omitempty"`
}

func (r messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        recordKey(r.ID),
		RoomID:    r.RoomID,
		Sender:    r.Sender,
		Body:      r.Text,
		CreatedAt: dateTime(r.CreatedAt),
	}
}

// recordKey returns the key part of a record id, "room:abc" becomes "abc".
func recordKey(id *models.RecordID) string {
	if id == nil || id.ID == nil {
		return ""
	}
	if s, ok := id.ID.(string); ok {
		return s
	}
	return fmt.Sprint(id.ID)
}

func dateTime(t *models.CustomDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time.UTC()
}

// messageFromNotification decodes the loosely typed result of a live query
// notification. The driver hands it over as a generic map.
func messageFromNotification(result any) (domain.Message, error) {
	switch v := result.(type) {
	case map[string]any:
		msg := domain.Message{
			ID:        anyKey(v["id"]),
			RoomID:    anyString(v["room_id"]),
			Sender:    anyString(v["sender"]),
			Body:      anyString(v["text"]),
			CreatedAt: anyTime(v["created_at"]),
		}
		if msg.ID == "" || msg.RoomID == "" {
			return domain.Message{}, fmt.Errorf("%w: notification without id or room_id", ErrUnexpectedResult)
		}
		return msg, nil
	case messageRecord:
		return v.toDomain(), nil
	case *messageRecord:
		return v.toDomain(), nil
	default:
		return domain.Message{}, fmt.Errorf("%w: notification result of type %T", ErrUnexpectedResult, result)
	}
}

func anyKey(v any) string {
	switch id := v.(type) {
	case models.RecordID:
		return recordKey(&id)
	case *models.RecordID:
		return recordKey(id)
	case string:
		// "message:01H..." when the driver could not decode the record id
		if _, key, ok := strings.Cut(id, ":"); ok {
			return strings.Trim(key, "⟨⟩`")
		}
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func anyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func anyTime(v any) time.Time {
	switch t := v.(type) {
	case models.CustomDateTime:
		return t.Time.UTC()
	case *models.CustomDateTime:
		return dateTime(t)
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
