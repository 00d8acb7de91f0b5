package domain

import (
	"context"
	"strings"
	"time"
)

// DefaultRoomName is used when a room is created without a display name.
const DefaultRoomName = "Chat Room"

// Room is a named container that scopes a set of messages. Once issued, its
// ID never changes and always resolves.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomRepository is the backend contract for the rooms collection.
type RoomRepository interface {
	// CreateRoom inserts a room with the given name and returns it with its
	// generated identifier and creation time.
	CreateRoom(ctx context.Context, name string) (*Room, error)

	// FindRoom looks a room up by identifier. It returns ErrRoomNotFound when
	// no record matches.
	FindRoom(ctx context.Context, id string) (*Room, error)
}

// NormalizeRoomID trims a user-supplied identifier and rejects empty input.
// The identifier is otherwise opaque.
func NormalizeRoomID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", NewValidationError("room_id", "must not be empty")
	}
	return id, nil
}

// NormalizeRoomName trims a display name and substitutes DefaultRoomName for blank input.
func NormalizeRoomName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultRoomName
	}
	return name
}
