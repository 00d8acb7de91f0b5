package chatroom

import (
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

// CreateRoomRequest is the body of POST /rooms. A blank name gets the default.
type CreateRoomRequest struct {
	Name     string `json:"name" form:"name" validate:"max=200"`
	Nickname string `json:"-" form:"nickname" validate:"max=64"`
}

// JoinRoomRequest is the form of POST /join. Room may be an ID or a share link.
type JoinRoomRequest struct {
	RoomID   string `form:"room_id"`
	Nickname string `form:"nickname" validate:"max=64"`
}

// SendMessageRequest is the body of POST /rooms/:id/messages. Text is checked
// by the message log so that blank input yields the domain validation error.
type SendMessageRequest struct {
	Sender string `json:"sender" form:"-" validate:"max=64"`
	Text   string `json:"text" form:"text"`
}

// NicknameRequest is the form of POST /nickname.
type NicknameRequest struct {
	Nickname string `form:"nickname" validate:"max=64"`
}

// RoomResponse is a room as returned by the API.
type RoomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ShareURL  string    `json:"share_url"`
}

// StreamEvent is one frame of the JSON live stream.
type StreamEvent struct {
	Type     string           `json:"type"`
	Messages []domain.Message `json:"messages,omitempty"`
	Message  *domain.Message  `json:"message,omitempty"`
	Error    *ErrorResponse   `json:"error,omitempty"`
}

// Stream event types.
const (
	EventHistory     = "history"
	EventMessage     = "message"
	EventChannelDown = "channel_down"
	EventError       = "error"
)
