// Package idgen generates identifiers for backends that do not assign their own.
package idgen

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

const (
	// RoomIDSize is the length of generated room identifiers.
	RoomIDSize = 16
	// RoomIDAlphabet keeps room identifiers safe to paste into a URL or terminal.
	RoomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewRoomID returns a random NanoID suitable for sharing in a link.
func NewRoomID() (string, error) {
	id, err := gonanoid.Generate(RoomIDAlphabet, RoomIDSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate room id: %w", err)
	}
	return id, nil
}

// NewMessageID returns a monotonic ULID. IDs generated by one process sort in
// generation order, which breaks timestamp ties in message history.
func NewMessageID() string {
	return ulid.Make().String()
}
