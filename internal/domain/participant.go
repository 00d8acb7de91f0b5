package domain

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Participant is the local, unauthenticated identity of a chat session.
// It is never persisted; two participants may share a nickname.
type Participant struct {
	Nickname string
}

// RandomNickname returns a throwaway tag of the form "User1234".
func RandomNickname() string {
	return "User" + strconv.Itoa(rand.IntN(10000))
}

// NormalizeNickname trims and NFC-normalises a nickname. Blank input yields a
// fresh random nickname.
func NormalizeNickname(nickname string) string {
	nickname = norm.NFC.String(strings.TrimSpace(nickname))
	if nickname == "" {
		return RandomNickname()
	}
	return nickname
}

// NewParticipant creates a participant with a normalised nickname.
func NewParticipant(nickname string) Participant {
	return Participant{Nickname: NormalizeNickname(nickname)}
}
