package room

import (
	"context"
	"errors"
	"testing"

	"github.com/nfrund/roomchat/internal/database/memory"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, opts ...Option) (*Manager, *memory.Store) {
	t.Helper()
	bus := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bus.Close() })
	store := memory.New(bus, nil)
	require.NoError(t, store.Connect(context.Background()))
	return NewManager(store.Rooms(), opts...), store
}

func TestCreateRoomDefaultsName(t *testing.T) {
	m, _ := newManager(t)

	room, err := m.CreateRoom(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRoomName, room.Name)
	assert.NotEmpty(t, room.ID)

	named, err := m.CreateRoom(context.Background(), "  Book club ")
	require.NoError(t, err)
	assert.Equal(t, "Book club", named.Name)
	assert.NotEqual(t, room.ID, named.ID)
}

func TestJoinRoom(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	created, err := m.CreateRoom(ctx, "Lobby")
	require.NoError(t, err)

	t.Run("trims identifier", func(t *testing.T) {
		room, err := m.JoinRoom(ctx, "  "+created.ID+"\n")
		require.NoError(t, err)
		assert.Equal(t, created.ID, room.ID)
		assert.Equal(t, "Lobby", room.Name)
	})

	t.Run("share link", func(t *testing.T) {
		room, err := m.JoinRoom(ctx, m.ShareURL(created.ID))
		require.NoError(t, err)
		assert.Equal(t, created.ID, room.ID)
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, err := m.JoinRoom(ctx, "  ")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := m.JoinRoom(ctx, "abc123")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestBackendDownIsClassified(t *testing.T) {
	m, store := newManager(t)
	store.SetDown(errors.New("offline"))

	_, err := m.CreateRoom(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	_, err = m.JoinRoom(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestShareURLRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "plain", base: "https://chat.example.com/", want: "https://chat.example.com/?room=abc"},
		{name: "keeps query", base: "https://chat.example.com/app?theme=dark", want: "https://chat.example.com/app?room=abc&theme=dark"},
		{name: "replaces room", base: "https://chat.example.com/?room=old", want: "https://chat.example.com/?room=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(nil, WithBaseURL(tt.base))
			link := m.ShareURL("abc")
			assert.Equal(t, tt.want, link)

			id, ok := RoomFromURL(link)
			assert.True(t, ok)
			assert.Equal(t, "abc", id)
		})
	}
}

func TestRoomFromURL(t *testing.T) {
	id, ok := RoomFromURL("http://localhost:8080/?room=a%2Fb")
	assert.True(t, ok)
	assert.Equal(t, "a/b", id)

	id, ok = RoomFromURL("  xyz  ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", id)

	_, ok = RoomFromURL("http://localhost:8080/")
	assert.False(t, ok)

	_, ok = RoomFromURL("")
	assert.False(t, ok)
}
