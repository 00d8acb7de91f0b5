package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	fk := &pgconn.PgError{Code: "23503", Message: "insert or update on table \"messages\" violates foreign key constraint"}
	assert.ErrorIs(t, classify(fk), domain.ErrWriteRejected)

	assert.ErrorIs(t, classify(errors.New("dial tcp: connection refused")), domain.ErrBackendUnavailable)
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}

func TestDecodeNotification(t *testing.T) {
	msg, err := decodeNotification(`{"id":"01HX","room_id":"abc","sender":"Alice","text":"hi","created_at":"2024-05-01T12:00:00.123456+00:00"}`)
	require.NoError(t, err)
	assert.Equal(t, "01HX", msg.ID)
	assert.Equal(t, "abc", msg.RoomID)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, 2024, msg.CreatedAt.Year())

	_, err = decodeNotification(`{"id":""}`)
	assert.Error(t, err)
	_, err = decodeNotification(`not json`)
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()
	s := New(bus, &config.Config{PostgresURL: "postgres://localhost:1/none"})

	_, err := s.Rooms().FindRoom(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrBackendUnavailable)
	_, err = s.Feed().WatchRoom(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrChannelDown)
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set, skipping Postgres integration test")
	}

	bus := pubsub.NewWatermillBridge()
	s := New(bus, &config.Config{PostgresURL: url, SubscriptionBuffer: 16})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	t.Cleanup(func() {
		if pool, err := s.getPool(); err == nil {
			_, _ = pool.Exec(context.Background(), "TRUNCATE messages, rooms")
		}
		_ = s.Close(context.Background())
		_ = bus.Close()
	})
	return s
}

func TestPostgresStore(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	room, err := s.Rooms().CreateRoom(ctx, "Lobby")
	require.NoError(t, err)
	found, err := s.Rooms().FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lobby", found.Name)

	_, err = s.Rooms().FindRoom(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	stream, err := s.Feed().WatchRoom(ctx, room.ID)
	require.NoError(t, err)
	defer stream.Close()

	sent, err := s.Messages().InsertMessage(ctx, domain.NewMessage{RoomID: room.ID, Sender: "Alice", Body: "hello"})
	require.NoError(t, err)

	select {
	case got := <-stream.Messages():
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "hello", got.Body)
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}

	history, err := s.Messages().ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)

	_, err = s.Messages().InsertMessage(ctx, domain.NewMessage{RoomID: "missing", Sender: "Alice", Body: "x"})
	assert.ErrorIs(t, err, domain.ErrWriteRejected)
}
