package pubsub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridgeDeliversInOrder(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	err := bridge.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(msg.Payload))
		if len(got) == 20 {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "test.topic", Payload: []byte(fmt.Sprint(i))}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, p := range got {
		assert.Equal(t, fmt.Sprint(i), p)
	}
}

func TestWatermillBridgeMapsMetadata(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "meta.topic", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "meta.topic",
		UserID:   "Alice",
		Payload:  []byte("hi"),
		Metadata: map[string]string{"request_id": "req-1"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "meta.topic", msg.Topic)
		assert.Equal(t, "Alice", msg.UserID)
		assert.Equal(t, "req-1", msg.Metadata["request_id"])
		assert.Equal(t, "Alice", msg.Metadata[metaKeyUserID])
		_, hasTopic := msg.Metadata[metaKeyTopic]
		assert.False(t, hasTopic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestWatermillBridgeTopicsAreIsolated(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 4)
	require.NoError(t, bridge.Subscribe(ctx, "room.a", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.b", Payload: []byte("b")}))
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "room.a", Payload: []byte("a")}))

	select {
	case msg := <-received:
		assert.Equal(t, "a", string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	assert.Empty(t, received)
}
