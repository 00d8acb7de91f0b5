package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Event[T] is a family of topics carrying JSON payloads of type T. The
// pattern contains a single %s which is filled with a key (e.g. a room ID).
type Event[T any] struct {
	pattern string
}

// NewEvent creates a typed topic family. It panics when the pattern does not
// contain exactly one %s, since events are declared at package level.
func NewEvent[T any](pattern string) Event[T] {
	if strings.Count(pattern, "%s") != 1 {
		panic(fmt.Sprintf("pubsub: event pattern %q must contain exactly one %%s", pattern))
	}
	return Event[T]{pattern: pattern}
}

// Topic returns the concrete topic for key.
func (e Event[T]) Topic(key string) string {
	return fmt.Sprintf(e.pattern, key)
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], key string, payload T, userID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Topic(key), err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.Topic(key),
		UserID:  userID,
		Payload: data,
	})
}

// Decode unmarshals a message published with Publish for the same event.
func Decode[T any](event Event[T], msg Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s payload: %w", msg.Topic, err)
	}
	return out, nil
}
