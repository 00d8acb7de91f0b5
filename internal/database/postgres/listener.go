package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// listener holds one dedicated connection in LISTEN mode and republishes each
// notification on the bus.
type listener struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	dead bool
}

// notifyPayload is the row_to_json shape of a messages row.
type notifyPayload struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (p notifyPayload) toDomain() domain.Message {
	return domain.Message{
		ID:        p.ID,
		RoomID:    p.RoomID,
		Sender:    p.Sender,
		Body:      p.Text,
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func decodeNotification(payload string) (domain.Message, error) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.Message{}, fmt.Errorf("decode notification: %w", err)
	}
	if p.ID == "" || p.RoomID == "" {
		return domain.Message{}, errors.New("decode notification: missing id or room_id")
	}
	return p.toDomain(), nil
}

// startListener returns once LISTEN is active, so inserts committed after it
// returns are observed. onLost is called if the connection fails later.
func startListener(ctx context.Context, url string, bus pubsub.Publisher, onLost func(error)) (*listener, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("listener connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l := &listener{conn: conn, cancel: cancel, done: make(chan struct{})}
	go l.run(runCtx, bus, onLost)

	slog.DebugContext(ctx, "Postgres listener started", "event", "pg_listener_started", "version", "1.0", "channel", notifyChannel)
	return l, nil
}

func (l *listener) run(ctx context.Context, bus pubsub.Publisher, onLost func(error)) {
	defer close(l.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.conn.Close(closeCtx)
	}()

	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			l.markDead()
			if ctx.Err() != nil {
				return
			}
			slog.Error("Postgres listener lost", "event", "pg_listener_lost", "version", "1.0", "error", err)
			onLost(err)
			return
		}

		msg, err := decodeNotification(n.Payload)
		if err != nil {
			slog.Warn("Dropping undecodable notification", "event", "pg_notification_decode_failure", "version", "1.0", "error", err)
			continue
		}
		if err := pubsub.PublishRoomMessage(ctx, bus, msg); err != nil {
			slog.Warn("Failed to publish notification", "event", "pg_notification_publish_failure", "version", "1.0", "room_id", msg.RoomID, "error", err)
		}
	}
}

func (l *listener) alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.dead
}

func (l *listener) markDead() {
	l.mu.Lock()
	l.dead = true
	l.mu.Unlock()
}

// stop ends the listener and waits for its connection to close.
func (l *listener) stop() {
	l.cancel()
	<-l.done
}
