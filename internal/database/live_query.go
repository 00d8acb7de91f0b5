package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// LiveFeed implements domain.MessageFeed with one SurrealDB live query per
// watched room.
type LiveFeed struct {
	conn   DBConnection
	buffer int

	subscriptions sync.Map // map[string]*liveStream
}

var _ domain.MessageFeed = (*LiveFeed)(nil)

// NewLiveFeed creates a feed whose streams hold up to buffer undelivered
// messages before they are dropped.
func NewLiveFeed(conn DBConnection, buffer int) *LiveFeed {
	if buffer <= 0 {
		buffer = 64
	}
	return &LiveFeed{conn: conn, buffer: buffer}
}

// WatchRoom registers a live query on messages of the room. It returns once
// the server has acknowledged the query, so every message committed after
// that point is delivered.
func (f *LiveFeed) WatchRoom(ctx context.Context, roomID string) (domain.ChangeStream, error) {
	s := &liveStream{
		id:     uuid.New().String(),
		roomID: roomID,
		out:    make(chan domain.Message, f.buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		feed:   f,
	}

	query := "LIVE SELECT * FROM message WHERE room_id = $room_id"
	params := map[string]any{"room_id": roomID}

	err := f.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		lost := f.conn.Lost()

		results, err := surrealdb.Query[any](ctx, db, query, params)
		if err != nil {
			return fmt.Errorf("failed to execute live query: %w", err)
		}
		if results == nil || len(*results) == 0 {
			return fmt.Errorf("%w: live query returned no results", ErrUnexpectedResult)
		}

		liveID, err := liveQueryID((*results)[0].Result)
		if err != nil {
			return err
		}

		notifications, err := db.LiveNotifications(liveID)
		if err != nil {
			killLiveQuery(db, liveID)
			return fmt.Errorf("failed to get notification channel: %w", err)
		}

		s.db = db
		s.liveID = liveID
		s.notifications = notifications
		s.lost = lost
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to start live query", "event", "live_query_start_failure", "version", "1.0", "room_id", roomID, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, err)
	}

	f.subscriptions.Store(s.id, s)
	go s.forward()

	slog.DebugContext(ctx, "Live query established", "event", "live_query_started", "version", "1.0", "sub_id", s.id, "live_query_id", s.liveID, "room_id", roomID)
	return s, nil
}

// Active returns the number of open live queries.
func (f *LiveFeed) Active() int {
	n := 0
	f.subscriptions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll stops every open stream.
func (f *LiveFeed) CloseAll() {
	f.subscriptions.Range(func(_, v any) bool {
		_ = v.(*liveStream).Close()
		return true
	})
}

// liveQueryID extracts the live query UUID from the LIVE SELECT result.
func liveQueryID(result any) (string, error) {
	var id string
	switch v := result.(type) {
	case string:
		id = v
	case models.UUID:
		id = v.String()
	case *models.UUID:
		if v != nil {
			id = v.String()
		}
	case map[string]any:
		switch inner := v["id"].(type) {
		case string:
			id = inner
		case models.UUID:
			id = inner.String()
		}
	default:
		return "", fmt.Errorf("%w: live query result of type %T", ErrUnexpectedResult, result)
	}
	if id == "" {
		return "", fmt.Errorf("%w: live query returned empty UUID", ErrUnexpectedResult)
	}
	return id, nil
}

func killLiveQuery(db *surrealdb.DB, liveID string) {
	if db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.CloseLiveNotifications(liveID); err != nil {
		slog.Debug("Failed to close live notifications", "event", "live_query_close_failure", "version", "1.0", "error", err, "live_query_id", liveID)
	}
	if err := Execute(ctx, db, "KILL $live_query_id", map[string]any{"live_query_id": liveID}); err != nil {
		slog.Debug("Failed to kill live query", "event", "live_query_kill_failure", "version", "1.0", "error", err, "live_query_id", liveID)
	}
}

// liveStream is the domain.ChangeStream of one live query.
type liveStream struct {
	id     string
	roomID string
	feed   *LiveFeed

	db            *surrealdb.DB
	liveID        string
	notifications <-chan connection.Notification
	lost          <-chan struct{}

	out  chan domain.Message
	stop chan struct{}
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// forward relays CREATE notifications one at a time so delivery order matches
// the order the server emitted them in.
func (s *liveStream) forward() {
	defer close(s.done)
	defer close(s.out)
	defer s.feed.subscriptions.Delete(s.id)

	for {
		select {
		case <-s.stop:
			return
		case <-s.lost:
			s.fail(fmt.Errorf("%w: database connection replaced", domain.ErrChannelDown))
			return
		case n, ok := <-s.notifications:
			if !ok {
				s.fail(fmt.Errorf("%w: live notifications closed", domain.ErrChannelDown))
				return
			}
			if n.Action != connection.CreateAction {
				continue
			}
			msg, err := messageFromNotification(n.Result)
			if err != nil {
				slog.Warn("Dropping undecodable live notification", "event", "live_query_decode_failure", "version", "1.0", "sub_id", s.id, "error", err)
				continue
			}
			select {
			case s.out <- msg:
			default:
				slog.Warn("Live stream consumer too slow, dropping stream", "event", "live_query_overflow", "version", "1.0", "sub_id", s.id, "room_id", s.roomID)
				s.fail(fmt.Errorf("%w: consumer fell behind", domain.ErrChannelDown))
				return
			}
		}
	}
}

func (s *liveStream) fail(err error) {
	select {
	case <-s.stop:
		return // closed by the consumer
	default:
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	go s.release()
}

// release tears the live query down on the server. It runs once per stream.
func (s *liveStream) release() {
	s.once.Do(func() {
		close(s.stop)
		killLiveQuery(s.db, s.liveID)
	})
}

func (s *liveStream) Messages() <-chan domain.Message { return s.out }

func (s *liveStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits until no further message can be delivered.
func (s *liveStream) Close() error {
	s.release()
	<-s.done
	return nil
}
