// Package postgres is a PostgreSQL backend. Inserts fire a trigger that
// NOTIFYs the row; one listener connection turns notifications into bus
// messages that feed the room streams.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/idgen"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// Store implements domain.Backend on PostgreSQL.
type Store struct {
	url  string
	bus  pubsub.Bus
	feed *pubsub.RoomFeed

	mu       sync.RWMutex
	pool     *pgxpool.Pool
	listener *listener
}

var _ domain.Backend = (*Store)(nil)

// New creates an unconnected Store. The bus is owned by the caller.
func New(bus pubsub.Bus, cfg config.Provider) *Store {
	s := &Store{url: cfg.GetPostgresURL(), bus: bus}
	s.feed = pubsub.NewRoomFeed(bus,
		pubsub.WithStreamBuffer(cfg.GetSubscriptionBuffer()),
		pubsub.WithReadyCheck(s.ensureListener),
	)
	return s
}

// Connect opens the pool, applies the schema and starts the listener.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, s.url)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return fmt.Errorf("%w: apply schema: %w", domain.ErrBackendUnavailable, err)
	}
	s.pool = pool

	if err := s.startListenerLocked(ctx); err != nil {
		pool.Close()
		s.pool = nil
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	slog.InfoContext(ctx, "Postgres backend connected", "event", "backend_connected", "version", "1.0", "backend", config.BackendPostgres)
	return nil
}

// Ping checks the pool and the listener.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Close stops the listener, ends open streams and closes the pool.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		s.listener.stop()
		s.listener = nil
	}
	s.feed.Fail(errors.New("postgres backend closed"))
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *Store) Rooms() domain.RoomRepository       { return (*roomRepo)(s) }
func (s *Store) Messages() domain.MessageRepository { return (*messageRepo)(s) }
func (s *Store) Feed() domain.MessageFeed           { return s.feed }

func (s *Store) getPool() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, fmt.Errorf("%w: postgres not connected", domain.ErrBackendUnavailable)
	}
	return s.pool, nil
}

// ensureListener restarts the listener if it has died since the last watch.
func (s *Store) ensureListener(ctx context.Context) error {
	s.mu.RLock()
	l := s.listener
	s.mu.RUnlock()
	if l != nil && l.alive() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return fmt.Errorf("%w: postgres not connected", domain.ErrBackendUnavailable)
	}
	if s.listener != nil && s.listener.alive() {
		return nil
	}
	return s.startListenerLocked(ctx)
}

func (s *Store) startListenerLocked(ctx context.Context) error {
	l, err := startListener(ctx, s.url, s.bus, s.feed.Fail)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// classify maps pgx errors into the domain taxonomy. Any error the server
// answered with is a rejection; everything else is a reachability problem.
func classify(err error) error {
	if err == nil || domain.IsClassified(err) || errors.Is(err, context.Canceled) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (%s)", domain.ErrWriteRejected, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
}

type roomRepo Store

func (r *roomRepo) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	pool, err := (*Store)(r).getPool()
	if err != nil {
		return nil, err
	}
	id, err := idgen.NewRoomID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
	}

	var room domain.Room
	err = pool.QueryRow(ctx,
		`INSERT INTO rooms (id, name) VALUES ($1, $2) RETURNING id, name, created_at`,
		id, name,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	return &room, nil
}

func (r *roomRepo) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	pool, err := (*Store)(r).getPool()
	if err != nil {
		return nil, err
	}

	var room domain.Room
	err = pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", domain.ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	return &room, nil
}

// messageRow maps a messages row for pgx.RowToStructByName.
type messageRow struct {
	ID        string `db:"id"`
	RoomID    string `db:"room_id"`
	Sender    string `db:"sender"`
	Text      string `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

func (m messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Body:      m.Text,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type messageRepo Store

func (r *messageRepo) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	pool, err := (*Store)(r).getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT id, room_id, sender, text, created_at FROM messages
		 WHERE room_id = $1 ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, rec.toDomain())
	}
	return messages, nil
}

// InsertMessage relies on the foreign key to reject unknown rooms.
func (r *messageRepo) InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	pool, err := (*Store)(r).getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`INSERT INTO messages (id, room_id, sender, text) VALUES ($1, $2, $3, $4)
		 RETURNING id, room_id, sender, text, created_at`,
		idgen.NewMessageID(), msg.RoomID, msg.Sender, msg.Body)
	if err != nil {
		return nil, classify(err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, classify(err)
	}
	stored := rec.toDomain()
	return &stored, nil
}
