// Package room creates rooms, resolves room identifiers and builds the links
// participants share to invite others.
package room

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
)

// QueryParam is the URL query parameter that carries a room identifier.
const QueryParam = "room"

// Manager implements room creation and lookup on top of a RoomRepository.
type Manager struct {
	rooms   domain.RoomRepository
	baseURL string
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseURL sets the application URL that share links point to.
func WithBaseURL(base string) Option {
	return func(m *Manager) {
		m.baseURL = base
	}
}

// WithLogger sets the logger used for room lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager.
func NewManager(rooms domain.RoomRepository, opts ...Option) *Manager {
	m := &Manager{
		rooms:   rooms,
		baseURL: "http://localhost:8080/",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom persists a new room. A blank name becomes domain.DefaultRoomName.
func (m *Manager) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	room, err := m.rooms.CreateRoom(ctx, domain.NormalizeRoomName(name))
	if err != nil {
		m.logger.WarnContext(ctx, "Room creation failed", "event", "room_create_failure", "error", err)
		return nil, domain.Classify(err)
	}
	m.logger.InfoContext(ctx, "Room created", "event", "room_created", "room_id", room.ID, "name", room.Name)
	return room, nil
}

// JoinRoom resolves a user-supplied identifier, which may also be a share
// link. Empty input fails with a validation error without contacting the
// backend.
func (m *Manager) JoinRoom(ctx context.Context, raw string) (*domain.Room, error) {
	id, err := domain.NormalizeRoomID(raw)
	if err != nil {
		return nil, err
	}
	if fromURL, ok := RoomFromURL(id); ok {
		id = fromURL
	}
	room, err := m.rooms.FindRoom(ctx, id)
	if err != nil {
		return nil, domain.Classify(err)
	}
	m.logger.DebugContext(ctx, "Room joined", "event", "room_joined", "room_id", room.ID)
	return room, nil
}

// ShareURL returns the base URL with the room identifier attached as a query
// parameter. Other query parameters of the base URL are kept.
func (m *Manager) ShareURL(roomID string) string {
	return ShareURL(m.baseURL, roomID)
}

// ShareURL builds a share link from an arbitrary base URL.
func ShareURL(base, roomID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + QueryParam + "=" + url.QueryEscape(roomID)
	}
	q := u.Query()
	q.Set(QueryParam, roomID)
	u.RawQuery = q.Encode()
	return u.String()
}

// RoomFromURL extracts the room identifier from a share link. It also accepts
// a bare identifier, which is returned as is.
func RoomFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" && u.Host == "" && u.RawQuery == "" {
		id, err := domain.NormalizeRoomID(raw)
		return id, err == nil
	}
	id, err := domain.NormalizeRoomID(u.Query().Get(QueryParam))
	return id, err == nil
}
