// Package session is one participant's view of the chat: it moves between
// the start and chat phases, loads history and the live channel side by side,
// and reconciles both into a single list in which every message appears once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/livefeed"
	"golang.org/x/sync/errgroup"
)

// Phase is where the participant is in the flow.
type Phase int

const (
	// PhaseStart is the create-or-join screen.
	PhaseStart Phase = iota
	// PhaseChat is inside a room.
	PhaseChat
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseChat:
		return "chat"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Rooms creates and resolves rooms.
type Rooms interface {
	CreateRoom(ctx context.Context, name string) (*domain.Room, error)
	JoinRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ShareURL(roomID string) string
}

// History reads and appends room messages.
type History interface {
	FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error)
	Append(ctx context.Context, roomID, sender, body string) (*domain.Message, error)
}

// Live opens room subscriptions.
type Live interface {
	Subscribe(ctx context.Context, roomID string) (*livefeed.Subscription, error)
}

// Pinger checks that the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrNotInRoom is returned by operations that need the chat phase.
var ErrNotInRoom = errors.New("not in a room")

// Session holds one participant's state. It is safe for concurrent use.
type Session struct {
	rooms  Rooms
	log    History
	live   Live
	pinger Pinger
	logger *slog.Logger

	changes chan struct{}

	mu          sync.Mutex
	participant domain.Participant
	phase       Phase
	room        *domain.Room
	shareURL    string
	view        view
	gen         uint64
	cancelFetch context.CancelFunc
	sub         *livefeed.Subscription
	historyErr  error
	liveErr     error
	checkErr    error
}

// Option configures a Session.
type Option func(*Session)

// WithNickname sets the initial nickname. Blank keeps a random one.
func WithNickname(nickname string) Option {
	return func(s *Session) {
		s.participant = domain.NewParticipant(nickname)
	}
}

// WithPinger enables CheckConnection.
func WithPinger(p Pinger) Option {
	return func(s *Session) {
		s.pinger = p
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session in the start phase with a random nickname.
func New(rooms Rooms, log History, live Live, opts ...Option) *Session {
	s := &Session{
		rooms:       rooms,
		log:         log,
		live:        live,
		logger:      slog.Default(),
		changes:     make(chan struct{}, 1),
		participant: domain.NewParticipant(""),
		view:        newView(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Nickname returns the current nickname.
func (s *Session) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant.Nickname
}

// SetNickname changes the nickname used for future messages and returns the
// normalised value. Blank input picks a new random nickname.
func (s *Session) SetNickname(nickname string) string {
	s.mu.Lock()
	s.participant = domain.NewParticipant(nickname)
	n := s.participant.Nickname
	s.mu.Unlock()
	s.notify()
	return n
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Changes signals that the snapshot may have changed. Signals are coalesced.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// CheckConnection pings the backend. While the last check failed, Create and
// Join fail fast with domain.ErrBackendUnavailable.
func (s *Session) CheckConnection(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	err := s.pinger.Ping(ctx)
	if err != nil {
		err = domain.Classify(err)
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
		}
		s.logger.WarnContext(ctx, "Backend connectivity check failed", "event", "connectivity_check_failure", "error", err)
	}
	s.mu.Lock()
	s.checkErr = err
	s.mu.Unlock()
	s.notify()
	return err
}

// Create creates a room and enters it.
func (s *Session) Create(ctx context.Context, name string) (*domain.Room, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	room, err := s.rooms.CreateRoom(ctx, name)
	if err != nil {
		return nil, err
	}
	return room, s.enter(ctx, room)
}

// Join resolves a room identifier and enters the room. On failure the phase
// stays unchanged.
func (s *Session) Join(ctx context.Context, roomID string) (*domain.Room, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	room, err := s.rooms.JoinRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room, s.enter(ctx, room)
}

func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkErr
}

// enter switches to the chat phase and loads history and the live channel
// concurrently. Each result is applied on its own, so a failed subscription
// still shows history and the reverse. The returned error joins both failures.
func (s *Session) enter(ctx context.Context, room *domain.Room) error {
	prev := s.detach()
	if prev != nil {
		_ = prev.Close()
	}

	fetchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.phase = PhaseChat
	s.room = room
	s.shareURL = s.rooms.ShareURL(room.ID)
	s.view = newView()
	s.historyErr = nil
	s.liveErr = nil
	s.cancelFetch = cancel
	s.mu.Unlock()
	s.notify()

	defer cancel()

	var historyErr, liveErr error
	var g errgroup.Group
	g.Go(func() error {
		historyErr = s.loadHistory(fetchCtx, gen, room.ID)
		return nil
	})
	g.Go(func() error {
		liveErr = s.attach(ctx, gen, room.ID)
		return nil
	})
	_ = g.Wait()

	return errors.Join(historyErr, liveErr)
}

func (s *Session) loadHistory(ctx context.Context, gen uint64, roomID string) error {
	history, err := s.log.FetchHistory(ctx, roomID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil // left or switched rooms meanwhile
	}
	if err != nil {
		s.historyErr = err
	} else {
		s.view.applyHistory(history)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.WarnContext(ctx, "History fetch failed", "event", "history_fetch_failure", "room_id", roomID, "error", err)
	}
	return err
}

// attach subscribes and starts pumping live messages into the view.
func (s *Session) attach(ctx context.Context, gen uint64, roomID string) error {
	sub, err := s.live.Subscribe(ctx, roomID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		return nil
	}
	if err != nil {
		s.liveErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	if s.sub != nil {
		// A concurrent Resubscribe got there first.
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.liveErr = nil
	s.mu.Unlock()
	s.notify()

	go s.pump(gen, sub)
	return nil
}

func (s *Session) pump(gen uint64, sub *livefeed.Subscription) {
	for m := range sub.Messages() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		added := s.view.addLive(m)
		s.mu.Unlock()
		if added {
			s.notify()
		}
	}

	s.mu.Lock()
	if s.gen == gen && s.sub == sub {
		s.sub = nil
		s.liveErr = sub.Err()
	}
	s.mu.Unlock()
	s.notify()
}

// detach clears the room state and returns the subscription to close.
func (s *Session) detach() *livefeed.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	sub := s.sub
	s.sub = nil
	return sub
}

// Leave returns to the start phase. A pending history fetch is canceled and
// its result ignored; the subscription is closed before Leave returns.
func (s *Session) Leave() error {
	sub := s.detach()

	s.mu.Lock()
	s.phase = PhaseStart
	s.room = nil
	s.shareURL = ""
	s.view = newView()
	s.historyErr = nil
	s.liveErr = nil
	s.mu.Unlock()
	s.notify()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

// Send appends a message as the current nickname. The stored record is shown
// at once; its echo on the live channel is suppressed by ID.
func (s *Session) Send(ctx context.Context, body string) (*domain.Message, error) {
	s.mu.Lock()
	if s.phase != PhaseChat || s.room == nil {
		s.mu.Unlock()
		return nil, ErrNotInRoom
	}
	roomID := s.room.ID
	nickname := s.participant.Nickname
	gen := s.gen
	s.mu.Unlock()

	msg, err := s.log.Append(ctx, roomID, nickname, body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	added := s.gen == gen && s.view.addLive(*msg)
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return msg, nil
}

// Refresh refetches history and appends messages the view does not have yet.
// It is the fallback after the live channel went down.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseChat || s.room == nil {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	roomID := s.room.ID
	gen := s.gen
	s.mu.Unlock()

	history, err := s.log.FetchHistory(ctx, roomID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.historyErr = err
	} else {
		s.historyErr = nil
		s.view.merge(history)
	}
	s.mu.Unlock()
	s.notify()
	return err
}

// Resubscribe opens a new live channel when the previous one is down.
// Messages sent while it was down are not replayed; call Refresh for those.
func (s *Session) Resubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseChat || s.room == nil {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	if s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	roomID := s.room.ID
	gen := s.gen
	s.mu.Unlock()

	return s.attach(ctx, gen, roomID)
}

// Close leaves the room, if any.
func (s *Session) Close() error {
	return s.Leave()
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
