package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/roomchat/internal/domain"
)

// RoomMessages carries every message appended to a room, keyed by room ID.
var RoomMessages = NewEvent[domain.Message]("chat.room.%s.messages")

// PublishRoomMessage announces a stored message on its room's topic.
func PublishRoomMessage(ctx context.Context, p Publisher, msg domain.Message) error {
	return Publish(ctx, p, RoomMessages, msg.RoomID, msg, msg.Sender)
}

// RoomFeed implements domain.MessageFeed on top of a Subscriber. Backends that
// have no native change feed publish their inserts with PublishRoomMessage and
// hand the bus to a RoomFeed.
type RoomFeed struct {
	sub    Subscriber
	buffer int
	ready  func(ctx context.Context) error

	mu      sync.Mutex
	streams map[*roomStream]struct{}
}

// RoomFeedOption configures a RoomFeed.
type RoomFeedOption func(*RoomFeed)

// WithStreamBuffer sets how many undelivered messages a stream holds before
// its consumer is considered too slow and the stream is dropped.
func WithStreamBuffer(n int) RoomFeedOption {
	return func(f *RoomFeed) {
		if n > 0 {
			f.buffer = n
		}
	}
}

// WithReadyCheck runs fn before every WatchRoom; an error fails the watch.
func WithReadyCheck(fn func(ctx context.Context) error) RoomFeedOption {
	return func(f *RoomFeed) {
		f.ready = fn
	}
}

// NewRoomFeed creates a feed reading from sub.
func NewRoomFeed(sub Subscriber, opts ...RoomFeedOption) *RoomFeed {
	f := &RoomFeed{
		sub:     sub,
		buffer:  64,
		streams: make(map[*roomStream]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WatchRoom subscribes to the room's topic. Messages published after it
// returns are delivered in publish order.
func (f *RoomFeed) WatchRoom(ctx context.Context, roomID string) (domain.ChangeStream, error) {
	if f.ready != nil {
		if err := f.ready(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, err)
		}
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &roomStream{
		roomID: roomID,
		out:    make(chan domain.Message, f.buffer),
		cancel: cancel,
		feed:   f,
	}

	f.mu.Lock()
	f.streams[s] = struct{}{}
	f.mu.Unlock()

	if err := f.sub.Subscribe(streamCtx, RoomMessages.Topic(roomID), s.handle); err != nil {
		f.forget(s)
		cancel()
		return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, err)
	}
	return s, nil
}

// Fail ends every open stream with err wrapped as domain.ErrChannelDown.
func (f *RoomFeed) Fail(err error) {
	f.mu.Lock()
	open := make([]*roomStream, 0, len(f.streams))
	for s := range f.streams {
		open = append(open, s)
	}
	f.mu.Unlock()

	for _, s := range open {
		s.finish(fmt.Errorf("%w: %w", domain.ErrChannelDown, err))
	}
}

// Open returns the number of streams that have not ended.
func (f *RoomFeed) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *RoomFeed) forget(s *roomStream) {
	f.mu.Lock()
	delete(f.streams, s)
	f.mu.Unlock()
}

// roomStream is the domain.ChangeStream handed out by RoomFeed.
type roomStream struct {
	roomID string
	out    chan domain.Message
	cancel context.CancelFunc
	feed   *RoomFeed

	mu     sync.Mutex
	closed bool
	err    error
}

// handle never blocks the bus: a full buffer ends the stream.
func (s *roomStream) handle(_ context.Context, msg Message) error {
	m, err := Decode(RoomMessages, msg)
	if err != nil {
		slog.Warn("Dropping undecodable room message", "event", "room_feed_decode_failure", "topic", msg.Topic, "error", err)
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	select {
	case s.out <- m:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		slog.Warn("Room stream consumer too slow, dropping stream", "event", "room_feed_overflow", "room_id", s.roomID)
		s.finish(fmt.Errorf("%w: consumer fell behind", domain.ErrChannelDown))
	}
	return nil
}

func (s *roomStream) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.cancel()
	close(s.out)
	s.mu.Unlock()

	s.feed.forget(s)
}

func (s *roomStream) Messages() <-chan domain.Message { return s.out }

func (s *roomStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *roomStream) Close() error {
	s.finish(nil)
	return nil
}
