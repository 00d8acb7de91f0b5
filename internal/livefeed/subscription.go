package livefeed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/roomchat/internal/domain"
)

// Subscription is one open live channel to a room.
type Subscription struct {
	id      string
	roomID  string
	stream  domain.ChangeStream
	channel *Channel

	out  chan domain.Message
	stop chan struct{}
	done chan struct{}

	// seen and order form the bounded set of recently delivered IDs.
	seen  map[string]struct{}
	order []string

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// RoomID returns the room this subscription is scoped to.
func (s *Subscription) RoomID() string { return s.roomID }

// Messages delivers new messages. It is closed when the subscription ends.
func (s *Subscription) Messages() <-chan domain.Message { return s.out }

// Done is closed once the subscription has ended and Messages is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the failure that ended the subscription. It wraps
// domain.ErrChannelDown when the stream dropped and is nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. Once it returns no further message is sent.
// It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.stream.Close()
		<-s.done
	})
	return err
}

func (s *Subscription) forward() {
	defer close(s.done)
	defer close(s.out)
	defer s.channel.forget(s)

	for {
		select {
		case <-s.stop:
			return
		case m, ok := <-s.stream.Messages():
			if !ok {
				s.streamEnded()
				return
			}
			if m.RoomID != s.roomID {
				slog.Warn("Dropping message for another room", "event", "subscription_cross_room", "subscription_id", s.id, "room_id", s.roomID, "message_room_id", m.RoomID)
				continue
			}
			if !s.remember(m.ID) {
				continue
			}
			select {
			case s.out <- m:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *Subscription) streamEnded() {
	select {
	case <-s.stop:
		return
	default:
	}

	err := s.stream.Err()
	if err == nil {
		err = errors.New("stream ended")
	}
	if !errors.Is(err, domain.ErrChannelDown) {
		err = fmt.Errorf("%w: %w", domain.ErrChannelDown, err)
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	slog.Warn("Subscription dropped", "event", "subscription_dropped", "subscription_id", s.id, "room_id", s.roomID, "error", err)
}

// remember records id and reports whether it was new.
func (s *Subscription) remember(id string) bool {
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > dedupWindow {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return true
}
