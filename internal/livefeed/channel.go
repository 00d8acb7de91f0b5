// Package livefeed pushes newly appended messages to the participants of a
// room. A Subscription is a cancelable object with a message channel; it is
// never reconnected automatically.
package livefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nfrund/roomchat/internal/domain"
)

var errChannelClosed = errors.New("live channel closed")

// dedupWindow is how many recent message IDs a subscription remembers.
const dedupWindow = 256

// Channel opens room subscriptions on a MessageFeed and tracks them so they
// can all be closed on shutdown.
type Channel struct {
	feed   domain.MessageFeed
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// New creates a Channel. A nil logger uses slog.Default.
func New(feed domain.MessageFeed, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		feed:   feed,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe opens a subscription to the room. ctx bounds establishment only;
// the subscription stays open until it is closed or the stream drops. Every
// message appended after Subscribe returns is delivered once, in append order.
func (c *Channel) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	id, err := domain.NormalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, errChannelClosed)
	}

	stream, err := c.feed.WatchRoom(ctx, id)
	if err != nil {
		c.logger.WarnContext(ctx, "Subscription failed", "event", "subscription_failure", "room_id", id, "error", err)
		if errors.Is(err, domain.ErrChannelDown) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, err)
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		roomID:  id,
		stream:  stream,
		channel: c,
		out:     make(chan domain.Message),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		seen:    make(map[string]struct{}, dedupWindow),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrChannelDown, errChannelClosed)
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	go sub.forward()
	c.logger.DebugContext(ctx, "Subscription opened", "event", "subscription_opened", "subscription_id", sub.id, "room_id", id)
	return sub, nil
}

// Unsubscribe closes sub. It is the same as sub.Close.
func (c *Channel) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// Active returns the number of open subscriptions.
func (c *Channel) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close closes every open subscription and refuses new ones.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	open := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		open = append(open, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Channel) forget(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	c.mu.Unlock()
}
