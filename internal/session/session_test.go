package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/database/memory"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/livefeed"
	"github.com/nfrund/roomchat/internal/messagelog"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	rooms *room.Manager
	log   *messagelog.Log
	live  *livefeed.Channel
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	bus := pubsub.NewWatermillBridge()
	s.T().Cleanup(func() { _ = bus.Close() })

	s.store = memory.New(bus, nil)
	s.Require().NoError(s.store.Connect(s.ctx))
	s.T().Cleanup(func() { _ = s.store.Close(context.Background()) })

	s.rooms = room.NewManager(s.store.Rooms(), room.WithBaseURL("http://chat.test/"))
	s.log = messagelog.New(s.store.Messages(), nil)
	s.live = livefeed.New(s.store.Feed(), nil)
	s.T().Cleanup(func() { _ = s.live.Close() })
}

func (s *SessionTestSuite) newSession(opts ...Option) *Session {
	sess := New(s.rooms, s.log, s.live, opts...)
	s.T().Cleanup(func() { _ = sess.Close() })
	return sess
}

func (s *SessionTestSuite) waitFor(sess *Session, cond func(Snapshot) bool) Snapshot {
	var snap Snapshot
	s.Require().Eventually(func() bool {
		snap = sess.Snapshot()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func bodies(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func (s *SessionTestSuite) TestStartsWithRandomNickname() {
	sess := s.newSession()
	snap := sess.Snapshot()
	s.Equal(PhaseStart, snap.Phase)
	s.Regexp(`^User\d{1,4}$`, snap.Nickname)
	s.Nil(snap.Room)

	s.Equal("Bob", sess.SetNickname("  Bob "))
	s.Equal("Bob", sess.Nickname())
}

func (s *SessionTestSuite) TestCreateEntersChatWithShareURL() {
	sess := s.newSession()

	rm, err := sess.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	snap := sess.Snapshot()
	s.Equal(PhaseChat, snap.Phase)
	s.Equal(rm.ID, snap.Room.ID)
	s.True(snap.HistoryLoaded)
	s.True(snap.Live)
	s.Empty(snap.Messages)

	u, err := url.Parse(snap.ShareURL)
	s.Require().NoError(err)
	s.Equal(rm.ID, u.Query().Get(room.QueryParam))
}

func (s *SessionTestSuite) TestJoinShowsHistoryThenLive() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "first")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "second")
	s.Require().NoError(err)

	bob := s.newSession(WithNickname("Bob"))
	_, err = bob.Join(s.ctx, rm.ID)
	s.Require().NoError(err)
	s.Equal([]string{"first", "second"}, bodies(bob.Snapshot().Messages))

	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "third")
	s.Require().NoError(err)

	snap := s.waitFor(bob, func(snap Snapshot) bool { return len(snap.Messages) == 3 })
	s.Equal([]string{"first", "second", "third"}, bodies(snap.Messages))
}

func (s *SessionTestSuite) TestJoinAcceptsShareURL() {
	alice := s.newSession()
	rm, err := alice.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	bob := s.newSession()
	joined, err := bob.Join(s.ctx, alice.Snapshot().ShareURL)
	s.Require().NoError(err)
	s.Equal(rm.ID, joined.ID)
}

func (s *SessionTestSuite) TestSendIsShownOnceForSenderAndPeer() {
	alice := s.newSession(WithNickname("Alice"))
	rm, err := alice.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	bob := s.newSession(WithNickname("Bob"))
	_, err = bob.Join(s.ctx, rm.ID)
	s.Require().NoError(err)

	msg, err := alice.Send(s.ctx, "hi")
	s.Require().NoError(err)
	s.Equal("Alice", msg.Sender)

	// Shown right away for the sender.
	s.Equal([]string{"hi"}, bodies(alice.Snapshot().Messages))

	snap := s.waitFor(bob, func(snap Snapshot) bool { return len(snap.Messages) == 1 })
	s.Equal(msg.ID, snap.Messages[0].ID)

	// Give the echo time to arrive; it must not duplicate.
	_, err = bob.Send(s.ctx, "hey")
	s.Require().NoError(err)
	snap = s.waitFor(alice, func(snap Snapshot) bool { return len(snap.Messages) == 2 })
	s.Equal([]string{"hi", "hey"}, bodies(snap.Messages))
	time.Sleep(20 * time.Millisecond)
	s.Len(alice.Snapshot().Messages, 2)
}

func (s *SessionTestSuite) TestJoinUnknownRoomStaysOnStart() {
	sess := s.newSession()

	_, err := sess.Join(s.ctx, "doesnotexist")
	s.ErrorIs(err, domain.ErrRoomNotFound)
	s.Equal(PhaseStart, sess.Phase())
	s.Zero(s.live.Active())
}

func (s *SessionTestSuite) TestEmptyMessageIsRejected() {
	sess := s.newSession()
	_, err := sess.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	_, err = sess.Send(s.ctx, "   ")
	s.ErrorIs(err, domain.ErrValidation)
	s.Empty(sess.Snapshot().Messages)
}

func (s *SessionTestSuite) TestSendOutsideRoom() {
	_, err := s.newSession().Send(s.ctx, "hi")
	s.ErrorIs(err, ErrNotInRoom)
}

func (s *SessionTestSuite) TestFailedConnectivityCheckBlocksCreate() {
	sess := s.newSession(WithPinger(s.store))
	s.Require().NoError(sess.CheckConnection(s.ctx))

	s.store.SetDown(errors.New("unreachable"))
	s.ErrorIs(sess.CheckConnection(s.ctx), domain.ErrBackendUnavailable)

	_, err := sess.Create(s.ctx, "Lobby")
	s.ErrorIs(err, domain.ErrBackendUnavailable)
	s.Equal(PhaseStart, sess.Phase())
	s.Error(sess.Snapshot().BackendErr)

	s.store.SetDown(nil)
	s.Require().NoError(sess.CheckConnection(s.ctx))
	_, err = sess.Create(s.ctx, "Lobby")
	s.NoError(err)
}

func (s *SessionTestSuite) TestChannelDropKeepsChatUsable() {
	alice := s.newSession(WithNickname("Alice"))
	rm, err := alice.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	bob := s.newSession(WithNickname("Bob"))
	_, err = bob.Join(s.ctx, rm.ID)
	s.Require().NoError(err)

	s.store.SetDown(errors.New("network blip"))
	snap := s.waitFor(bob, func(snap Snapshot) bool { return snap.LiveErr != nil })
	s.ErrorIs(snap.LiveErr, domain.ErrChannelDown)
	s.False(snap.Live)
	s.Equal(PhaseChat, snap.Phase)
	s.store.SetDown(nil)

	_, err = alice.Send(s.ctx, "while you were away")
	s.Require().NoError(err)

	// Nothing arrives live; a refresh picks it up.
	s.Require().NoError(bob.Refresh(s.ctx))
	s.Equal([]string{"while you were away"}, bodies(bob.Snapshot().Messages))

	s.Require().NoError(bob.Resubscribe(s.ctx))
	s.True(bob.Snapshot().Live)
	s.Nil(bob.Snapshot().LiveErr)

	_, err = alice.Send(s.ctx, "back again")
	s.Require().NoError(err)
	snap = s.waitFor(bob, func(snap Snapshot) bool { return len(snap.Messages) == 2 })
	s.Equal([]string{"while you were away", "back again"}, bodies(snap.Messages))
}

func (s *SessionTestSuite) TestLeaveClosesSubscriptionSynchronously() {
	alice := s.newSession()
	rm, err := alice.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	bob := s.newSession()
	_, err = bob.Join(s.ctx, rm.ID)
	s.Require().NoError(err)
	s.Equal(2, s.live.Active())

	s.Require().NoError(bob.Leave())
	s.Equal(1, s.live.Active())

	snap := bob.Snapshot()
	s.Equal(PhaseStart, snap.Phase)
	s.Nil(snap.Room)
	s.Empty(snap.Messages)

	_, err = alice.Send(s.ctx, "anyone?")
	s.Require().NoError(err)
	time.Sleep(20 * time.Millisecond)
	s.Empty(bob.Snapshot().Messages)
}

func (s *SessionTestSuite) TestSwitchingRoomsDropsOldRoom() {
	first, err := s.rooms.CreateRoom(s.ctx, "One")
	s.Require().NoError(err)
	second, err := s.rooms.CreateRoom(s.ctx, "Two")
	s.Require().NoError(err)

	sess := s.newSession()
	_, err = sess.Join(s.ctx, first.ID)
	s.Require().NoError(err)
	_, err = sess.Join(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(1, s.live.Active())

	_, err = s.log.Append(s.ctx, first.ID, "x", "old room")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, second.ID, "x", "new room")
	s.Require().NoError(err)

	snap := s.waitFor(sess, func(snap Snapshot) bool { return len(snap.Messages) == 1 })
	s.Equal("new room", snap.Messages[0].Body)
	s.Equal(second.ID, snap.Room.ID)
}

func (s *SessionTestSuite) TestChangesSignalsUpdates() {
	sess := s.newSession()
	_, err := sess.Create(s.ctx, "Lobby")
	s.Require().NoError(err)

	// drain the signals from entering
	select {
	case <-sess.Changes():
	default:
	}

	_, err = sess.Send(s.ctx, "ping")
	s.Require().NoError(err)
	select {
	case <-sess.Changes():
	case <-time.After(time.Second):
		s.Fail("no change signal after send")
	}

	msgs, n := sess.MessagesSince(0)
	s.Equal(1, n)
	s.Equal([]string{"ping"}, bodies(msgs))
	msgs, _ = sess.MessagesSince(n)
	s.Empty(msgs)
}

// stubHistory fails the fetch so the live side is applied alone.
type stubHistory struct {
	*messagelog.Log
	err error
}

func (h stubHistory) FetchHistory(context.Context, string) ([]domain.Message, error) {
	return nil, h.err
}

func (s *SessionTestSuite) TestHistoryFailureStillSubscribes() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)

	fetchErr := errors.New("history down")
	sess := New(s.rooms, stubHistory{Log: s.log, err: fetchErr}, s.live)
	s.T().Cleanup(func() { _ = sess.Close() })

	_, err = sess.Join(s.ctx, rm.ID)
	s.ErrorIs(err, fetchErr)

	snap := sess.Snapshot()
	s.Equal(PhaseChat, snap.Phase)
	s.False(snap.HistoryLoaded)
	s.ErrorIs(snap.HistoryErr, fetchErr)
	s.True(snap.Live)

	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "live only")
	s.Require().NoError(err)
	snap = s.waitFor(sess, func(snap Snapshot) bool { return len(snap.Messages) == 1 })
	s.Equal("live only", snap.Messages[0].Body)
}

func TestViewReconcilesLiveBeforeHistory(t *testing.T) {
	msg := func(id string) domain.Message { return domain.Message{ID: id, Body: id} }

	v := newView()
	assert.True(t, v.addLive(msg("3")))
	assert.True(t, v.addLive(msg("4")))
	assert.False(t, v.addLive(msg("4")))

	v.applyHistory([]domain.Message{msg("1"), msg("2"), msg("3")})
	assert.Equal(t, []string{"1", "2", "3", "4"}, bodies(v.messages()))

	v.merge([]domain.Message{msg("1"), msg("2"), msg("3"), msg("4"), msg("5")})
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, bodies(v.messages()))

	assert.Equal(t, []string{"4", "5"}, bodies(v.since(3)))
	assert.Equal(t, []string{"2", "3", "4", "5"}, bodies(v.since(1)))
	assert.Empty(t, v.since(9))
}

// flakyHistory fails fetches until the error is cleared.
type flakyHistory struct {
	*messagelog.Log
	mu  sync.Mutex
	err error
}

func (h *flakyHistory) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *flakyHistory) FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error) {
	h.mu.Lock()
	err := h.err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Log.FetchHistory(ctx, roomID)
}

func (s *SessionTestSuite) TestLateHistoryAppendsAfterShownMessages() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "old1")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "old2")
	s.Require().NoError(err)

	fetchErr := errors.New("history down")
	hist := &flakyHistory{Log: s.log, err: fetchErr}
	sess := New(s.rooms, hist, s.live)
	s.T().Cleanup(func() { _ = sess.Close() })

	_, err = sess.Join(s.ctx, rm.ID)
	s.Require().ErrorIs(err, fetchErr)

	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "live1")
	s.Require().NoError(err)
	s.waitFor(sess, func(snap Snapshot) bool { return len(snap.Messages) == 1 })

	// A reader following by position has already printed live1.
	shown, n := sess.MessagesSince(0)
	s.Equal([]string{"live1"}, bodies(shown))

	hist.setErr(nil)
	s.Require().NoError(sess.Refresh(s.ctx))

	more, _ := sess.MessagesSince(n)
	printed := append(bodies(shown), bodies(more)...)
	s.Equal([]string{"live1", "old1", "old2"}, printed)
	s.Equal(printed, bodies(sess.Snapshot().Messages))
	s.True(sess.Snapshot().HistoryLoaded)
	s.Nil(sess.Snapshot().HistoryErr)
}

// gatedLive fails the first subscribe and holds later ones until the gate opens.
type gatedLive struct {
	*livefeed.Channel
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func (l *gatedLive) Subscribe(ctx context.Context, roomID string) (*livefeed.Subscription, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	l.mu.Unlock()
	if first {
		return nil, fmt.Errorf("%w: blip", domain.ErrChannelDown)
	}

	l.entered <- struct{}{}
	select {
	case <-l.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.Channel.Subscribe(ctx, roomID)
}

func (s *SessionTestSuite) TestConcurrentResubscribeKeepsOneSubscription() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)

	live := &gatedLive{Channel: s.live, entered: make(chan struct{}, 2), gate: make(chan struct{})}
	sess := New(s.rooms, s.log, live)
	s.T().Cleanup(func() { _ = sess.Close() })

	_, err = sess.Join(s.ctx, rm.ID)
	s.Require().ErrorIs(err, domain.ErrChannelDown)
	s.False(sess.Snapshot().Live)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sess.Resubscribe(s.ctx)
		}()
	}
	for range errs {
		select {
		case <-live.entered:
		case <-time.After(2 * time.Second):
			s.FailNow("resubscribe never reached the channel")
		}
	}
	close(live.gate)
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	s.True(sess.Snapshot().Live)
	s.Equal(1, s.live.Active())

	s.Require().NoError(sess.Leave())
	s.Equal(0, s.live.Active())
}

// blockingHistory holds the fetch until its context is canceled, then
// returns the real history anyway.
type blockingHistory struct {
	*messagelog.Log
	entered chan struct{}
}

func (h blockingHistory) FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error) {
	h.entered <- struct{}{}
	<-ctx.Done()
	return h.Log.FetchHistory(context.Background(), roomID)
}

func (s *SessionTestSuite) TestLeaveCancelsPendingFetch() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "old")
	s.Require().NoError(err)

	hist := blockingHistory{Log: s.log, entered: make(chan struct{}, 1)}
	sess := New(s.rooms, hist, s.live)
	s.T().Cleanup(func() { _ = sess.Close() })

	joined := make(chan error, 1)
	go func() {
		_, err := sess.Join(s.ctx, rm.ID)
		joined <- err
	}()

	select {
	case <-hist.entered:
	case <-time.After(2 * time.Second):
		s.FailNow("history fetch never started")
	}
	s.Require().NoError(sess.Leave())

	select {
	case err := <-joined:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("join still blocked after leave")
	}

	snap := sess.Snapshot()
	s.Equal(PhaseStart, snap.Phase)
	s.Nil(snap.Room)
	s.Empty(snap.Messages)
	s.False(snap.HistoryLoaded)
	s.Nil(snap.HistoryErr)
	s.Equal(0, s.live.Active())
}

func (s *SessionTestSuite) TestBlankAppendPublishesNothing() {
	rm, err := s.rooms.CreateRoom(s.ctx, "Lobby")
	s.Require().NoError(err)

	sub, err := s.live.Subscribe(s.ctx, rm.ID)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = sub.Close() })

	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "   ")
	s.Require().ErrorIs(err, domain.ErrValidation)
	_, err = s.log.Append(s.ctx, rm.ID, "Alice", "real")
	s.Require().NoError(err)

	select {
	case m := <-sub.Messages():
		s.Equal("real", m.Body)
	case <-time.After(2 * time.Second):
		s.FailNow("no live event")
	}
}

func TestViewLateMergeKeepsShownPositions(t *testing.T) {
	msg := func(id string) domain.Message { return domain.Message{ID: id, Body: id} }

	v := newView()
	assert.True(t, v.addLive(msg("3")))
	assert.False(t, v.loaded)

	v.merge([]domain.Message{msg("1"), msg("2"), msg("3")})
	assert.True(t, v.loaded)
	assert.Equal(t, []string{"3", "1", "2"}, bodies(v.messages()))
	assert.Equal(t, []string{"1", "2"}, bodies(v.since(1)))
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "start", PhaseStart.String())
	require.Equal(t, "chat", PhaseChat.String())
	require.Equal(t, "phase(7)", Phase(7).String())
}
