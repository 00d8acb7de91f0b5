package session

import "github.com/nfrund/roomchat/internal/domain"

// Snapshot is a copy of the session state at one point in time.
type Snapshot struct {
	Phase    Phase
	Nickname string
	Room     *domain.Room
	ShareURL string

	// Messages is history followed by live-only messages, unique by ID.
	Messages []domain.Message

	HistoryLoaded bool
	HistoryErr    error
	// Live reports whether the live channel is open.
	Live    bool
	LiveErr error
	// BackendErr is the result of the last connectivity check.
	BackendErr error
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:         s.phase,
		Nickname:      s.participant.Nickname,
		ShareURL:      s.shareURL,
		Messages:      s.view.messages(),
		HistoryLoaded: s.view.loaded,
		HistoryErr:    s.historyErr,
		Live:          s.sub != nil,
		LiveErr:       s.liveErr,
		BackendErr:    s.checkErr,
	}
	if s.room != nil {
		r := *s.room
		snap.Room = &r
	}
	return snap
}

// MessagesSince returns the messages from position i of the view on, along
// with the new length. Once Create or Join has returned, the view only grows
// at the end, so a reader can follow it by position.
func (s *Session) MessagesSince(i int) ([]domain.Message, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.since(i), s.view.len()
}

// LiveState reports whether the live channel is open and, if it is down,
// why. It is cheaper than Snapshot for callers polling after each change.
func (s *Session) LiveState() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil, s.liveErr
}
