package session

import (
	"slices"

	"github.com/nfrund/roomchat/internal/domain"
)

// view is the reconciled message list: fetched history first, then live
// messages the history did not contain. IDs are unique across both.
type view struct {
	history []domain.Message
	live    []domain.Message
	ids     map[string]struct{}
	loaded  bool
}

func newView() view {
	return view{ids: make(map[string]struct{})}
}

// applyHistory installs the first fetch. Live messages that arrived before it
// and are part of it move into the history position. Only used while entering
// a room, before anyone reads the view by position.
func (v *view) applyHistory(history []domain.Message) {
	v.history = v.history[:0]
	v.ids = make(map[string]struct{}, len(history)+len(v.live))
	for _, m := range history {
		if _, dup := v.ids[m.ID]; dup {
			continue
		}
		v.ids[m.ID] = struct{}{}
		v.history = append(v.history, m)
	}
	live := v.live[:0]
	for _, m := range v.live {
		if _, dup := v.ids[m.ID]; dup {
			continue
		}
		v.ids[m.ID] = struct{}{}
		live = append(live, m)
	}
	v.live = live
	v.loaded = true
}

// addLive appends m unless its ID is already shown.
func (v *view) addLive(m domain.Message) bool {
	if _, dup := v.ids[m.ID]; dup {
		return false
	}
	v.ids[m.ID] = struct{}{}
	v.live = append(v.live, m)
	return true
}

// merge appends fetched messages that are not shown yet, keeping their order.
// Positions already handed out never move, so a late first fetch lands after
// the live messages shown before it.
func (v *view) merge(fetched []domain.Message) {
	for _, m := range fetched {
		v.addLive(m)
	}
	v.loaded = true
}

func (v *view) len() int {
	return len(v.history) + len(v.live)
}

// since returns a copy of the messages from position i on.
func (v *view) since(i int) []domain.Message {
	if i < 0 {
		i = 0
	}
	all := v.len()
	if i >= all {
		return []domain.Message{}
	}
	out := make([]domain.Message, 0, all-i)
	if i < len(v.history) {
		out = append(out, v.history[i:]...)
		i = 0
	} else {
		i -= len(v.history)
	}
	return append(out, v.live[i:]...)
}

func (v *view) messages() []domain.Message {
	return slices.Concat(v.history, v.live)
}
