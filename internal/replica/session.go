package replica

import (
	"sort"
	"sync"

	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/wire"
)

// Session is the in-memory state of one open group. mu serializes every
// mutation of that state together with the matching cache write; it is never
// held while waiting on the graph.
type Session struct {
	mu sync.Mutex

	group   store.Group
	members map[string]store.Member
	votes   map[string]wire.VoteRecord

	// departed maps a member that left to its leave timestamp.
	departed map[string]int64

	// The view holds the loaded window of the focused group, ordered by
	// (timestamp, row id). cursor is the smallest loaded row id, or 0 once
	// history is exhausted.
	focused bool
	loaded  bool
	view    []store.Message
	inView  map[string]struct{}
	cursor  int64

	settle *settleDetector
	phase  *status.Machine
}

func newSession(g store.Group, phase *status.Machine) *Session {
	return &Session{
		group:    g,
		members:  make(map[string]store.Member),
		votes:    make(map[string]wire.VoteRecord),
		departed: make(map[string]int64),
		inView:   make(map[string]struct{}),
		phase:    phase,
	}
}

func viewLess(a, b store.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}

// addToViewLocked inserts m at its ordered position unless its msgId is
// already present. It reports whether the view changed.
func (s *Session) addToViewLocked(m store.Message) bool {
	if _, ok := s.inView[m.MsgID]; ok {
		return false
	}
	i := sort.Search(len(s.view), func(i int) bool { return viewLess(m, s.view[i]) })
	s.view = append(s.view, store.Message{})
	copy(s.view[i+1:], s.view[i:])
	s.view[i] = m
	s.inView[m.MsgID] = struct{}{}
	return true
}

func (s *Session) removeFromViewLocked(msgID string) {
	if _, ok := s.inView[msgID]; !ok {
		return
	}
	delete(s.inView, msgID)
	for i := range s.view {
		if s.view[i].MsgID == msgID {
			s.view = append(s.view[:i], s.view[i+1:]...)
			return
		}
	}
}

func (s *Session) markSentInViewLocked(msgID string) {
	for i := range s.view {
		if s.view[i].MsgID == msgID {
			s.view[i].Status = store.StatusSent
			return
		}
	}
}

func (s *Session) resetViewLocked() {
	s.view = nil
	s.inView = make(map[string]struct{})
	s.cursor = 0
}

func (s *Session) viewCopyLocked() []store.Message {
	return append([]store.Message(nil), s.view...)
}

// canClear is the unanimity predicate: every current member has an agreed
// vote, and there is at least one member. Votes of non-members do not count.
func canClear(members map[string]store.Member, votes map[string]wire.VoteRecord) (agreed int, ok bool) {
	for pub := range members {
		if v, voted := votes[pub]; voted && v.Agreed {
			agreed++
		}
	}
	return agreed, len(members) > 0 && agreed == len(members)
}
