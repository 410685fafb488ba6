package replica

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/wire"
)

// startMembership overwrites the local presence record and subscribes to the
// member set of the group.
func (e *Engine) startMembership(ctx context.Context, s *Session) (graph.Cancel, error) {
	pub := s.group.Pub
	rec := wire.MemberRecord{Alias: e.self.Alias, JoinedAt: s.group.JoinedAt}
	e.graph.Put(ctx, graph.Member(pub, e.self.Pub), rec.Node(), e.logAck("presence", pub))

	cancel, err := e.graph.Map(ctx, graph.Members(pub), func(ev graph.Event) { e.onMember(s, ev) })
	if err != nil {
		return nil, fmt.Errorf("subscribe members: %w", err)
	}
	return cancel, nil
}

func (e *Engine) onMember(s *Session, ev graph.Event) {
	if ev.Tombstone() {
		e.removeMember(s, ev.Key, "tombstone")
		return
	}

	rec, err := wire.DecodeMember(ev.Value)
	if err != nil {
		e.logger.Debug("dropping member record", zap.String("group", s.group.Pub), zap.String("member", ev.Key), zap.Error(err))
		return
	}

	m := store.Member{
		GroupPub:  s.group.Pub,
		MemberPub: ev.Key,
		Alias:     rec.Alias,
		JoinedAt:  rec.JoinedAt,
		Online:    true,
	}

	s.mu.Lock()
	if left, ok := s.departed[m.MemberPub]; ok && m.JoinedAt <= left {
		s.mu.Unlock()
		e.logger.Debug("ignoring presence of departed member",
			zap.String("group", s.group.Pub), zap.String("member", m.MemberPub),
			zap.Int64("joined_at", m.JoinedAt), zap.Int64("left_at", left))
		return
	}
	_, known := s.members[m.MemberPub]
	err = e.db.UpsertMember(&m)
	if err == nil {
		s.members[m.MemberPub] = m
	}
	e.ensureSelfLocked(s)
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to save member", zap.String("group", s.group.Pub), zap.String("member", m.MemberPub), zap.Error(err))
		return
	}
	if !known {
		e.bus.Emit(bus.MemberJoined, s.group.Pub, "member", m.MemberPub, "alias", m.Alias)
	}
}

// leaveMember records that member left at leftAt and removes it. Presence
// values with a join time at or before leftAt are ignored from then on; a
// later join time is a rejoin.
func (e *Engine) leaveMember(s *Session, member string, leftAt int64) {
	s.mu.Lock()
	if prev, ok := s.departed[member]; !ok || leftAt > prev {
		s.departed[member] = leftAt
	}
	err := e.db.RecordDeparture(s.group.Pub, member, leftAt)
	s.mu.Unlock()
	if err != nil {
		e.logger.Error("failed to record departure", zap.String("group", s.group.Pub), zap.String("member", member), zap.Error(err))
	}
	e.removeMember(s, member, "left")
}

// removeMember drops a member from memory and cache. It is idempotent: only
// the call that actually removed something publishes an event.
func (e *Engine) removeMember(s *Session, member, reason string) {
	s.mu.Lock()
	_, had := s.members[member]
	delete(s.members, member)
	removed, err := e.db.DeleteMember(s.group.Pub, member)
	e.ensureSelfLocked(s)
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to delete member", zap.String("group", s.group.Pub), zap.String("member", member), zap.Error(err))
	}
	if had || removed {
		e.bus.Emit(bus.MemberRemoved, s.group.Pub, "member", member, "reason", reason)
		e.logger.Info("member removed", zap.String("group", s.group.Pub), zap.String("member", member), zap.String("reason", reason))
	}
}

// ensureSelfLocked re-inserts the local identity when the member set would
// otherwise be empty. A joined group always has at least one member.
func (e *Engine) ensureSelfLocked(s *Session) {
	if len(s.members) > 0 {
		return
	}
	m := store.Member{
		GroupPub:  s.group.Pub,
		MemberPub: e.self.Pub,
		Alias:     e.self.Alias,
		JoinedAt:  s.group.JoinedAt,
		Online:    true,
	}
	s.members[m.MemberPub] = m
	if err := e.db.UpsertMember(&m); err != nil {
		e.logger.Error("failed to restore self membership", zap.String("group", s.group.Pub), zap.Error(err))
	}
}

// Members returns the current member set of an open group, ordered by join
// time.
func (e *Engine) Members(group string) ([]store.Member, error) {
	s, err := e.session(group)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]store.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].MemberPub < out[j].MemberPub
	})
	return out, nil
}
