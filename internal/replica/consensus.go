package replica

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/wire"
)

// Tally is a snapshot of the clear-history vote of a group.
type Tally struct {
	Agreed   int
	Members  int
	CanClear bool
	Votes    []store.Vote
}

func voteRecord(v store.Vote) wire.VoteRecord {
	return wire.VoteRecord{Agreed: v.Agreed, Timestamp: v.Timestamp}
}

// Vote records the local identity's agreement to clear the history of group.
// It is applied locally right away and again when the write echoes back.
func (e *Engine) Vote(ctx context.Context, group string) error {
	s, err := e.session(group)
	if err != nil {
		return err
	}
	rec := wire.VoteRecord{Agreed: true, Timestamp: e.now().UnixMilli()}
	if err := e.applyVote(s, e.self.Pub, rec); err != nil {
		return err
	}
	e.graph.Put(ctx, graph.Vote(group, e.self.Pub), rec.Node(), e.logAck("vote", group))
	return nil
}

// CancelVote withdraws the local identity's vote.
func (e *Engine) CancelVote(ctx context.Context, group string) error {
	s, err := e.session(group)
	if err != nil {
		return err
	}
	if err := e.retractVote(s, e.self.Pub); err != nil {
		return err
	}
	e.graph.Put(ctx, graph.Vote(group, e.self.Pub), nil, e.logAck("vote", group))
	return nil
}

func (e *Engine) onVote(s *Session, ev graph.Event) {
	var err error
	if ev.Tombstone() {
		err = e.retractVote(s, ev.Key)
	} else {
		var rec wire.VoteRecord
		rec, err = wire.DecodeVote(ev.Value)
		if err != nil {
			e.logger.Debug("dropping vote", zap.String("group", s.group.Pub), zap.String("voter", ev.Key), zap.Error(err))
			return
		}
		err = e.applyVote(s, ev.Key, rec)
	}
	if err != nil {
		e.logger.Error("failed to apply vote", zap.String("group", s.group.Pub), zap.String("voter", ev.Key), zap.Error(err))
	}
}

func (e *Engine) applyVote(s *Session, voter string, rec wire.VoteRecord) error {
	s.mu.Lock()
	prev, had := s.votes[voter]
	err := e.db.UpsertVote(&store.Vote{GroupPub: s.group.Pub, VoterID: voter, Agreed: rec.Agreed, Timestamp: rec.Timestamp})
	if err == nil {
		s.votes[voter] = rec
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save vote: %w", err)
	}
	if !had || prev != rec {
		e.bus.Emit(bus.VoteChanged, s.group.Pub, "voter", voter, "agreed", fmt.Sprint(rec.Agreed))
	}
	return nil
}

func (e *Engine) retractVote(s *Session, voter string) error {
	s.mu.Lock()
	_, had := s.votes[voter]
	delete(s.votes, voter)
	_, err := e.db.DeleteVote(s.group.Pub, voter)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if had {
		e.bus.Emit(bus.VoteChanged, s.group.Pub, "voter", voter, "agreed", "false")
	}
	return nil
}

// CanClear reports whether every current member of group agreed to clear.
func (e *Engine) CanClear(group string) (bool, error) {
	t, err := e.Tally(group)
	if err != nil {
		return false, err
	}
	return t.CanClear, nil
}

// Tally returns the current vote state of group.
func (e *Engine) Tally(group string) (Tally, error) {
	s, err := e.session(group)
	if err != nil {
		return Tally{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agreed, ok := canClear(s.members, s.votes)
	t := Tally{Agreed: agreed, Members: len(s.members), CanClear: ok}
	for voter, v := range s.votes {
		t.Votes = append(t.Votes, store.Vote{GroupPub: s.group.Pub, VoterID: voter, Agreed: v.Agreed, Timestamp: v.Timestamp})
	}
	sort.Slice(t.Votes, func(i, j int) bool { return t.Votes[i].VoterID < t.Votes[j].VoterID })
	return t, nil
}

// InitiateClear wipes the history of group once every member agreed. The
// local cache is purged first, then the message root is tombstoned so every
// subscriber removes its copy, then an advisory signal is written.
//
// Two members may both observe unanimity and clear concurrently, and a clear
// may race a send from a member that has not seen the votes yet. Neither race
// is arbitrated.
func (e *Engine) InitiateClear(ctx context.Context, group string) error {
	s, err := e.session(group)
	if err != nil {
		return err
	}

	s.mu.Lock()
	agreed, ok := canClear(s.members, s.votes)
	if !ok {
		members := len(s.members)
		s.mu.Unlock()
		return &ConsensusNotReachedError{Group: group, Agreed: agreed, Members: members}
	}
	n, err := e.db.ClearHistory(group)
	if err == nil {
		s.resetViewLocked()
		s.loaded = s.focused
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	e.graph.Put(ctx, graph.Messages(group), nil, e.logAck("clear", group))
	sig := wire.ClearSignal{By: e.self.Pub, Timestamp: e.now().UnixMilli()}
	e.graph.Put(ctx, graph.ClearSignal(group), sig.Node(), e.logAck("clear signal", group))

	e.bus.Emit(bus.HistoryClear, group, "by", e.self.Pub, "removed", fmt.Sprint(n))
	e.logger.Info("history cleared", zap.String("group", group), zap.Int64("removed", n))
	return nil
}

// LastClear reads the advisory signal left by the most recent clear of
// group. ok is false when the group was never cleared.
func (e *Engine) LastClear(ctx context.Context, group string) (sig wire.ClearSignal, ok bool, err error) {
	if _, err := e.session(group); err != nil {
		return sig, false, err
	}
	n, err := e.graph.Once(ctx, graph.ClearSignal(group))
	if errors.Is(err, graph.ErrNotFound) {
		return sig, false, nil
	}
	if err != nil {
		return sig, false, fmt.Errorf("read clear signal: %w", err)
	}
	sig, err = wire.DecodeClearSignal(n)
	if err != nil {
		return sig, false, err
	}
	return sig, true, nil
}
