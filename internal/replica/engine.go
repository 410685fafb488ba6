// Package replica replicates group chats between the shared graph store and
// the local cache: membership presence, the message stream, clear-history
// consensus and the initial-sync settle heuristic.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
)

// Options tunes the engine. Zero values use defaults.
type Options struct {
	PageSize    int
	SettlePoll  time.Duration
	SettleQuiet time.Duration
}

const (
	defaultPageSize    = 20
	defaultSettlePoll  = 500 * time.Millisecond
	defaultSettleQuiet = 2000 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.SettlePoll <= 0 {
		o.SettlePoll = defaultSettlePoll
	}
	if o.SettleQuiet <= 0 {
		o.SettleQuiet = defaultSettleQuiet
	}
	return o
}

// Engine runs one Session per open group on top of a shared graph.
type Engine struct {
	db        *store.DB
	graph     graph.Graph
	bus       *bus.Bus
	publisher *outbox.Publisher
	invites   *invite.Manager
	self      store.Identity
	opts      Options
	logger    *zap.Logger
	registry  *Registry
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine creates a new replication engine for the local identity self.
func NewEngine(db *store.DB, g graph.Graph, b *bus.Bus, p *outbox.Publisher, inv *invite.Manager, self store.Identity, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b == nil {
		b = bus.New()
	}
	return &Engine{
		db:        db,
		graph:     g,
		bus:       b,
		publisher: p,
		invites:   inv,
		self:      self,
		opts:      opts.withDefaults(),
		logger:    logger,
		registry:  NewRegistry(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Self returns the local identity.
func (e *Engine) Self() store.Identity { return e.self }

// Registry exposes the live subscription registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Start opens every cached group. A group that fails to open is logged and
// skipped so one broken group never blocks the rest.
func (e *Engine) Start(ctx context.Context) error {
	groups, err := e.db.ListGroups()
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for i := range groups {
		if err := e.open(ctx, groups[i], false); err != nil {
			e.logger.Error("failed to open group", zap.String("group", groups[i].Pub), zap.Error(err))
		}
	}
	e.logger.Info("replication started", zap.Int("groups", len(groups)))
	return nil
}

// Stop closes every open session and cancels any subscription left behind.
func (e *Engine) Stop() {
	e.mu.Lock()
	groups := make([]string, 0, len(e.sessions))
	for pub := range e.sessions {
		groups = append(groups, pub)
	}
	e.mu.Unlock()
	for _, g := range groups {
		e.Close(g)
	}
	e.registry.CancelAll()
}

// Create makes a new group and opens it. No settle phase is needed: nobody
// else can have written to it yet.
func (e *Engine) Create(ctx context.Context, name string) (*store.Group, string, error) {
	g, inv, err := e.invites.Create(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if err := e.open(ctx, *g, false); err != nil {
		return nil, "", err
	}
	return g, inv, nil
}

// Join joins the group an invite points to and starts replicating it with
// the settle detector engaged. Joining a known group is a no-op that returns
// the cached group.
func (e *Engine) Join(ctx context.Context, inv string) (*store.Group, error) {
	g, err := e.invites.Join(ctx, inv)
	if errors.Is(err, invite.ErrAlreadyMember) {
		if !e.IsOpen(g.Pub) {
			if err := e.open(ctx, *g, false); err != nil {
				return nil, err
			}
		}
		return g, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.open(ctx, *g, true); err != nil {
		return nil, err
	}
	return g, nil
}

// IsOpen reports whether group has a live session.
func (e *Engine) IsOpen(group string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[group]
	return ok
}

// Open starts replicating a cached group.
func (e *Engine) Open(ctx context.Context, group string) error {
	g, err := e.db.GetGroup(group)
	if err != nil {
		return fmt.Errorf("lookup group: %w", err)
	}
	if g == nil {
		return ErrUnknownGroup
	}
	return e.open(ctx, *g, false)
}

func (e *Engine) open(ctx context.Context, g store.Group, fresh bool) error {
	e.mu.Lock()
	if _, ok := e.sessions[g.Pub]; ok {
		e.mu.Unlock()
		return nil
	}
	s := newSession(g, status.NewMachine(g.Pub, e.bus))
	e.sessions[g.Pub] = s
	e.mu.Unlock()

	if err := e.loadCached(s); err != nil {
		e.dropSession(s)
		return err
	}
	if fresh {
		_ = s.phase.Transition(status.Syncing)
		s.settle = newSettleDetector(e.opts.SettlePoll, e.opts.SettleQuiet, e.now, func() { e.onSettled(s) })
	}

	subs, err := e.subscribe(ctx, s)
	if err == nil && !e.register(s, subs) {
		err = ErrGroupNotOpen
	}
	if err != nil {
		subs.cancel()
		if s.settle != nil {
			s.settle.stop()
		}
		e.dropSession(s)
		return err
	}
	if s.settle != nil {
		s.settle.start()
	} else {
		_ = s.phase.Transition(status.Live)
	}

	e.bus.Emit(bus.GroupOpened, g.Pub, "fresh", fmt.Sprint(fresh))
	e.logger.Info("group opened", zap.String("group", g.Pub), zap.Bool("fresh", fresh))
	return nil
}

// dropSession forgets s only if it is still the session of its group.
func (e *Engine) dropSession(s *Session) {
	e.mu.Lock()
	if e.sessions[s.group.Pub] == s {
		delete(e.sessions, s.group.Pub)
	}
	e.mu.Unlock()
}

// register hands the subscriptions of s to the registry. It reports false
// when the group was closed while they were being set up, in which case
// nothing is registered.
func (e *Engine) register(s *Session, subs subscriptions) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[s.group.Pub] != s {
		return false
	}
	for _, sub := range subs {
		e.registry.Add(s.group.Pub, sub.topic, sub.cancel)
	}
	return true
}

// loadCached seeds the session from the cache so an offline start still has
// its members, votes and departures.
func (e *Engine) loadCached(s *Session) error {
	members, err := e.db.ListMembers(s.group.Pub)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	votes, err := e.db.ListVotes(s.group.Pub)
	if err != nil {
		return fmt.Errorf("load votes: %w", err)
	}
	departed, err := e.db.ListDepartures(s.group.Pub)
	if err != nil {
		return fmt.Errorf("load departures: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.departed = departed
	for _, m := range members {
		s.members[m.MemberPub] = m
	}
	for _, v := range votes {
		s.votes[v.VoterID] = voteRecord(v)
	}
	e.ensureSelfLocked(s)
	return nil
}

type subscription struct {
	topic  Topic
	cancel graph.Cancel
}

type subscriptions []subscription

func (subs subscriptions) cancel() {
	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
}

// subscribe starts every subscription of s. On error the handles started so
// far are returned so the caller can cancel them.
func (e *Engine) subscribe(ctx context.Context, s *Session) (subscriptions, error) {
	pub := s.group.Pub
	var subs subscriptions

	cancel, err := e.startMembership(ctx, s)
	if err != nil {
		return subs, err
	}
	subs = append(subs, subscription{TopicMembers, cancel})

	cancel, err = e.graph.Map(ctx, graph.Messages(pub), func(ev graph.Event) { e.onMessage(s, ev) })
	if err != nil {
		return subs, fmt.Errorf("subscribe messages: %w", err)
	}
	subs = append(subs, subscription{TopicMessages, cancel})

	cancel, err = e.graph.Map(ctx, graph.Votes(pub), func(ev graph.Event) { e.onVote(s, ev) })
	if err != nil {
		return subs, fmt.Errorf("subscribe votes: %w", err)
	}
	subs = append(subs, subscription{TopicVotes, cancel})

	cancel, err = e.graph.On(ctx, graph.Name(pub), func(ev graph.Event) { e.onName(s, ev) })
	if err != nil {
		return subs, fmt.Errorf("subscribe name: %w", err)
	}
	subs = append(subs, subscription{TopicName, cancel})
	return subs, nil
}

// Close cancels the subscriptions of group and forgets its session. The
// cache is kept.
func (e *Engine) Close(group string) {
	e.mu.Lock()
	s, ok := e.sessions[group]
	delete(e.sessions, group)
	e.mu.Unlock()
	if !ok {
		return
	}

	n := e.registry.CancelGroup(group)
	if s.settle != nil {
		s.settle.stop()
	}
	_ = s.phase.Transition(status.Closed)
	e.bus.Emit(bus.GroupClosed, group)
	e.logger.Info("group closed", zap.String("group", group), zap.Int("subscriptions", n))
}

func (e *Engine) session(group string) (*Session, error) {
	e.mu.Lock()
	s, ok := e.sessions[group]
	e.mu.Unlock()
	if ok {
		return s, nil
	}
	g, err := e.db.GetGroup(group)
	if err != nil {
		return nil, fmt.Errorf("lookup group: %w", err)
	}
	if g == nil {
		return nil, ErrUnknownGroup
	}
	return nil, ErrGroupNotOpen
}

// Phase returns the replication phase of an open group.
func (e *Engine) Phase(group string) (status.Phase, error) {
	s, err := e.session(group)
	if err != nil {
		return "", err
	}
	return s.phase.Current(), nil
}

// OpenGroups returns the ids of every open group, sorted.
func (e *Engine) OpenGroups() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sessions))
	for pub := range e.sessions {
		out = append(out, pub)
	}
	sort.Strings(out)
	return out
}

// logAck returns an ack callback that only logs failures.
func (e *Engine) logAck(what, group string) graph.AckFunc {
	return func(err error) {
		if err != nil {
			e.logger.Warn("graph write not acknowledged",
				zap.String("write", what), zap.String("group", group), zap.Error(err))
		}
	}
}
