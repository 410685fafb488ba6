package graph

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Reachability controls how a Memory graph treats writes. It lets tests model
// a peer whose publishes are lost or rejected.
type Reachability int

const (
	// Online applies writes and acknowledges them.
	Online Reachability = iota
	// Offline silently loses writes; the ack never arrives.
	Offline
	// Rejecting refuses writes and acknowledges them with ErrRejected.
	Rejecting
)

// ErrRejected is the ack error produced by a Rejecting memory graph.
var ErrRejected = errors.New("graph: write rejected")

// Memory is an in-process graph store. Several engines sharing one Memory
// behave like peers replicating through the same network.
type Memory struct {
	mu     sync.Mutex
	data   map[string]Node // nil value = tombstone
	subs   map[*subscriber]struct{}
	reach  Reachability
	closed bool
}

// NewMemory returns an empty in-process graph.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]Node),
		subs: make(map[*subscriber]struct{}),
	}
}

// SetReachability changes how subsequent writes are handled.
func (m *Memory) SetReachability(r Reachability) {
	m.mu.Lock()
	m.reach = r
	m.mu.Unlock()
}

// Put implements Graph.
func (m *Memory) Put(ctx context.Context, p string, node Node, fn AckFunc) {
	if err := ctx.Err(); err != nil {
		ack(fn, err)
		return
	}
	p = Clean(p)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		ack(fn, ErrClosed)
		return
	}
	switch m.reach {
	case Offline:
		return
	case Rejecting:
		ack(fn, ErrRejected)
		return
	}

	if node == nil {
		m.tombstoneLocked(p)
	} else {
		m.data[p] = node.Clone()
		m.notifyLocked(p, node)
	}
	ack(fn, nil)
}

func (m *Memory) tombstoneLocked(p string) {
	prefix := p + "/"
	var desc []string
	for k, v := range m.data {
		if v != nil && strings.HasPrefix(k, prefix) {
			desc = append(desc, k)
		}
	}
	sort.Strings(desc)
	for _, k := range desc {
		m.data[k] = nil
		m.notifyLocked(k, nil)
	}
	m.data[p] = nil
	m.notifyLocked(p, nil)
}

func (m *Memory) notifyLocked(p string, node Node) {
	_, key := Split(p)
	for s := range m.subs {
		if s.matches(p) {
			s.push(Event{Path: p, Key: key, Value: node})
		}
	}
}

// Set implements Graph.
func (m *Memory) Set(ctx context.Context, parent string, node Node, fn AckFunc) string {
	key := uuid.NewString()
	m.Put(ctx, Clean(parent)+"/"+key, node, fn)
	return key
}

// Once implements Graph.
func (m *Memory) Once(ctx context.Context, p string) (Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	n := m.data[Clean(p)]
	if n == nil {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

// On implements Graph.
func (m *Memory) On(ctx context.Context, p string, h Handler) (Cancel, error) {
	return m.subscribe(ctx, Clean(p), false, h)
}

// Map implements Graph.
func (m *Memory) Map(ctx context.Context, p string, h Handler) (Cancel, error) {
	return m.subscribe(ctx, Clean(p), true, h)
}

func (m *Memory) subscribe(ctx context.Context, p string, children bool, h Handler) (Cancel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	s := newSubscriber(p, children, h)

	// Replay the current state, tombstones included, before any live change.
	var existing []string
	for k := range m.data {
		if s.matches(k) {
			existing = append(existing, k)
		}
	}
	sort.Strings(existing)
	for _, k := range existing {
		_, key := Split(k)
		s.push(Event{Path: k, Key: key, Value: m.data[k]})
	}
	m.subs[s] = struct{}{}

	return func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		s.close()
	}, nil
}

// Close stops every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for s := range m.subs {
		s.close()
	}
	m.subs = make(map[*subscriber]struct{})
	return nil
}
