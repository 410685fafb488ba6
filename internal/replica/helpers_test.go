package replica

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/store"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

var testOptions = Options{
	PageSize:    5,
	SettlePoll:  10 * time.Millisecond,
	SettleQuiet: 80 * time.Millisecond,
}

// peer is one participant: its own cache, bus and engine, sharing a graph
// with the other peers of a test.
type peer struct {
	pub    string
	db     *store.DB
	bus    *bus.Bus
	engine *Engine
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newPeer(t *testing.T, g graph.Graph, pub, alias string) *peer {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	logger := zap.NewNop()
	self := store.Identity{Pub: pub, Alias: alias}

	p := outbox.NewPublisher(g, b, 100*time.Millisecond, logger)
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	inv := invite.NewManager(db, g, self, 100*time.Millisecond, logger)
	e := NewEngine(db, g, b, p, inv, self, testOptions, logger)
	t.Cleanup(e.Stop)

	return &peer{pub: pub, db: db, bus: b, engine: e}
}

func newMemoryGraph(t *testing.T) *graph.Memory {
	t.Helper()
	g := graph.NewMemory()
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func memberCount(t *testing.T, p *peer, group string) int {
	t.Helper()
	ms, err := p.engine.Members(group)
	require.NoError(t, err)
	return len(ms)
}

func messageCount(t *testing.T, p *peer, group string) int64 {
	t.Helper()
	n, err := p.db.CountMessages(group)
	require.NoError(t, err)
	return n
}

func (p *peer) session(t *testing.T, group string) *Session {
	t.Helper()
	s, err := p.engine.session(group)
	require.NoError(t, err)
	return s
}

// events counts bus events of one kind.
type events struct {
	mu   sync.Mutex
	seen []bus.Event
}

func watch(t *testing.T, b *bus.Bus, kind string) *events {
	t.Helper()
	ch, unsub := b.Subscribe(kind, 256)
	ev := &events{}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case e := <-ch:
				ev.mu.Lock()
				ev.seen = append(ev.seen, e)
				ev.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		unsub()
		close(done)
	})
	return ev
}

func (ev *events) count() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return len(ev.seen)
}

func (ev *events) last() bus.Event {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.seen) == 0 {
		return bus.Event{}
	}
	return ev.seen[len(ev.seen)-1]
}
