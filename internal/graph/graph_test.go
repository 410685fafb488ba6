package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) len() int { return len(c.snapshot()) }

func waitAck(t *testing.T) (AckFunc, <-chan error) {
	t.Helper()
	ch := make(chan error, 1)
	return func(err error) { ch <- err }, ch
}

func TestSplitAndClean(t *testing.T) {
	parent, key := Split("groups/g1/members/alice")
	assert.Equal(t, "groups/g1/members", parent)
	assert.Equal(t, "alice", key)

	parent, key = Split("groups")
	assert.Equal(t, "", parent)
	assert.Equal(t, "groups", key)

	assert.Equal(t, "groups/g1", Clean("/groups//g1/"))
	assert.Equal(t, "groups/g1/signals/clear", ClearSignal("g1"))
	assert.Equal(t, "groups/g1/votes/bob", Vote("g1", "bob"))
}

// runGraphSuite exercises the behavior every backend must share.
func runGraphSuite(t *testing.T, newGraph func(t *testing.T) Graph) {
	ctx := context.Background()

	t.Run("put then once", func(t *testing.T) {
		g := newGraph(t)
		fn, acked := waitAck(t)
		g.Put(ctx, Name("g1"), Node{"name": "Book club"}, fn)
		require.NoError(t, <-acked)

		n, err := g.Once(ctx, Name("g1"))
		require.NoError(t, err)
		assert.Equal(t, "Book club", n["name"])

		_, err = g.Once(ctx, Name("missing"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("map replays existing children then live changes", func(t *testing.T) {
		g := newGraph(t)
		g.Put(ctx, Member("g1", "alice"), Node{"alias": "Alice"}, nil)
		g.Put(ctx, Member("g1", "bob"), Node{"alias": "Bob"}, nil)

		var c collector
		cancel, err := g.Map(ctx, Members("g1"), c.handle)
		require.NoError(t, err)
		defer cancel()

		require.Eventually(t, func() bool { return c.len() == 2 }, 2*time.Second, 10*time.Millisecond)

		g.Put(ctx, Member("g1", "carol"), Node{"alias": "Carol"}, nil)
		require.Eventually(t, func() bool { return c.len() == 3 }, 2*time.Second, 10*time.Millisecond)
		last := c.snapshot()[2]
		assert.Equal(t, "carol", last.Key)
		assert.Equal(t, "Carol", last.Value["alias"])
	})

	t.Run("tombstone of parent reaches child subscribers", func(t *testing.T) {
		g := newGraph(t)
		g.Put(ctx, Message("g1", "m1"), Node{"content": "one"}, nil)
		g.Put(ctx, Message("g1", "m2"), Node{"content": "two"}, nil)

		var c collector
		cancel, err := g.Map(ctx, Messages("g1"), c.handle)
		require.NoError(t, err)
		defer cancel()
		require.Eventually(t, func() bool { return c.len() == 2 }, 2*time.Second, 10*time.Millisecond)

		g.Put(ctx, Messages("g1"), nil, nil)
		require.Eventually(t, func() bool {
			tombs := 0
			for _, ev := range c.snapshot() {
				if ev.Tombstone() {
					tombs++
				}
			}
			return tombs == 2
		}, 2*time.Second, 10*time.Millisecond)

		_, err = g.Once(ctx, Message("g1", "m1"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("on fires current value and tombstone", func(t *testing.T) {
		g := newGraph(t)
		g.Put(ctx, Name("g2"), Node{"name": "First"}, nil)

		var c collector
		cancel, err := g.On(ctx, Name("g2"), c.handle)
		require.NoError(t, err)
		defer cancel()
		require.Eventually(t, func() bool { return c.len() == 1 }, 2*time.Second, 10*time.Millisecond)

		g.Put(ctx, Name("g2"), nil, nil)
		require.Eventually(t, func() bool { return c.len() == 2 }, 2*time.Second, 10*time.Millisecond)
		assert.True(t, c.snapshot()[1].Tombstone())
	})

	t.Run("cancel stops delivery", func(t *testing.T) {
		g := newGraph(t)
		var c collector
		cancel, err := g.Map(ctx, Votes("g1"), c.handle)
		require.NoError(t, err)
		cancel()
		cancel()

		fn, acked := waitAck(t)
		g.Put(ctx, Vote("g1", "alice"), Node{"agreed": true}, fn)
		require.NoError(t, <-acked)
		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, c.len())
	})

	t.Run("set generates keys", func(t *testing.T) {
		g := newGraph(t)
		k1 := g.Set(ctx, Messages("g3"), Node{"content": "a"}, nil)
		k2 := g.Set(ctx, Messages("g3"), Node{"content": "b"}, nil)
		assert.NotEqual(t, k1, k2)
		n, err := g.Once(ctx, Message("g3", k2))
		require.NoError(t, err)
		assert.Equal(t, "b", n["content"])
	})
}

func TestMemoryGraph(t *testing.T) {
	runGraphSuite(t, func(t *testing.T) Graph {
		g := NewMemory()
		t.Cleanup(func() { _ = g.Close() })
		return g
	})
}

func TestMemoryReachability(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	defer g.Close()

	g.SetReachability(Rejecting)
	fn, acked := waitAck(t)
	g.Put(ctx, Name("g1"), Node{"name": "x"}, fn)
	assert.ErrorIs(t, <-acked, ErrRejected)

	g.SetReachability(Offline)
	fn, acked = waitAck(t)
	g.Put(ctx, Name("g1"), Node{"name": "x"}, fn)
	select {
	case err := <-acked:
		t.Fatalf("offline write acked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	_, err := g.Once(ctx, Name("g1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySubscribersShareNoState(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	defer g.Close()

	var a, b collector
	ca, _ := g.On(ctx, Name("g1"), a.handle)
	cb, _ := g.On(ctx, Name("g1"), b.handle)
	defer ca()
	defer cb()

	g.Put(ctx, Name("g1"), Node{"name": "x"}, nil)
	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, time.Second, 5*time.Millisecond)

	a.snapshot()[0].Value["name"] = "mutated"
	assert.Equal(t, "x", b.snapshot()[0].Value["name"])
}
