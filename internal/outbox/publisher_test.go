package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
)

func TestPublishAcknowledged(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	p := NewPublisher(g, bus.New(), time.Second, zap.NewNop())

	if err := p.Publish(context.Background(), graph.Message("g1", "m1"), graph.Node{"content": "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := g.Once(context.Background(), graph.Message("g1", "m1")); err != nil {
		t.Fatalf("write not visible: %v", err)
	}
}

func TestPublishTimesOutWhenOffline(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	g.SetReachability(graph.Offline)
	p := NewPublisher(g, bus.New(), 50*time.Millisecond, zap.NewNop())

	err := p.Publish(context.Background(), graph.Message("g1", "m1"), graph.Node{"content": "hi"})
	var ackErr *NetworkAckError
	if !errors.As(err, &ackErr) {
		t.Fatalf("got %v, want *NetworkAckError", err)
	}
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("got %v, want ErrAckTimeout", err)
	}
}

func TestPublishRejected(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	g.SetReachability(graph.Rejecting)
	p := NewPublisher(g, bus.New(), time.Second, zap.NewNop())

	err := p.Publish(context.Background(), graph.Message("g1", "m1"), graph.Node{"content": "hi"})
	if !errors.Is(err, graph.ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestEnqueueRunsOnAck(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	p := NewPublisher(g, bus.New(), time.Second, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	done := make(chan struct{})
	err := p.Enqueue(context.Background(), Job{
		Group: "g1",
		MsgID: "m1",
		Path:  graph.Message("g1", "m1"),
		Node:  graph.Node{"content": "hi"},
		OnAck: func() { close(done) },
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnAck never ran")
	}
}

func TestEnqueueReportsAckFailure(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	g.SetReachability(graph.Rejecting)
	b := bus.New()
	ch, unsub := b.Subscribe(bus.MessageAckFailed, 10)
	defer unsub()

	p := NewPublisher(g, b, time.Second, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	called := false
	_ = p.Enqueue(context.Background(), Job{
		Group: "g1", MsgID: "m1", Path: graph.Message("g1", "m1"),
		Node: graph.Node{"content": "hi"}, OnAck: func() { called = true },
	})

	select {
	case evt := <-ch:
		if evt.Payload["msg_id"] != "m1" {
			t.Errorf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack failure event")
	}
	if called {
		t.Error("OnAck ran for a failed publish")
	}
}

func TestSetRateThrottlesBackgroundPublishes(t *testing.T) {
	g := graph.NewMemory()
	defer g.Close()
	b := bus.New()

	p := NewPublisher(g, b, time.Second, zap.NewNop())
	p.SetRate(20, 1)
	p.Start(context.Background())
	defer p.Stop()

	done := make(chan struct{}, 3)
	start := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		err := p.Enqueue(context.Background(), Job{
			Group: "g1", MsgID: id, Path: graph.Message("g1", id),
			Node: graph.Node{"n": i}, OnAck: func() { done <- struct{}{} },
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for range 3 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for acks")
		}
	}
	// One token up front, then one every 50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three publishes finished in %v, want throttling", elapsed)
	}
}
