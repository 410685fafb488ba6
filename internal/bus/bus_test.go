package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Emit(SessionPhaseChanged, "g1", "from", "syncing", "to", "live")

	select {
	case evt := <-ch:
		if evt.Kind != SessionPhaseChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, SessionPhaseChanged)
		}
		if evt.Group != "g1" || evt.Payload["to"] != "live" {
			t.Errorf("unexpected event %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Publish should stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Emit(MessageAdded, "g1")
	b.Emit(SyncSettled, "g1")

	select {
	case evt := <-ch:
		if evt.Kind != SyncSettled {
			t.Errorf("got kind %q, want %s", evt.Kind, SyncSettled)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("member.", 10)
	unsub()

	b.Emit(MemberJoined, "g1")

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Emit(MessageAdded, "g1", "msg_id", "one")
	b.Emit(MessageAdded, "g1", "msg_id", "two")

	evt := <-ch
	if evt.Payload["msg_id"] != "one" {
		t.Errorf("got %q, want one", evt.Payload["msg_id"])
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}
