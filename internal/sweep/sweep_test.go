package sweep

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewRejectsBadCron(t *testing.T) {
	if _, err := New(nil, nil, "every tuesday", nil); err == nil {
		t.Fatal("New() expected error for invalid cron")
	}
	s, err := New(nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.cron != DefaultCron {
		t.Errorf("cron = %q, want %q", s.cron, DefaultCron)
	}
}

func TestRunOnceRemovesInvalidRows(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertGroup(&store.Group{Pub: "g1", Name: "G", Keypair: "kp", JoinedAt: 1000}); err != nil {
		t.Fatal(err)
	}
	rows := []store.Message{
		{GroupPub: "g1", MsgID: "ok", SenderPub: "a", SenderAlias: "A", Content: "hi", ContentType: store.ContentText, Timestamp: 2000, Status: store.StatusSent},
		{GroupPub: "g1", MsgID: "early", SenderPub: "a", SenderAlias: "A", Content: "hi", ContentType: store.ContentText, Timestamp: 500, Status: store.StatusSent},
		{GroupPub: "g1", MsgID: "empty", SenderPub: "a", SenderAlias: "A", Content: "", ContentType: store.ContentText, Timestamp: 2000, Status: store.StatusSent},
	}
	for i := range rows {
		if _, err := db.InsertMessage(&rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	b := bus.New()
	ch, unsub := b.Subscribe(bus.SweepFinished, 4)
	defer unsub()

	s, err := New(db, b, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.RunOnce()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}

	select {
	case ev := <-ch:
		if ev.Payload["removed"] != "2" {
			t.Errorf("payload removed = %q, want 2", ev.Payload["removed"])
		}
	case <-time.After(time.Second):
		t.Fatal("no sweep.finished event")
	}

	count, err := db.CountMessages("g1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(testDB(t), nil, "* * * * *", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start(t.Context())
	s.Start(t.Context())
	s.Stop()
	s.Stop()
}
