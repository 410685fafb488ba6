package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedGroup(t *testing.T, db *DB, pub string, joinedAt int64) {
	t.Helper()
	if err := db.UpsertGroup(&Group{Pub: pub, Name: "Group " + pub, Keypair: "kp-" + pub, JoinedAt: joinedAt}); err != nil {
		t.Fatal(err)
	}
}

func textMsg(group, id string, ts int64) *Message {
	return &Message{
		GroupPub:    group,
		MsgID:       id,
		SenderPub:   "alice",
		SenderAlias: "Alice",
		Content:     "hello " + id,
		ContentType: ContentText,
		Timestamp:   ts,
		Status:      StatusSent,
	}
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestGroupUpsertKeepsJoinedAtAndKeypair(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 1000)

	if err := db.UpsertGroup(&Group{Pub: "g1", Name: "", Keypair: "other", JoinedAt: 5000}); err != nil {
		t.Fatal(err)
	}
	g, err := db.GetGroup("g1")
	if err != nil {
		t.Fatal(err)
	}
	if g == nil {
		t.Fatal("GetGroup returned nil")
	}
	if g.JoinedAt != 1000 {
		t.Errorf("JoinedAt = %d, want 1000", g.JoinedAt)
	}
	if g.Keypair != "kp-g1" {
		t.Errorf("Keypair = %q, want kp-g1", g.Keypair)
	}
	if g.Name != "Group g1" {
		t.Errorf("Name = %q, empty name must not overwrite", g.Name)
	}

	changed, err := db.SetGroupName("g1", "Renamed")
	if err != nil || !changed {
		t.Fatalf("SetGroupName = %v, %v", changed, err)
	}
	changed, _ = db.SetGroupName("g1", "Renamed")
	if changed {
		t.Error("renaming to the same name should report no change")
	}

	missing, err := db.GetGroup("nope")
	if err != nil || missing != nil {
		t.Errorf("GetGroup(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)
	if err := db.UpsertMember(&Member{GroupPub: "g1", MemberPub: "alice", Alias: "Alice", JoinedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(textMsg("g1", "m1", 10)); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVote(&Vote{GroupPub: "g1", VoterID: "alice", Agreed: true, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCheckpoint("g1", 99); err != nil {
		t.Fatal(err)
	}

	if err := db.ForgetGroup("g1"); err != nil {
		t.Fatal(err)
	}
	members, _ := db.ListMembers("g1")
	votes, _ := db.ListVotes("g1")
	count, _ := db.CountMessages("g1")
	cp, _ := db.Checkpoint("g1")
	if len(members) != 0 || len(votes) != 0 || count != 0 || cp != 0 {
		t.Errorf("leftovers after ForgetGroup: members=%d votes=%d messages=%d checkpoint=%d", len(members), len(votes), count, cp)
	}
}

func TestMemberUpsertAndDelete(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	if err := db.UpsertMember(&Member{GroupPub: "g1", MemberPub: "bob", Alias: "Bob", JoinedAt: 20}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMember(&Member{GroupPub: "g1", MemberPub: "alice", Alias: "Alice", JoinedAt: 10}); err != nil {
		t.Fatal(err)
	}
	// An empty alias must not clobber the known one.
	if err := db.UpsertMember(&Member{GroupPub: "g1", MemberPub: "bob"}); err != nil {
		t.Fatal(err)
	}

	members, err := db.ListMembers("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].MemberPub != "alice" || members[1].Alias != "Bob" || members[1].JoinedAt != 20 {
		t.Errorf("unexpected members: %+v", members)
	}

	removed, err := db.DeleteMember("g1", "bob")
	if err != nil || !removed {
		t.Fatalf("DeleteMember = %v, %v", removed, err)
	}
	removed, _ = db.DeleteMember("g1", "bob")
	if removed {
		t.Error("second DeleteMember should report false")
	}
}

func TestDepartureKeepsLatestLeave(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	for _, ts := range []int64{50, 30} {
		if err := db.RecordDeparture("g1", "xavier", ts); err != nil {
			t.Fatal(err)
		}
	}
	departed, err := db.ListDepartures("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(departed) != 1 || departed["xavier"] != 50 {
		t.Errorf("departures = %v, want xavier@50", departed)
	}

	if err := db.DeleteGroup("g1"); err != nil {
		t.Fatal(err)
	}
	departed, _ = db.ListDepartures("g1")
	if len(departed) != 0 {
		t.Errorf("departures survived group delete: %v", departed)
	}
}

func TestMessageInsertIdempotent(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	m := textMsg("g1", "m1", 1000)
	inserted, err := db.InsertMessage(m)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	if m.ID == 0 {
		t.Error("InsertMessage should set the row id")
	}

	dup := textMsg("g1", "m1", 2000)
	dup.Content = "changed"
	inserted, err = db.InsertMessage(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert should report false")
	}

	got, err := db.GetMessage("g1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "hello m1" || got.Timestamp != 1000 {
		t.Errorf("duplicate overwrote the first write: %+v", got)
	}
	if n, _ := db.CountMessages("g1"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestMarkMessageSent(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	m := textMsg("g1", "m1", 1000)
	m.Status = StatusPending
	if _, err := db.InsertMessage(m); err != nil {
		t.Fatal(err)
	}
	pending, err := db.PendingMessages("g1", "alice")
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingMessages = %d, %v", len(pending), err)
	}

	changed, err := db.MarkMessageSent("g1", "m1")
	if err != nil || !changed {
		t.Fatalf("MarkMessageSent = %v, %v", changed, err)
	}
	changed, _ = db.MarkMessageSent("g1", "m1")
	if changed {
		t.Error("sent messages never transition again")
	}
	pending, _ = db.PendingMessages("g1", "alice")
	if len(pending) != 0 {
		t.Errorf("still %d pending", len(pending))
	}
}

func TestListMessagesBeforePages(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	var ids []int64
	for i := range 5 {
		m := textMsg("g1", string(rune('a'+i)), int64(100+i))
		if _, err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	latest, err := db.ListMessagesBefore("g1", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 || latest[0].MsgID != "d" || latest[1].MsgID != "e" {
		t.Fatalf("latest page = %+v", latest)
	}

	older, err := db.ListMessagesBefore("g1", latest[0].ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[0].MsgID != "b" || older[1].MsgID != "c" {
		t.Fatalf("older page = %+v", older)
	}

	last, _ := db.ListMessagesBefore("g1", ids[1], 2)
	if len(last) != 1 || last[0].MsgID != "a" {
		t.Fatalf("final page = %+v", last)
	}
}

func TestDeleteInvalidMessages(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 500)

	good := textMsg("g1", "good", 1000)
	early := textMsg("g1", "early", 100)
	empty := textMsg("g1", "empty", 1000)
	empty.Content = ""
	noAlias := textMsg("g1", "noalias", 1000)
	noAlias.SenderAlias = ""
	badType := textMsg("g1", "badtype", 1000)
	badType.ContentType = "sticker"

	for _, m := range []*Message{good, early, empty, noAlias, badType} {
		if _, err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.DeleteInvalidMessages()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("deleted %d, want 4", n)
	}
	if got, _ := db.GetMessage("g1", "good"); got == nil {
		t.Error("valid message was purged")
	}
}

func TestPreviewMaxWins(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	if err := db.UpsertPreview(&Preview{GroupPub: "g1", Summary: "newer", LastTimestamp: 200}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertPreview(&Preview{GroupPub: "g1", Summary: "older", LastTimestamp: 100}); err != nil {
		t.Fatal(err)
	}
	p, err := db.GetPreview("g1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Summary != "newer" || p.LastTimestamp != 200 {
		t.Errorf("preview = %+v, want newer@200", p)
	}

	if _, err := db.ClearHistory("g1"); err != nil {
		t.Fatal(err)
	}
	if p, _ := db.GetPreview("g1"); p != nil {
		t.Errorf("preview survived ClearHistory: %+v", p)
	}
}

func TestReadMarkerNeverMovesBack(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	_ = db.SetReadMarker("g1", 300)
	_ = db.SetReadMarker("g1", 100)
	r, err := db.GetReadMarker("g1")
	if err != nil {
		t.Fatal(err)
	}
	if r.LastReadTimestamp != 300 {
		t.Errorf("marker = %d, want 300", r.LastReadTimestamp)
	}
	markers, _ := db.ListReadMarkers()
	if len(markers) != 1 {
		t.Errorf("got %d markers", len(markers))
	}
}

func TestVotes(t *testing.T) {
	db := testDB(t)
	seedGroup(t, db, "g1", 0)

	_ = db.UpsertVote(&Vote{GroupPub: "g1", VoterID: "alice", Agreed: true, Timestamp: 1})
	_ = db.UpsertVote(&Vote{GroupPub: "g1", VoterID: "alice", Agreed: false, Timestamp: 2})
	votes, err := db.ListVotes("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != 1 || votes[0].Agreed {
		t.Fatalf("votes = %+v", votes)
	}
	removed, _ := db.DeleteVote("g1", "alice")
	if !removed {
		t.Error("DeleteVote should report true")
	}
}

func TestIdentityAndCheckpoint(t *testing.T) {
	db := testDB(t)

	kp, err := db.IdentityKeypair()
	if err != nil || kp != "" {
		t.Fatalf("fresh identity = %q, %v", kp, err)
	}
	if err := db.SaveIdentity(`{"pub":"x"}`, "Alice"); err != nil {
		t.Fatal(err)
	}
	kp, _ = db.IdentityKeypair()
	alias, _ := db.IdentityAlias()
	if kp != `{"pub":"x"}` || alias != "Alice" {
		t.Errorf("identity = %q/%q", kp, alias)
	}

	if err := db.SaveCheckpoint("g1", 12345); err != nil {
		t.Fatal(err)
	}
	cp, err := db.Checkpoint("g1")
	if err != nil || cp != 12345 {
		t.Errorf("checkpoint = %d, %v", cp, err)
	}
}
