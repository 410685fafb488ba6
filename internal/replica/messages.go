package replica

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
	"github.com/matheus3301/huddle/internal/outbox"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/view"
	"github.com/matheus3301/huddle/internal/wire"
)

// Drop reasons reported on message.dropped events.
const (
	DropInvalid    = "invalid"
	DropBeforeJoin = "before_join"
)

// Send authors a message in group. It is cached as pending, shown if the
// group is focused, and published in the background. The returned message is
// the pending row; it turns sent once the publish is acknowledged or the
// write echoes back.
func (e *Engine) Send(ctx context.Context, group, content string, ct wire.ContentType) (*store.Message, error) {
	s, err := e.session(group)
	if err != nil {
		return nil, err
	}

	rec := wire.MessageRecord{
		ID:          uuid.NewString(),
		SenderPub:   e.self.Pub,
		SenderAlias: wire.Normalize(e.self.Alias),
		Content:     content,
		ContentType: ct,
		Timestamp:   e.now().UnixMilli(),
	}
	if ct != wire.Voice {
		rec.Content = wire.Normalize(content)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	msg := messageFromRecord(group, rec, store.StatusPending)

	s.mu.Lock()
	_, err = e.db.InsertMessage(&msg)
	if err == nil && s.focused {
		s.addToViewLocked(msg)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	e.touchPreview(group, rec, true)
	e.bus.Emit(bus.MessageAdded, group, "msg_id", rec.ID, "sender", rec.SenderPub, "status", string(msg.Status))

	if err := e.enqueue(ctx, s, rec); err != nil {
		e.logger.Warn("publish not queued", zap.String("group", group), zap.String("msg_id", rec.ID), zap.Error(err))
	}
	return &msg, nil
}

func (e *Engine) enqueue(ctx context.Context, s *Session, rec wire.MessageRecord) error {
	if e.publisher == nil {
		return fmt.Errorf("no publisher")
	}
	return e.publisher.Enqueue(ctx, outbox.Job{
		Group: s.group.Pub,
		MsgID: rec.ID,
		Path:  graph.Message(s.group.Pub, rec.ID),
		Node:  rec.Node(),
		OnAck: func() { e.markSent(s, rec.ID) },
	})
}

// Resend republishes every pending message the local identity authored in
// group. Nothing retries on its own; this is the caller-level retry.
func (e *Engine) Resend(ctx context.Context, group string) (int, error) {
	s, err := e.session(group)
	if err != nil {
		return 0, err
	}
	pending, err := e.db.PendingMessages(group, e.self.Pub)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	for _, m := range pending {
		if err := e.enqueue(ctx, s, recordFromMessage(m)); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}

func (e *Engine) markSent(s *Session, msgID string) {
	s.mu.Lock()
	changed, err := e.db.MarkMessageSent(s.group.Pub, msgID)
	if err == nil {
		s.markSentInViewLocked(msgID)
	}
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to mark sent", zap.String("group", s.group.Pub), zap.String("msg_id", msgID), zap.Error(err))
		return
	}
	if changed {
		e.bus.Emit(bus.MessageSent, s.group.Pub, "msg_id", msgID)
	}
}

// onMessage handles one event of the messages subscription. Events form an
// unordered multiset: admission is keyed by msgId and display order comes
// from timestamps, never from arrival.
func (e *Engine) onMessage(s *Session, ev graph.Event) {
	if s.settle != nil {
		s.settle.touch()
	}
	if ev.Tombstone() {
		e.onMessageTombstone(s, ev.Key)
		return
	}

	rec, err := wire.DecodeMessage(ev.Key, ev.Value)
	if err != nil {
		e.dropMessage(s, ev.Key, DropInvalid, err)
		return
	}
	if rec.Timestamp < s.group.JoinedAt {
		e.dropMessage(s, rec.ID, DropBeforeJoin, nil)
		return
	}

	self := rec.SenderPub == e.self.Pub
	s.mu.Lock()
	existing, err := e.db.GetMessage(s.group.Pub, rec.ID)
	if err != nil {
		s.mu.Unlock()
		e.logger.Error("failed to look up message", zap.String("group", s.group.Pub), zap.String("msg_id", rec.ID), zap.Error(err))
		return
	}
	if existing != nil {
		s.mu.Unlock()
		if existing.SenderPub == e.self.Pub && existing.Status == store.StatusPending {
			// Our own write came back through the graph: it is delivered.
			e.markSent(s, rec.ID)
		}
		if existing.ContentType == store.ContentLeaveNotification {
			// A replayed leave still has to win over a presence value that
			// reached us first.
			e.leaveMember(s, existing.SenderPub, existing.Timestamp)
		}
		return
	}

	msg := messageFromRecord(s.group.Pub, rec, store.StatusSent)
	inserted, err := e.db.InsertMessage(&msg)
	if err == nil && inserted && s.focused {
		s.addToViewLocked(msg)
	}
	focused := s.focused
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to save message", zap.String("group", s.group.Pub), zap.String("msg_id", rec.ID), zap.Error(err))
		return
	}
	if !inserted {
		return
	}

	e.touchPreview(s.group.Pub, rec, self || focused)
	e.bus.Emit(bus.MessageAdded, s.group.Pub, "msg_id", rec.ID, "sender", rec.SenderPub, "status", string(msg.Status))

	if rec.ContentType == wire.LeaveNotification {
		e.leaveMember(s, rec.SenderPub, rec.Timestamp)
	}
}

func (e *Engine) onMessageTombstone(s *Session, msgID string) {
	s.mu.Lock()
	deleted, err := e.db.DeleteMessage(s.group.Pub, msgID)
	s.removeFromViewLocked(msgID)
	var remaining int64
	if err == nil && deleted {
		remaining, err = e.db.CountMessages(s.group.Pub)
		if err == nil && remaining == 0 {
			err = e.db.DeletePreview(s.group.Pub)
		}
	}
	s.mu.Unlock()

	if err != nil {
		e.logger.Error("failed to apply message tombstone", zap.String("group", s.group.Pub), zap.String("msg_id", msgID), zap.Error(err))
		return
	}
	if deleted {
		e.bus.Emit(bus.MessageRemoved, s.group.Pub, "msg_id", msgID)
	}
}

func (e *Engine) dropMessage(s *Session, msgID, reason string, err error) {
	fields := []zap.Field{zap.String("group", s.group.Pub), zap.String("msg_id", msgID), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	e.logger.Debug("dropping inbound message", fields...)
	e.bus.Emit(bus.MessageDropped, s.group.Pub, "msg_id", msgID, "reason", reason)
}

// touchPreview records rec as the group's latest activity if it is newer than
// the stored preview, and advances the read marker when read is set.
func (e *Engine) touchPreview(group string, rec wire.MessageRecord, read bool) {
	err := e.db.UpsertPreview(&store.Preview{
		GroupPub:      group,
		Summary:       wire.Summary(rec),
		LastTimestamp: rec.Timestamp,
	})
	if err == nil && read {
		err = e.db.SetReadMarker(group, rec.Timestamp)
	}
	if err != nil {
		e.logger.Error("failed to update preview", zap.String("group", group), zap.Error(err))
	}
}

// Focus makes group the one whose view is maintained, loads its latest page
// and marks it read. Any previously focused group loses its view.
func (e *Engine) Focus(group string) ([]store.Message, error) {
	s, err := e.session(group)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	others := make([]*Session, 0, len(e.sessions))
	for pub, o := range e.sessions {
		if pub != group {
			others = append(others, o)
		}
	}
	e.mu.Unlock()
	for _, o := range others {
		o.mu.Lock()
		o.focused = false
		o.loaded = false
		o.resetViewLocked()
		o.mu.Unlock()
	}

	s.mu.Lock()
	s.focused = true
	s.loaded = false
	s.resetViewLocked()
	_, err = e.loadPageLocked(s)
	page := s.viewCopyLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := e.markRead(group); err != nil {
		return nil, err
	}
	return page, nil
}

// Unfocus stops maintaining the view of group.
func (e *Engine) Unfocus(group string) error {
	s, err := e.session(group)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.focused = false
	s.loaded = false
	s.resetViewLocked()
	s.mu.Unlock()
	return nil
}

// View returns the loaded messages of group in display order.
func (e *Engine) View(group string) ([]store.Message, error) {
	s, err := e.session(group)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewCopyLocked(), nil
}

// LoadMore loads the next older page into the view of the focused group and
// returns the rows it read. Once a short page comes back the cursor is cleared
// and further calls return nothing.
func (e *Engine) LoadMore(group string) ([]store.Message, error) {
	s, err := e.session(group)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.focused {
		return nil, ErrNotFocused
	}
	return e.loadPageLocked(s)
}

// HasMore reports whether older history may still be loaded for group.
func (e *Engine) HasMore(group string) (bool, error) {
	s, err := e.session(group)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded || s.cursor != 0, nil
}

func (e *Engine) loadPageLocked(s *Session) ([]store.Message, error) {
	var before int64
	if s.loaded {
		if s.cursor == 0 {
			return nil, nil
		}
		before = s.cursor
	}

	rows, err := e.db.ListMessagesBefore(s.group.Pub, before, e.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	s.loaded = true
	for _, m := range rows {
		s.addToViewLocked(m)
	}
	if len(rows) < e.opts.PageSize {
		s.cursor = 0
	} else {
		s.cursor = rows[0].ID
	}
	return rows, nil
}

func messageFromRecord(group string, rec wire.MessageRecord, st store.MessageStatus) store.Message {
	return store.Message{
		GroupPub:    group,
		MsgID:       rec.ID,
		SenderPub:   rec.SenderPub,
		SenderAlias: rec.SenderAlias,
		Content:     rec.Content,
		ContentType: store.ContentType(rec.ContentType),
		Timestamp:   rec.Timestamp,
		Status:      st,
	}
}

func recordFromMessage(m store.Message) wire.MessageRecord {
	return wire.MessageRecord{
		ID:          m.MsgID,
		SenderPub:   m.SenderPub,
		SenderAlias: m.SenderAlias,
		Content:     m.Content,
		ContentType: wire.ContentType(m.ContentType),
		Timestamp:   m.Timestamp,
	}
}

// MarkRead marks every message of group as read.
func (e *Engine) MarkRead(group string) error {
	if _, err := e.session(group); err != nil {
		return err
	}
	return e.markRead(group)
}

func (e *Engine) markRead(group string) error {
	return view.MarkRead(e.db, group)
}
