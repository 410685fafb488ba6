package store

import (
	"database/sql"
	"math"
	"time"
)

const messageColumns = `id, group_pub, msg_id, sender_pub, sender_alias, content, content_type, timestamp, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	err := s.Scan(&m.ID, &m.GroupPub, &m.MsgID, &m.SenderPub, &m.SenderAlias, &m.Content, &m.ContentType, &m.Timestamp, &m.Status)
	return m, err
}

// InsertMessage stores a message unless a row with the same (group_pub, msg_id)
// already exists. It reports whether the row was inserted and, if so, sets m.ID.
func (db *DB) InsertMessage(m *Message) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO messages (group_pub, msg_id, sender_pub, sender_alias, content, content_type, timestamp, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_pub, msg_id) DO NOTHING`,
		m.GroupPub, m.MsgID, m.SenderPub, m.SenderAlias, m.Content, m.ContentType, m.Timestamp, m.Status, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, err
	}
	m.ID = id
	return true, nil
}

// GetMessage returns a message by its network id, or nil if it is not cached.
func (db *DB) GetMessage(groupPub, msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE group_pub = ? AND msg_id = ?`, groupPub, msgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMessageSent moves a pending message to sent. It reports whether the
// status changed; calling it on an already sent message is a no-op.
func (db *DB) MarkMessageSent(groupPub, msgID string) (bool, error) {
	n, err := rowsAffected(db.Exec(`
		UPDATE messages SET status = ?
		WHERE group_pub = ? AND msg_id = ? AND status = ?`,
		StatusSent, groupPub, msgID, StatusPending))
	return n > 0, err
}

// ListMessagesBefore returns up to limit messages of a group whose row id is
// strictly below beforeID, oldest first. beforeID <= 0 means "latest page".
func (db *DB) ListMessagesBefore(groupPub string, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if beforeID <= 0 {
		beforeID = math.MaxInt64
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE group_pub = ? AND id < ?
		ORDER BY id DESC
		LIMIT ?`, groupPub, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PendingMessages returns the unacknowledged messages a sender authored in a group.
func (db *DB) PendingMessages(groupPub, senderPub string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE group_pub = ? AND sender_pub = ? AND status = ?
		ORDER BY id ASC`, groupPub, senderPub, StatusPending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteMessage removes a single message and reports whether it existed.
func (db *DB) DeleteMessage(groupPub, msgID string) (bool, error) {
	n, err := rowsAffected(db.Exec(`DELETE FROM messages WHERE group_pub = ? AND msg_id = ?`, groupPub, msgID))
	return n > 0, err
}

// CountMessages returns the number of cached messages in a group.
func (db *DB) CountMessages(groupPub string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE group_pub = ?`, groupPub).Scan(&n)
	return n, err
}

// DeleteInvalidMessages purges rows that fail the admission predicate: empty
// content or sender fields, a non-positive timestamp, an unknown content type,
// or a timestamp older than the local join time of the group.
func (db *DB) DeleteInvalidMessages() (int64, error) {
	return rowsAffected(db.Exec(`
		DELETE FROM messages
		WHERE content = ''
			OR sender_pub = ''
			OR sender_alias = ''
			OR timestamp <= 0
			OR content_type NOT IN (?, ?, ?)
			OR timestamp < (SELECT g.joined_at FROM chat_groups g WHERE g.pub = messages.group_pub)`,
		ContentText, ContentVoice, ContentLeaveNotification))
}
