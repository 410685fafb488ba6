package store

import "time"

// UpsertMember inserts or updates a member record. An empty alias or zero
// joinedAt never overwrites a known value.
func (db *DB) UpsertMember(m *Member) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO members (group_pub, member_pub, alias, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_pub, member_pub) DO UPDATE SET
			alias = CASE WHEN excluded.alias != '' THEN excluded.alias ELSE members.alias END,
			joined_at = CASE WHEN excluded.joined_at > 0 THEN excluded.joined_at ELSE members.joined_at END,
			updated_at = excluded.updated_at`,
		m.GroupPub, m.MemberPub, m.Alias, m.JoinedAt, now)
	return err
}

// DeleteMember removes a member and reports whether a row was deleted.
func (db *DB) DeleteMember(groupPub, memberPub string) (bool, error) {
	n, err := rowsAffected(db.Exec(`DELETE FROM members WHERE group_pub = ? AND member_pub = ?`, groupPub, memberPub))
	return n > 0, err
}

// ListMembers returns the cached members of a group ordered by join time.
func (db *DB) ListMembers(groupPub string) ([]Member, error) {
	rows, err := db.Query(`
		SELECT group_pub, member_pub, alias, joined_at
		FROM members
		WHERE group_pub = ?
		ORDER BY joined_at ASC, member_pub ASC`, groupPub)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GroupPub, &m.MemberPub, &m.Alias, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RecordDeparture remembers that a member left a group at leftAt. A later
// departure replaces an earlier one.
func (db *DB) RecordDeparture(groupPub, memberPub string, leftAt int64) error {
	_, err := db.Exec(`
		INSERT INTO departures (group_pub, member_pub, left_at)
		VALUES (?, ?, ?)
		ON CONFLICT(group_pub, member_pub) DO UPDATE SET
			left_at = MAX(departures.left_at, excluded.left_at)`,
		groupPub, memberPub, leftAt)
	return err
}

// ListDepartures returns the leave time of every member known to have left a group.
func (db *DB) ListDepartures(groupPub string) (map[string]int64, error) {
	rows, err := db.Query(`SELECT member_pub, left_at FROM departures WHERE group_pub = ?`, groupPub)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var pub string
		var ts int64
		if err := rows.Scan(&pub, &ts); err != nil {
			return nil, err
		}
		out[pub] = ts
	}
	return out, rows.Err()
}
