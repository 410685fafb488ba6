package store

import (
	"database/sql"
	"time"
)

// UpsertGroup inserts or updates a group record. JoinedAt and the keypair are
// kept from the first write so a resumed membership keeps its join-time filter.
func (db *DB) UpsertGroup(g *Group) error {
	now := time.Now().UnixMilli()
	createdAt := g.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	_, err := db.Exec(`
		INSERT INTO chat_groups (pub, name, keypair, joined_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pub) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chat_groups.name END,
			keypair = CASE WHEN chat_groups.keypair = '' THEN excluded.keypair ELSE chat_groups.keypair END,
			updated_at = excluded.updated_at`,
		g.Pub, g.Name, g.Keypair, g.JoinedAt, createdAt, now)
	return err
}

// GetGroup returns a group by public id, or nil if it is not known locally.
func (db *DB) GetGroup(pub string) (*Group, error) {
	var g Group
	err := db.QueryRow(`
		SELECT pub, name, keypair, joined_at, created_at
		FROM chat_groups WHERE pub = ?`, pub).
		Scan(&g.Pub, &g.Name, &g.Keypair, &g.JoinedAt, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all known groups ordered by join time.
func (db *DB) ListGroups() ([]Group, error) {
	rows, err := db.Query(`
		SELECT pub, name, keypair, joined_at, created_at
		FROM chat_groups
		ORDER BY joined_at ASC, pub ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Pub, &g.Name, &g.Keypair, &g.JoinedAt, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SetGroupName updates the display name of a group. Empty names are ignored.
func (db *DB) SetGroupName(pub, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	n, err := rowsAffected(db.Exec(`
		UPDATE chat_groups SET name = ?, updated_at = ?
		WHERE pub = ? AND name != ?`,
		name, time.Now().UnixMilli(), pub, name))
	return n > 0, err
}

// DeleteGroup removes a group. Members, messages, previews, read markers and
// votes go with it through ON DELETE CASCADE.
func (db *DB) DeleteGroup(pub string) error {
	_, err := db.Exec(`DELETE FROM chat_groups WHERE pub = ?`, pub)
	return err
}
