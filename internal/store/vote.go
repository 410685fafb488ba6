package store

// UpsertVote records or replaces a voter's clear vote.
func (db *DB) UpsertVote(v *Vote) error {
	_, err := db.Exec(`
		INSERT INTO votes (group_pub, voter_id, agreed, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_pub, voter_id) DO UPDATE SET
			agreed = excluded.agreed,
			timestamp = excluded.timestamp`,
		v.GroupPub, v.VoterID, v.Agreed, v.Timestamp)
	return err
}

// DeleteVote removes a voter's vote and reports whether one existed.
func (db *DB) DeleteVote(groupPub, voterID string) (bool, error) {
	n, err := rowsAffected(db.Exec(`DELETE FROM votes WHERE group_pub = ? AND voter_id = ?`, groupPub, voterID))
	return n > 0, err
}

// ListVotes returns the recorded votes of a group.
func (db *DB) ListVotes(groupPub string) ([]Vote, error) {
	rows, err := db.Query(`
		SELECT group_pub, voter_id, agreed, timestamp
		FROM votes WHERE group_pub = ?
		ORDER BY timestamp ASC`, groupPub)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var votes []Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.GroupPub, &v.VoterID, &v.Agreed, &v.Timestamp); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
