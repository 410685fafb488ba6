package store

import (
	"database/sql"
	"time"
)

// UpsertPreview records the latest message summary of a group. Events arrive
// in no particular order, so an older timestamp never replaces a newer one.
func (db *DB) UpsertPreview(p *Preview) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO previews (group_pub, summary, last_timestamp, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_pub) DO UPDATE SET
			summary = CASE WHEN excluded.last_timestamp >= previews.last_timestamp THEN excluded.summary ELSE previews.summary END,
			last_timestamp = MAX(previews.last_timestamp, excluded.last_timestamp),
			updated_at = excluded.updated_at`,
		p.GroupPub, p.Summary, p.LastTimestamp, now)
	return err
}

// GetPreview returns the preview of a group, or nil if it has none.
func (db *DB) GetPreview(groupPub string) (*Preview, error) {
	var p Preview
	err := db.QueryRow(`SELECT group_pub, summary, last_timestamp FROM previews WHERE group_pub = ?`, groupPub).
		Scan(&p.GroupPub, &p.Summary, &p.LastTimestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPreviews returns every stored preview.
func (db *DB) ListPreviews() ([]Preview, error) {
	rows, err := db.Query(`SELECT group_pub, summary, last_timestamp FROM previews ORDER BY last_timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var previews []Preview
	for rows.Next() {
		var p Preview
		if err := rows.Scan(&p.GroupPub, &p.Summary, &p.LastTimestamp); err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// DeletePreview removes the preview of a group.
func (db *DB) DeletePreview(groupPub string) error {
	_, err := db.Exec(`DELETE FROM previews WHERE group_pub = ?`, groupPub)
	return err
}

// SetReadMarker advances the read marker of a group. It never moves backwards.
func (db *DB) SetReadMarker(groupPub string, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO read_markers (group_pub, last_read_timestamp, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(group_pub) DO UPDATE SET
			last_read_timestamp = MAX(read_markers.last_read_timestamp, excluded.last_read_timestamp),
			updated_at = excluded.updated_at`,
		groupPub, ts, now)
	return err
}

// GetReadMarker returns the read marker of a group, or nil if none was recorded.
func (db *DB) GetReadMarker(groupPub string) (*ReadMarker, error) {
	var r ReadMarker
	err := db.QueryRow(`SELECT group_pub, last_read_timestamp FROM read_markers WHERE group_pub = ?`, groupPub).
		Scan(&r.GroupPub, &r.LastReadTimestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReadMarkers returns every stored read marker.
func (db *DB) ListReadMarkers() ([]ReadMarker, error) {
	rows, err := db.Query(`SELECT group_pub, last_read_timestamp FROM read_markers`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var markers []ReadMarker
	for rows.Next() {
		var r ReadMarker
		if err := rows.Scan(&r.GroupPub, &r.LastReadTimestamp); err != nil {
			return nil, err
		}
		markers = append(markers, r)
	}
	return markers, rows.Err()
}
