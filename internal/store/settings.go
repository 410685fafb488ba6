package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const (
	settingIdentityKeypair = "identity.keypair"
	settingIdentityAlias   = "identity.alias"
	checkpointPrefix       = "settled:"
)

// GetSetting returns a setting value, or "" if it has never been written.
func (db *DB) GetSetting(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// PutSetting writes a setting value.
func (db *DB) PutSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// IdentityKeypair returns the serialized member keypair of this profile, or "".
func (db *DB) IdentityKeypair() (string, error) {
	return db.GetSetting(settingIdentityKeypair)
}

// SaveIdentity persists the member keypair and alias in one transaction.
func (db *DB) SaveIdentity(keypair, alias string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for k, v := range map[string]string{settingIdentityKeypair: keypair, settingIdentityAlias: alias} {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// IdentityAlias returns the stored display alias, or "".
func (db *DB) IdentityAlias() (string, error) {
	return db.GetSetting(settingIdentityAlias)
}

// SaveCheckpoint records the time a group last settled.
func (db *DB) SaveCheckpoint(groupPub string, ts int64) error {
	return db.PutSetting(checkpointPrefix+groupPub, strconv.FormatInt(ts, 10))
}

// Checkpoint returns the time a group last settled, or 0.
func (db *DB) Checkpoint(groupPub string) (int64, error) {
	v, err := db.GetSetting(checkpointPrefix + groupPub)
	if err != nil || v == "" {
		return 0, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint %q: %w", v, err)
	}
	return ts, nil
}

// ClearHistory drops every cached message and the preview of a group.
func (db *DB) ClearHistory(groupPub string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := rowsAffected(tx.Exec(`DELETE FROM messages WHERE group_pub = ?`, groupPub))
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM previews WHERE group_pub = ?`, groupPub); err != nil {
		return 0, fmt.Errorf("clear preview: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// ForgetGroup removes a group and its checkpoint.
func (db *DB) ForgetGroup(groupPub string) error {
	if err := db.DeleteGroup(groupPub); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	_, err := db.Exec(`DELETE FROM settings WHERE key = ?`, checkpointPrefix+groupPub)
	return err
}
