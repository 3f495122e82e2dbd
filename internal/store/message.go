package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/huddle/internal/model"
)

func deletionRank(deleted bool, content string) int {
	switch {
	case !deleted:
		return 0
	case content == model.GenericTombstone:
		return 1
	default:
		return 2
	}
}

// UpsertMessages caches msgs, idempotent on the message id. A cached
// deletion is never undone and a generic tombstone never replaces an
// authoritative one.
func (db *DB) UpsertMessages(msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		row := fromModel(m)
		var held struct {
			deleted   bool
			content   string
			deletedBy string
		}
		err := tx.QueryRow(`SELECT is_deleted, content, deleted_by FROM messages WHERE msg_id = ?`, m.ID).
			Scan(&held.deleted, &held.content, &held.deletedBy)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read cached message %s: %w", m.ID, err)
		default:
			if deletionRank(row.Deleted, row.Content) < deletionRank(held.deleted, held.content) {
				row.Deleted = held.deleted
				row.Content = held.content
				row.FileURL, row.FileKind = "", ""
			}
			if row.DeletedBy == "" {
				row.DeletedBy = held.deletedBy
			}
		}
		_, err = tx.Exec(`
			INSERT INTO messages (channel_id, msg_id, sender_id, sender_name, content, file_url, file_kind, is_deleted, deleted_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(msg_id) DO UPDATE SET
				sender_name = CASE WHEN excluded.sender_name != '' THEN excluded.sender_name ELSE messages.sender_name END,
				content = excluded.content,
				file_url = excluded.file_url,
				file_kind = excluded.file_kind,
				is_deleted = excluded.is_deleted,
				deleted_by = excluded.deleted_by,
				updated_at = excluded.updated_at`,
			row.ChannelID, row.MsgID, row.SenderID, row.SenderName, row.Content, row.FileURL, row.FileKind,
			row.Deleted, row.DeletedBy, row.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// MarkMessageDeleted applies d to the cached copy, if any.
func (db *DB) MarkMessageDeleted(d model.Deletion) error {
	var deleted bool
	var content string
	err := db.QueryRow(`SELECT is_deleted, content FROM messages WHERE msg_id = ?`, d.ID).Scan(&deleted, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cached message %s: %w", d.ID, err)
	}
	tombstone := d.Tombstone()
	if deletionRank(true, tombstone) < deletionRank(deleted, content) {
		tombstone = content
	}
	_, err = db.Exec(`
		UPDATE messages SET
			is_deleted = 1,
			content = ?,
			file_url = '',
			file_kind = '',
			deleted_by = CASE WHEN ? != '' THEN ? ELSE deleted_by END,
			updated_at = ?
		WHERE msg_id = ?`,
		tombstone, d.DeletedBy, d.DeletedBy, time.Now().UnixMilli(), d.ID)
	if err != nil {
		return fmt.Errorf("delete cached message %s: %w", d.ID, err)
	}
	return nil
}

// ListMessages returns cached messages of a channel, newest first, using
// keyset pagination on the creation time.
func (db *DB) ListMessages(channelID string, before int64, limit int) ([]CachedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, channel_id, msg_id, sender_id, sender_name, content, file_url, file_kind, is_deleted, deleted_by, created_at
		FROM messages
		WHERE channel_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, channelID, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []CachedMessage
	for rows.Next() {
		var m CachedMessage
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, m *CachedMessage, extra ...any) error {
	dest := []any{
		&m.ID, &m.ChannelID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Content,
		&m.FileURL, &m.FileKind, &m.Deleted, &m.DeletedBy, &m.CreatedAt,
	}
	return s.Scan(append(dest, extra...)...)
}

func fromModel(m model.Message) CachedMessage {
	row := CachedMessage{
		ChannelID:  m.ChannelID,
		MsgID:      m.ID,
		SenderID:   m.Sender.ID,
		SenderName: m.Sender.Username,
		Content:    m.Content,
		Deleted:    m.Deleted,
		DeletedBy:  m.DeletedBy,
	}
	if m.File != nil && !m.Deleted {
		row.FileURL = m.File.URL
		row.FileKind = m.File.Kind
	}
	if !m.CreatedAt.IsZero() {
		row.CreatedAt = m.CreatedAt.UnixMilli()
	}
	return row
}

// Model converts a cached row back into a domain message.
func (m CachedMessage) Model() model.Message {
	out := model.Message{
		ID:        m.MsgID,
		ChannelID: m.ChannelID,
		Sender:    model.User{ID: m.SenderID, Username: m.SenderName},
		Content:   m.Content,
		Deleted:   m.Deleted,
		DeletedBy: m.DeletedBy,
	}
	if m.FileURL != "" {
		out.File = &model.Attachment{URL: m.FileURL, Kind: m.FileKind}
	}
	if m.CreatedAt > 0 {
		out.CreatedAt = time.UnixMilli(m.CreatedAt)
	}
	return out
}
