package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/store"
)

// Checkpoints records synchronization milestones in the sync_state table so
// they survive daemon restarts. A nil *Checkpoints records nothing.
type Checkpoints struct {
	db     *store.DB
	logger *zap.Logger
}

// NewCheckpoints creates a checkpoint recorder.
func NewCheckpoints(db *store.DB, logger *zap.Logger) *Checkpoints {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpoints{db: db, logger: logger}
}

// Mark stores at under key. Failures are logged.
func (c *Checkpoints) Mark(key string, at time.Time) {
	if c == nil {
		return
	}
	if err := c.Set(key, at.UTC().Format(time.RFC3339Nano)); err != nil {
		c.logger.Warn("checkpoint write failed", zap.String("key", key), zap.Error(err))
	}
}

// Set updates a sync checkpoint value.
func (c *Checkpoints) Set(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := c.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	return nil
}

// Time returns the time stored under key. ok is false when the key was
// never marked.
func (c *Checkpoints) Time(key string) (t time.Time, ok bool, err error) {
	if c == nil {
		return time.Time{}, false, nil
	}
	var value string
	err = c.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %s: %w", key, err)
	}
	return t, true, nil
}
