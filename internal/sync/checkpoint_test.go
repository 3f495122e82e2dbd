package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/store"
)

func TestCheckpointsRoundTrip(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "huddle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)

	cp := NewCheckpoints(db, nil)
	_, ok, err := cp.Time(CheckpointSnapshot)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)
	cp.Mark(CheckpointSnapshot, at)
	cp.Mark(CheckpointSnapshot, at.Add(time.Minute))

	got, ok, err := cp.Time(CheckpointSnapshot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at.Add(time.Minute)))
}

func TestNilCheckpoints(t *testing.T) {
	var cp *Checkpoints
	cp.Mark(CheckpointConnect, time.Now())
	_, ok, err := cp.Time(CheckpointConnect)
	assert.NoError(t, err)
	assert.False(t, ok)
}
