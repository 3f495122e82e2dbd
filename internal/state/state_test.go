package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/model"
)

func TestPresenceKeepsLocalUserOnline(t *testing.T) {
	p := NewPresence("me")
	p.Set("u1", true)
	p.Set("me", false)
	p.Set("u2", true)
	p.Set("u2", false)

	assert.True(t, p.Online("me"))
	assert.True(t, p.Online("u1"))
	assert.False(t, p.Online("u2"))
	assert.Equal(t, []string{"me", "u1"}, p.IDs())
}

func TestChannelStoreNeverDuplicates(t *testing.T) {
	s := NewChannelStore()
	s.Replace([]model.Channel{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	assert.False(t, s.Append(model.Channel{ID: "b"}))
	assert.False(t, s.Prepend(model.Channel{ID: "a"}))
	assert.True(t, s.Append(model.Channel{ID: "c"}))
	assert.True(t, s.Prepend(model.Channel{ID: "d"}))
	assert.Equal(t, []string{"d", "a", "b", "c"}, s.IDs())
}

func TestChannelStoreTouchMovesToFront(t *testing.T) {
	s := NewChannelStore()
	s.Replace([]model.Channel{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Touch("c", at))
	assert.Equal(t, []string{"c", "a", "b"}, s.IDs())
	ch, ok := s.Get("c")
	require.True(t, ok)
	assert.True(t, ch.LastActivityAt.Equal(at))

	assert.False(t, s.Touch("zz", at))
}

func TestActiveChannelUnreadIsZero(t *testing.T) {
	s := NewChannelStore()
	s.Replace([]model.Channel{{ID: "a"}, {ID: "b"}})
	s.IncUnread("a")
	s.IncUnread("a")
	s.IncUnread("b")
	assert.Equal(t, 2, s.Unread("a"))

	s.SetActive("a")
	assert.Equal(t, 0, s.Unread("a"))
	assert.Equal(t, 0, s.IncUnread("a"))
	assert.Equal(t, 1, s.UnreadTotal())

	s.SetActive("b")
	assert.Equal(t, 0, s.Unread("a"), "counter was reset on activation")
}

func TestReplaceDropsUnreadOfRemovedChannels(t *testing.T) {
	s := NewChannelStore()
	s.Replace([]model.Channel{{ID: "a"}, {ID: "b"}})
	s.IncUnread("b")
	s.Replace([]model.Channel{{ID: "a"}})
	s.Append(model.Channel{ID: "b"})
	assert.Equal(t, 0, s.Unread("b"))
}

func TestLedgerMergeKeepsRicherRecords(t *testing.T) {
	tests := []struct {
		name     string
		held     []model.JoinRequestRef
		incoming []model.JoinRequestRef
		want     []model.JoinRequestRef
	}{
		{
			name:     "empty incoming keeps populated",
			held:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x")},
			incoming: nil,
			want:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x")},
		},
		{
			name:     "bare-only incoming keeps populated",
			held:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x")},
			incoming: []model.JoinRequestRef{model.Bare("u1"), model.Bare("u2")},
			want:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x")},
		},
		{
			name:     "populated incoming wins and upgrades bare entries",
			held:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x")},
			incoming: []model.JoinRequestRef{model.Bare("u1"), model.Populated("u2", "bo", "b@x")},
			want:     []model.JoinRequestRef{model.Populated("u1", "ana", "a@x"), model.Populated("u2", "bo", "b@x")},
		},
		{
			name:     "bare over bare",
			held:     []model.JoinRequestRef{model.Bare("u1")},
			incoming: []model.JoinRequestRef{model.Bare("u2"), model.Bare("u2")},
			want:     []model.JoinRequestRef{model.Bare("u2")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			l.Merge("c", tt.held)
			got := l.Merge("c", tt.incoming)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedgerAddAndRemove(t *testing.T) {
	l := NewLedger()
	l.Merge("c", []model.JoinRequestRef{model.Populated("u7", "ana", "a@x")})

	assert.True(t, l.Add("c", model.Populated("u9", "bo", "b@x")))
	assert.False(t, l.Add("c", model.Bare("u9")))
	got := l.Get("c")
	require.Len(t, got, 2)
	assert.Equal(t, "u7", got[0].ID)
	assert.Equal(t, "u9", got[1].ID)
	assert.True(t, got[1].IsPopulated())

	assert.True(t, l.Remove("c", "u7"))
	assert.False(t, l.Remove("c", "u7"))
	assert.Equal(t, []model.JoinRequestRef{model.Populated("u9", "bo", "b@x")}, l.Get("c"))

	l.Retain(nil)
	assert.Empty(t, l.Get("c"))
}

func msg(id, channel, content string) model.Message {
	return model.Message{ID: id, ChannelID: channel, Content: content}
}

func TestTimelineAppendIsIdempotent(t *testing.T) {
	tl := NewTimeline()
	tl.Open("c")
	assert.True(t, tl.Append(msg("m1", "c", "hi")))
	assert.False(t, tl.Append(msg("m1", "c", "hi")))
	assert.False(t, tl.Append(msg("m2", "other", "x")))
	assert.Equal(t, 1, tl.Len())
}

func TestTimelineDeletionFidelity(t *testing.T) {
	tl := NewTimeline()
	tl.Open("c")
	tl.Append(msg("m1", "c", "hello"))

	require.True(t, tl.MarkDeleted(model.Deletion{ID: "m1", Content: model.AdminTombstone, DeletedBy: "admin"}))
	got, _ := tl.Get("m1")
	assert.Equal(t, model.AdminTombstone, got.Content)

	tl.MarkDeleted(model.Deletion{ID: "m1"})
	got, _ = tl.Get("m1")
	assert.Equal(t, model.AdminTombstone, got.Content, "generic must not replace admin tombstone")
	assert.Equal(t, "admin", got.DeletedBy)
	assert.True(t, got.Deleted)

	tl.MarkDeleted(model.Deletion{ID: "m1", Content: model.AdminTombstone, DeletedBy: "admin"})
	again, _ := tl.Get("m1")
	assert.Equal(t, got, again)

	assert.False(t, tl.Append(msg("m1", "c", "hello")))
	got, _ = tl.Get("m1")
	assert.True(t, got.Deleted, "a live copy never undeletes")
}

func TestTimelineGenericThenAdmin(t *testing.T) {
	tl := NewTimeline()
	tl.Open("c")
	tl.Append(msg("m1", "c", "hello"))
	tl.MarkDeleted(model.Deletion{ID: "m1"})
	got, _ := tl.Get("m1")
	assert.Equal(t, model.GenericTombstone, got.Content)

	tl.MarkDeleted(model.Deletion{ID: "m1", Content: model.AdminTombstone})
	got, _ = tl.Get("m1")
	assert.Equal(t, model.AdminTombstone, got.Content)
}

func TestTimelineBaselineKeepsLiveState(t *testing.T) {
	tl := NewTimeline()
	tl.Open("c")
	tl.Append(msg("m2", "c", "live"))
	tl.MarkDeleted(model.Deletion{ID: "m2"})
	tl.Append(msg("m3", "c", "newest"))

	require.True(t, tl.Baseline("c", []model.Message{msg("m1", "c", "old"), msg("m2", "c", "live")}))
	ids := []string{}
	for _, m := range tl.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	m2, _ := tl.Get("m2")
	assert.True(t, m2.Deleted)

	assert.False(t, tl.Baseline("other", nil))
}
