package state

import "github.com/matheus3301/huddle/internal/model"

// Timeline holds the messages of the one open channel in arrival order.
// Deleted messages keep their slot.
type Timeline struct {
	channelID string
	msgs      []model.Message
	index     map[string]int
}

// NewTimeline creates a closed timeline.
func NewTimeline() *Timeline {
	return &Timeline{index: make(map[string]int)}
}

// Open resets the timeline for channelID.
func (t *Timeline) Open(channelID string) {
	t.channelID = channelID
	t.msgs = nil
	t.index = make(map[string]int)
}

// Close empties the timeline.
func (t *Timeline) Close() {
	t.Open("")
}

// ChannelID returns the open channel, empty when closed.
func (t *Timeline) ChannelID() string {
	return t.channelID
}

// Len returns the number of held messages.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []model.Message {
	return append([]model.Message(nil), t.msgs...)
}

// Get returns the message with the given id.
func (t *Timeline) Get(id string) (model.Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return model.Message{}, false
	}
	return t.msgs[i], true
}

// Append adds m, or refreshes the held copy when the id is known. A deleted
// message is never brought back by a later non-deleted copy. Messages of
// other channels are ignored.
func (t *Timeline) Append(m model.Message) bool {
	if m.ID == "" || t.channelID == "" || m.ChannelID != t.channelID {
		return false
	}
	if i, ok := t.index[m.ID]; ok {
		held := t.msgs[i]
		if held.Deleted {
			if m.Deleted {
				t.applyDeletion(i, model.Deletion{ID: m.ID, Content: m.Content, DeletedBy: m.DeletedBy})
			}
			return false
		}
		t.msgs[i] = m
		return false
	}
	t.index[m.ID] = len(t.msgs)
	t.msgs = append(t.msgs, m)
	return true
}

// Baseline folds a fetched history page into the timeline. Messages already
// held (typically delivered by push while the fetch was in flight) keep
// their deletion state and messages missing from the page are kept.
func (t *Timeline) Baseline(channelID string, history []model.Message) bool {
	if channelID != t.channelID {
		return false
	}
	live := t.msgs
	t.msgs = nil
	t.index = make(map[string]int, len(history)+len(live))
	for _, m := range history {
		if m.ChannelID == "" {
			m.ChannelID = channelID
		}
		t.Append(m)
	}
	for _, m := range live {
		if i, ok := t.index[m.ID]; ok {
			if m.Deleted {
				t.applyDeletion(i, model.Deletion{ID: m.ID, Content: m.Content, DeletedBy: m.DeletedBy})
			}
			continue
		}
		t.Append(m)
	}
	return true
}

// tombstoneRank orders deletion states so that weaker ones never replace
// stronger ones: live < generic tombstone < authoritative tombstone.
func tombstoneRank(m model.Message) int {
	switch {
	case !m.Deleted:
		return 0
	case m.Content == model.GenericTombstone:
		return 1
	default:
		return 2
	}
}

// MarkDeleted soft-deletes the message described by d. Applying the same
// deletion twice yields the same state. It reports whether the message is
// held.
func (t *Timeline) MarkDeleted(d model.Deletion) bool {
	i, ok := t.index[d.ID]
	if !ok {
		return false
	}
	t.applyDeletion(i, d)
	return true
}

func (t *Timeline) applyDeletion(i int, d model.Deletion) {
	next := t.msgs[i]
	next.Deleted = true
	next.Content = d.Tombstone()
	next.File = nil
	if d.DeletedBy != "" {
		next.DeletedBy = d.DeletedBy
	}
	if tombstoneRank(next) < tombstoneRank(t.msgs[i]) {
		return
	}
	t.msgs[i] = next
}

// Restore puts back a previously held copy of a message, used to roll back
// an optimistic deletion.
func (t *Timeline) Restore(m model.Message) bool {
	i, ok := t.index[m.ID]
	if !ok {
		return false
	}
	t.msgs[i] = m
	return true
}
