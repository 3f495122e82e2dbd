package state

import (
	"time"

	"github.com/matheus3301/huddle/internal/model"
)

// ChannelStore is the ordered list of channels the local user belongs to,
// most recent activity first, with per-channel unread counters. Entries are
// keyed by channel identifier; the store never holds two entries with the
// same identifier.
type ChannelStore struct {
	order  []model.Channel
	unread map[string]int
	active string
}

// NewChannelStore creates an empty store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{unread: make(map[string]int)}
}

func (s *ChannelStore) index(id string) int {
	for i := range s.order {
		if s.order[i].ID == id {
			return i
		}
	}
	return -1
}

// Len returns the number of channels.
func (s *ChannelStore) Len() int {
	return len(s.order)
}

// Has reports whether id is in the store.
func (s *ChannelStore) Has(id string) bool {
	return s.index(id) >= 0
}

// Get returns a copy of the channel with the given id.
func (s *ChannelStore) Get(id string) (model.Channel, bool) {
	i := s.index(id)
	if i < 0 {
		return model.Channel{}, false
	}
	return s.order[i].Clone(), true
}

// List returns copies of all channels in store order.
func (s *ChannelStore) List() []model.Channel {
	out := make([]model.Channel, len(s.order))
	for i := range s.order {
		out[i] = s.order[i].Clone()
	}
	return out
}

// IDs returns channel identifiers in store order.
func (s *ChannelStore) IDs() []string {
	ids := make([]string, len(s.order))
	for i := range s.order {
		ids[i] = s.order[i].ID
	}
	return ids
}

// Replace swaps the whole content for channels, keeping the first entry of
// any duplicated identifier. Unread counters of channels that are gone are
// dropped.
func (s *ChannelStore) Replace(channels []model.Channel) {
	seen := make(map[string]struct{}, len(channels))
	order := make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.ID == "" {
			continue
		}
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		seen[ch.ID] = struct{}{}
		order = append(order, ch.Clone())
	}
	s.order = order
	for id := range s.unread {
		if _, ok := seen[id]; !ok {
			delete(s.unread, id)
		}
	}
}

// Append inserts ch at the end unless its identifier is already present.
func (s *ChannelStore) Append(ch model.Channel) bool {
	if ch.ID == "" || s.Has(ch.ID) {
		return false
	}
	s.order = append(s.order, ch.Clone())
	return true
}

// Prepend inserts ch at the front unless its identifier is already present.
func (s *ChannelStore) Prepend(ch model.Channel) bool {
	if ch.ID == "" || s.Has(ch.ID) {
		return false
	}
	s.order = append([]model.Channel{ch.Clone()}, s.order...)
	return true
}

// Touch moves the channel to the front and stamps its last activity. It
// returns false for unknown channels.
func (s *ChannelStore) Touch(id string, at time.Time) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	ch := s.order[i]
	if at.After(ch.LastActivityAt) {
		ch.LastActivityAt = at
	}
	copy(s.order[1:i+1], s.order[:i])
	s.order[0] = ch
	return true
}

// Update applies fn to the stored channel in place.
func (s *ChannelStore) Update(id string, fn func(*model.Channel)) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	fn(&s.order[i])
	return true
}

// Remove deletes the channel and its unread counter.
func (s *ChannelStore) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.unread, id)
	return true
}

// Active returns the active channel identifier, empty when none.
func (s *ChannelStore) Active() string {
	return s.active
}

// SetActive makes id the active channel and resets its unread counter in the
// same step.
func (s *ChannelStore) SetActive(id string) {
	s.active = id
	delete(s.unread, id)
}

// IncUnread bumps the unread counter of a non-active channel. The active
// channel always reads zero.
func (s *ChannelStore) IncUnread(id string) int {
	if id == s.active {
		return 0
	}
	s.unread[id]++
	return s.unread[id]
}

// Unread returns the counter for id.
func (s *ChannelStore) Unread(id string) int {
	if id == s.active {
		return 0
	}
	return s.unread[id]
}

// UnreadTotal sums all counters.
func (s *ChannelStore) UnreadTotal() int {
	total := 0
	for id, n := range s.unread {
		if id != s.active {
			total += n
		}
	}
	return total
}
