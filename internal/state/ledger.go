package state

import "github.com/matheus3301/huddle/internal/model"

// Ledger keeps pending join requests per channel. A populated reference is
// never replaced by a bare one for the same user.
type Ledger struct {
	byChannel map[string][]model.JoinRequestRef
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byChannel: make(map[string][]model.JoinRequestRef)}
}

// Get returns a copy of the requests held for channelID.
func (l *Ledger) Get(channelID string) []model.JoinRequestRef {
	return append([]model.JoinRequestRef(nil), l.byChannel[channelID]...)
}

// Find returns the held reference for userID in channelID.
func (l *Ledger) Find(channelID, userID string) (model.JoinRequestRef, bool) {
	for _, r := range l.byChannel[channelID] {
		if r.ID == userID {
			return r, true
		}
	}
	return model.JoinRequestRef{}, false
}

func anyPopulated(refs []model.JoinRequestRef) bool {
	for _, r := range refs {
		if r.IsPopulated() {
			return true
		}
	}
	return false
}

// Merge folds an incoming list into the held one and returns the result.
// When the held list carries populated records and the incoming one carries
// none, the incoming list is discarded. Otherwise the incoming list wins, each
// bare entry upgraded from a held populated record with the same id.
func (l *Ledger) Merge(channelID string, incoming []model.JoinRequestRef) []model.JoinRequestRef {
	held := l.byChannel[channelID]
	if anyPopulated(held) && !anyPopulated(incoming) {
		return l.Get(channelID)
	}
	rich := make(map[string]model.JoinRequestRef, len(held))
	for _, r := range held {
		if r.IsPopulated() {
			rich[r.ID] = r
		}
	}
	merged := make([]model.JoinRequestRef, 0, len(incoming))
	pos := make(map[string]int, len(incoming))
	for _, r := range incoming {
		if r.ID == "" {
			continue
		}
		if !r.IsPopulated() {
			if h, ok := rich[r.ID]; ok {
				r = h
			}
		}
		if i, ok := pos[r.ID]; ok {
			if r.IsPopulated() && !merged[i].IsPopulated() {
				merged[i] = r
			}
			continue
		}
		pos[r.ID] = len(merged)
		merged = append(merged, r)
	}
	l.set(channelID, merged)
	return l.Get(channelID)
}

// Add appends ref if its user is not pending yet. A bare held entry is
// upgraded when ref is populated. It reports whether the ledger changed.
func (l *Ledger) Add(channelID string, ref model.JoinRequestRef) bool {
	if ref.ID == "" {
		return false
	}
	refs := l.byChannel[channelID]
	for i, r := range refs {
		if r.ID != ref.ID {
			continue
		}
		if ref.IsPopulated() && !r.IsPopulated() {
			refs[i] = ref
			return true
		}
		return false
	}
	l.byChannel[channelID] = append(refs, ref)
	return true
}

// Remove drops userID from channelID. Removing an absent user is a no-op.
func (l *Ledger) Remove(channelID, userID string) bool {
	refs := l.byChannel[channelID]
	for i, r := range refs {
		if r.ID == userID {
			l.set(channelID, append(refs[:i:i], refs[i+1:]...))
			return true
		}
	}
	return false
}

// Drop forgets everything held for channelID.
func (l *Ledger) Drop(channelID string) {
	delete(l.byChannel, channelID)
}

// Retain forgets every channel not in ids.
func (l *Ledger) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	for id := range l.byChannel {
		if _, ok := keep[id]; !ok {
			delete(l.byChannel, id)
		}
	}
}

func (l *Ledger) set(channelID string, refs []model.JoinRequestRef) {
	if len(refs) == 0 {
		delete(l.byChannel, channelID)
		return
	}
	l.byChannel[channelID] = refs
}
