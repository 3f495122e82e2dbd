// Package state holds the four containers the reconciliation engine folds
// updates into. None of them is safe for concurrent use; the engine owns the
// only lock.
package state

import "slices"

// Presence tracks which users are online. The local user is always online.
type Presence struct {
	self   string
	online map[string]struct{}
}

// NewPresence creates an empty presence set for the given local user.
func NewPresence(self string) *Presence {
	return &Presence{self: self, online: make(map[string]struct{})}
}

// SetSelf changes the local user identifier.
func (p *Presence) SetSelf(id string) {
	p.self = id
}

// Set records a presence change. Last write wins.
func (p *Presence) Set(userID string, online bool) {
	if userID == "" {
		return
	}
	if online {
		p.online[userID] = struct{}{}
		return
	}
	delete(p.online, userID)
}

// Online reports whether userID is online.
func (p *Presence) Online(userID string) bool {
	if userID != "" && userID == p.self {
		return true
	}
	_, ok := p.online[userID]
	return ok
}

// IDs returns the online identifiers, local user included, sorted.
func (p *Presence) IDs() []string {
	ids := make([]string, 0, len(p.online)+1)
	for id := range p.online {
		ids = append(ids, id)
	}
	if p.self != "" && !slices.Contains(ids, p.self) {
		ids = append(ids, p.self)
	}
	slices.Sort(ids)
	return ids
}
