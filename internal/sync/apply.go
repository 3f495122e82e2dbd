package sync

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/model"
)

const previewLen = 80

// ApplyChannelSnapshot replaces the store with the channels the local user
// is a member of, most recent activity first. Richer join requests held
// locally survive. Channels seen for the first time are subscribed and
// channels that left are unsubscribed.
func (e *Engine) ApplyChannelSnapshot(channels []model.Channel) {
	e.applySnapshot(channels, 0)
}

// beginSnapshot opens a fetch window. Store changes made from now on
// survive the snapshot the fetch returns.
func (e *Engine) beginSnapshot() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshotGen++
	return e.snapshotGen
}

// applySnapshot merges channels fetched in window gen; gen 0 means the list
// is current. Channels inserted during the window are kept even when the
// list lacks them, channels the local user left during the window are not
// brought back, and a held activity time newer than the fetched one wins.
func (e *Engine) applySnapshot(channels []model.Channel, gen uint64) {
	e.mu.Lock()
	before := e.channels.IDs()
	held := make(map[string]model.Channel, len(before))
	for _, ch := range e.channels.List() {
		held[ch.ID] = ch
	}
	inWindow := func(marks map[string]uint64, id string) bool {
		at, ok := marks[id]
		return gen > 0 && ok && at >= gen
	}

	mine := make([]model.Channel, 0, len(channels))
	fetched := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if e.self.ID != "" && !ch.HasMember(e.self.ID) {
			continue
		}
		if inWindow(e.left, ch.ID) {
			continue
		}
		if h, ok := held[ch.ID]; ok && h.LastActivityAt.After(ch.LastActivityAt) {
			ch.LastActivityAt = h.LastActivityAt
		}
		fetched[ch.ID] = struct{}{}
		mine = append(mine, ch)
	}
	for _, id := range before {
		if _, ok := fetched[id]; !ok && inWindow(e.inserted, id) {
			mine = append(mine, held[id])
		}
	}
	slices.SortStableFunc(mine, func(a, b model.Channel) int {
		return b.LastActivityAt.Compare(a.LastActivityAt)
	})
	for i := range mine {
		mine[i].JoinRequests = e.ledger.Merge(mine[i].ID, mine[i].JoinRequests)
		e.seedPresenceLocked(mine[i].Members)
	}
	e.channels.Replace(mine)
	clear(e.inserted)
	clear(e.left)
	after := e.channels.IDs()
	e.ledger.Retain(after)
	if active := e.channels.Active(); active != "" && !e.channels.Has(active) {
		e.channels.SetActive("")
		e.timeline.Close()
	}
	e.lastSnapshot = time.Now()
	unread := e.channels.UnreadTotal()
	e.mu.Unlock()

	added, removed := diffIDs(before, after)
	e.subscribe(added...)
	e.unsubscribe(removed...)
	e.metrics.SetUnread(unread)
	e.bus.Emit(bus.StateChannels, nil)
}

func diffIDs(before, after []string) (added, removed []string) {
	for _, id := range after {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !slices.Contains(after, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func (e *Engine) seedPresenceLocked(users []model.User) {
	for _, u := range users {
		if u.Online {
			e.presence.Set(u.ID, true)
		}
	}
}

func (e *Engine) subscribe(ids ...string) {
	if e.subscriber == nil {
		return
	}
	for _, id := range ids {
		e.subscriber.Subscribe(id)
	}
}

func (e *Engine) unsubscribe(ids ...string) {
	if e.subscriber == nil {
		return
	}
	for _, id := range ids {
		e.subscriber.Unsubscribe(id)
	}
}

// ApplyChannelCreated appends ch unless already held, and subscribes its
// scope. It reports whether the store changed.
func (e *Engine) ApplyChannelCreated(ch model.Channel) bool {
	if ch.ID == "" {
		return false
	}
	e.mu.Lock()
	added := e.insertLocked(ch, false)
	e.mu.Unlock()

	e.subscribe(ch.ID)
	if added {
		e.bus.Emit(bus.StateChannels, nil)
	}
	return added
}

func (e *Engine) insertLocked(ch model.Channel, front bool) bool {
	if e.channels.Has(ch.ID) {
		return false
	}
	ch.JoinRequests = e.ledger.Merge(ch.ID, ch.JoinRequests)
	e.seedPresenceLocked(ch.Members)
	var added bool
	if front {
		added = e.channels.Prepend(ch)
	} else {
		added = e.channels.Append(ch)
	}
	if added {
		e.inserted[ch.ID] = e.snapshotGen
		delete(e.left, ch.ID)
	}
	return added
}

// ApplyChannelApproved handles a join approval for the local user. A nil
// channel means the event arrived without its body; the whole snapshot is
// fetched again instead.
func (e *Engine) ApplyChannelApproved(ch *model.Channel) bool {
	if ch == nil || ch.ID == "" {
		e.logger.Warn("approval without channel body, resyncing")
		e.spawnResync("malformed")
		return false
	}
	return e.ApplyChannelCreated(*ch)
}

// ApplyIncomingMessage folds a new message into the state. Messages for an
// unknown channel are parked while the channel detail is fetched; exactly
// one fetch runs per channel.
func (e *Engine) ApplyIncomingMessage(m model.Message) {
	if m.ID == "" || m.ChannelID == "" {
		return
	}
	e.mu.Lock()
	if !e.channels.Has(m.ChannelID) {
		pending, inflight := e.backfill[m.ChannelID]
		e.backfill[m.ChannelID] = append(pending, m)
		e.mu.Unlock()
		if !inflight {
			e.startBackfill(m.ChannelID)
		}
		e.cacheMessages(m)
		return
	}
	note := e.applyMessageLocked(m)
	unread := e.channels.UnreadTotal()
	e.mu.Unlock()

	e.cacheMessages(m)
	e.metrics.SetUnread(unread)
	e.publishMessage(m, note)
}

// applyMessageLocked applies m to a held channel and returns the
// notification to publish, if any.
func (e *Engine) applyMessageLocked(m model.Message) *Notification {
	if !e.markSeenLocked(m.ID) {
		if m.ChannelID == e.channels.Active() {
			e.timeline.Append(m)
		}
		return nil
	}
	var note *Notification
	if m.ChannelID == e.channels.Active() {
		e.timeline.Append(m)
	} else {
		e.channels.IncUnread(m.ChannelID)
		if m.Sender.ID != e.self.ID {
			ch, _ := e.channels.Get(m.ChannelID)
			note = &Notification{
				ChannelID:   m.ChannelID,
				ChannelName: ch.DisplayName(),
				MessageID:   m.ID,
				Sender:      m.Sender,
				Preview:     preview(m),
			}
		}
	}
	at := m.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	e.channels.Touch(m.ChannelID, at)
	return note
}

func (e *Engine) publishMessage(m model.Message, note *Notification) {
	e.bus.Emit(bus.StateChannels, nil)
	if m.ChannelID == e.Active() {
		e.bus.Emit(bus.StateTimeline, m.ChannelID)
	}
	if note != nil {
		e.bus.Emit(bus.NotifyMessage, *note)
	}
}

func preview(m model.Message) string {
	text := m.Content
	if text == "" && m.File != nil {
		text = "[" + m.File.Kind + "]"
	}
	r := []rune(text)
	if len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return text
}

func (e *Engine) startBackfill(channelID string) {
	e.spawn(func(ctx context.Context) {
		ctx, cancel := e.fetchContext(ctx)
		defer cancel()
		ch, err := e.fetcher.ChannelDetail(ctx, channelID)
		e.resolveBackfill(channelID, ch, err)
	})
}

// resolveBackfill lands a channel-detail fetch started for an unknown
// channel. When the channel became known in the meantime the fetched record
// is discarded and the held entry moves to the front.
func (e *Engine) resolveBackfill(channelID string, ch model.Channel, err error) {
	e.mu.Lock()
	pending := e.backfill[channelID]
	delete(e.backfill, channelID)

	if err != nil {
		e.mu.Unlock()
		e.metrics.Backfill("error")
		e.logger.Warn("channel backfill failed",
			zap.String("channel_id", channelID),
			zap.Int("parked", len(pending)),
			zap.Error(err),
		)
		if len(pending) > 0 {
			e.bus.Emit(bus.SyncBackfillFailed, BackfillFailure{
				ChannelID: channelID,
				Dropped:   len(pending),
				Err:       err.Error(),
			})
		}
		return
	}

	added := false
	if e.channels.Has(channelID) {
		e.channels.Touch(channelID, time.Now())
		e.metrics.Backfill("duplicate")
	} else {
		if ch.ID == "" {
			ch.ID = channelID
		}
		added = e.insertLocked(ch, true)
		e.metrics.Backfill("added")
	}
	var notes []Notification
	for _, m := range pending {
		if note := e.applyMessageLocked(m); note != nil {
			notes = append(notes, *note)
		}
	}
	unread := e.channels.UnreadTotal()
	e.mu.Unlock()

	if added {
		e.subscribe(channelID)
	}
	e.metrics.SetUnread(unread)
	e.bus.Emit(bus.StateChannels, nil)
	for _, n := range notes {
		e.bus.Emit(bus.NotifyMessage, n)
	}
}

// ApplyMessageDeleted soft-deletes a message. Applying the same deletion
// twice is a no-op, and a generic tombstone never replaces an authoritative
// one.
func (e *Engine) ApplyMessageDeleted(d model.Deletion) {
	if d.ID == "" {
		return
	}
	e.mu.Lock()
	held := e.timeline.MarkDeleted(d)
	channelID := e.timeline.ChannelID()
	e.mu.Unlock()

	if e.cache != nil {
		if err := e.cache.MarkMessageDeleted(d); err != nil {
			e.logger.Warn("cache deletion failed", zap.String("msg_id", d.ID), zap.Error(err))
		}
	}
	if held {
		e.bus.Emit(bus.StateTimeline, channelID)
	}
	e.bus.Emit(bus.MessageDeleted, d)
}

// ApplyJoinRequestCreated records a new applicant of the active channel.
// Requests for other channels are ignored; they arrive with the next detail
// fetch.
func (e *Engine) ApplyJoinRequestCreated(channelID string, u model.User) bool {
	if u.ID == "" {
		return false
	}
	ref := model.Bare(u.ID)
	if u.Username != "" || u.Email != "" {
		ref = model.Populated(u.ID, u.Username, u.Email)
	}
	e.mu.Lock()
	if channelID != e.channels.Active() || !e.channels.Has(channelID) {
		e.mu.Unlock()
		return false
	}
	changed := e.ledger.Add(channelID, ref)
	if changed {
		e.syncJoinRequestsLocked(channelID)
	}
	e.mu.Unlock()

	if changed {
		e.bus.Emit(bus.StateChannels, nil)
		e.bus.Emit(bus.NotifyJoinRequest, ref)
	}
	return changed
}

// RemoveJoinRequest drops userID's pending request. Removing an absent
// request is a no-op.
func (e *Engine) RemoveJoinRequest(channelID, userID string) bool {
	e.mu.Lock()
	changed := e.ledger.Remove(channelID, userID)
	if changed {
		e.syncJoinRequestsLocked(channelID)
	}
	e.mu.Unlock()
	if changed {
		e.bus.Emit(bus.StateChannels, nil)
	}
	return changed
}

func (e *Engine) syncJoinRequestsLocked(channelID string) {
	refs := e.ledger.Get(channelID)
	e.channels.Update(channelID, func(ch *model.Channel) {
		ch.JoinRequests = refs
	})
}

// ApplyPresenceChange records a presence update. Last write wins.
func (e *Engine) ApplyPresenceChange(userID string, online bool) {
	e.mu.Lock()
	e.presence.Set(userID, online)
	e.mu.Unlock()
	e.bus.Emit(bus.StatePresence, userID)
}

// ApplyChannelDetail merges a detail record into a held channel. Unknown
// channels are ignored.
func (e *Engine) ApplyChannelDetail(detail model.Channel) bool {
	e.mu.Lock()
	if !e.channels.Has(detail.ID) {
		e.mu.Unlock()
		return false
	}
	refs := e.ledger.Merge(detail.ID, detail.JoinRequests)
	e.seedPresenceLocked(detail.Members)
	e.channels.Update(detail.ID, func(ch *model.Channel) {
		if detail.Name != "" {
			ch.Name = detail.Name
		}
		ch.Description = detail.Description
		ch.Private = detail.Private
		if detail.AdminID != "" {
			ch.AdminID = detail.AdminID
		}
		if len(detail.Members) > 0 {
			ch.Members = append([]model.User(nil), detail.Members...)
		}
		ch.JoinRequests = refs
		if detail.LastActivityAt.After(ch.LastActivityAt) {
			ch.LastActivityAt = detail.LastActivityAt
		}
	})
	e.mu.Unlock()
	e.bus.Emit(bus.StateChannels, nil)
	return true
}

// ApplyMemberJoined adds u to the channel's members and clears u's pending
// request. When u is the local user and the channel is unknown, its detail
// is fetched.
func (e *Engine) ApplyMemberJoined(channelID string, u model.User) {
	if channelID == "" || u.ID == "" {
		return
	}
	e.mu.Lock()
	if !e.channels.Has(channelID) {
		backfill := false
		if u.ID == e.self.ID {
			if _, inflight := e.backfill[channelID]; !inflight {
				e.backfill[channelID] = nil
				backfill = true
			}
		}
		e.mu.Unlock()
		if backfill {
			e.startBackfill(channelID)
		}
		return
	}
	e.channels.Update(channelID, func(ch *model.Channel) {
		if !ch.HasMember(u.ID) {
			ch.Members = append(ch.Members, u)
		}
	})
	if e.ledger.Remove(channelID, u.ID) {
		e.syncJoinRequestsLocked(channelID)
	}
	e.mu.Unlock()
	e.bus.Emit(bus.StateChannels, nil)
}

// ApplyMemberRemoved drops userID from the channel. When the local user is
// removed the channel leaves the store.
func (e *Engine) ApplyMemberRemoved(channelID, userID string) {
	e.mu.Lock()
	if !e.channels.Has(channelID) {
		e.mu.Unlock()
		return
	}
	left := userID == e.self.ID
	if left {
		e.channels.Remove(channelID)
		e.left[channelID] = e.snapshotGen
		delete(e.inserted, channelID)
		e.ledger.Drop(channelID)
		if e.timeline.ChannelID() == channelID {
			e.channels.SetActive("")
			e.timeline.Close()
		}
	} else {
		e.channels.Update(channelID, func(ch *model.Channel) {
			ch.Members = slices.DeleteFunc(ch.Members, func(m model.User) bool { return m.ID == userID })
		})
	}
	e.mu.Unlock()

	if left {
		e.unsubscribe(channelID)
	}
	e.bus.Emit(bus.StateChannels, nil)
}

// ApplyFriendData replaces the friend list and incoming friend requests.
func (e *Engine) ApplyFriendData(friends []model.User, requests []model.FriendRequest) {
	e.mu.Lock()
	e.friends = append([]model.User(nil), friends...)
	e.friendRequests = append([]model.FriendRequest(nil), requests...)
	e.seedPresenceLocked(friends)
	e.mu.Unlock()
	e.bus.Emit(bus.StateFriends, nil)
}

// SelectChannel makes id the active channel, resets its unread counter and
// opens its timeline. History and detail are fetched in the background;
// a history page that lands after another channel was selected is dropped.
func (e *Engine) SelectChannel(id string) error {
	e.mu.Lock()
	if !e.channels.Has(id) {
		e.mu.Unlock()
		return ErrUnknownChannel
	}
	e.channels.SetActive(id)
	e.timeline.Open(id)
	unread := e.channels.UnreadTotal()
	e.mu.Unlock()

	e.metrics.SetUnread(unread)
	e.bus.Emit(bus.StateChannels, nil)
	e.bus.Emit(bus.StateTimeline, id)
	e.loadHistory(id)
	e.refreshDetail(id)
	return nil
}

func (e *Engine) loadHistory(id string) {
	e.spawn(func(ctx context.Context) {
		ctx, cancel := e.fetchContext(ctx)
		defer cancel()
		msgs, err := e.fetcher.MessageHistory(ctx, id)
		if err != nil {
			e.logger.Warn("history fetch failed", zap.String("channel_id", id), zap.Error(err))
			return
		}
		e.applyHistory(id, msgs)
	})
}

func (e *Engine) applyHistory(id string, msgs []model.Message) bool {
	e.mu.Lock()
	if e.channels.Active() != id || e.timeline.ChannelID() != id {
		e.mu.Unlock()
		e.metrics.HistoryDiscarded()
		e.logger.Debug("history discarded", zap.String("channel_id", id))
		return false
	}
	e.timeline.Baseline(id, msgs)
	e.mu.Unlock()

	e.cacheMessages(msgs...)
	e.bus.Emit(bus.StateTimeline, id)
	return true
}

// CloseChannel clears the active channel and empties the timeline.
func (e *Engine) CloseChannel() {
	e.mu.Lock()
	e.channels.SetActive("")
	e.timeline.Close()
	e.mu.Unlock()
	e.bus.Emit(bus.StateTimeline, "")
}
