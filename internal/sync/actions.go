package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/push"
	"github.com/matheus3301/huddle/internal/rest"
)

// Mutator is the authoritative side of the REST API.
type Mutator interface {
	JoinChannel(ctx context.Context, id string) (rest.JoinOutcome, error)
	PostMessage(ctx context.Context, msg rest.Outgoing) (model.Message, error)
	DeleteMessage(ctx context.Context, id string) (model.Deletion, error)
	ApproveJoin(ctx context.Context, channelID, userID string) error
	RejectJoin(ctx context.Context, channelID, userID string) error
	CreateChannel(ctx context.Context, nc rest.NewChannel) (model.Channel, error)
	OpenDirect(ctx context.Context, userID string) (model.Channel, error)
	RemoveMember(ctx context.Context, channelID, userID string) error
	SendFriendRequest(ctx context.Context, userID string) error
	RespondFriendRequest(ctx context.Context, requestID string, accept bool) error
}

// Broadcaster relays intents to other clients over the push channel.
type Broadcaster interface {
	Emit(event string, data any) error
}

// Actions carries out user intents: the server answers first, then the
// canonical record goes through the same entry points as push events. On
// failure the state is left as it was. Deletion is the one optimistic step.
type Actions struct {
	engine *Engine
	api    Mutator
	push   Broadcaster
	logger *zap.Logger
}

// NewActions binds intents to an engine.
func NewActions(engine *Engine, api Mutator, push Broadcaster, logger *zap.Logger) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actions{engine: engine, api: api, push: push, logger: logger}
}

func (a *Actions) broadcast(event string, data any) {
	if a.push == nil {
		return
	}
	if err := a.push.Emit(event, data); err != nil {
		a.logger.Debug("broadcast skipped", zap.String("event", event), zap.Error(err))
	}
}

// Send posts a message and applies the stored record.
func (a *Actions) Send(ctx context.Context, out rest.Outgoing) (model.Message, error) {
	msg, err := a.api.PostMessage(ctx, out)
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	a.engine.ApplyIncomingMessage(msg)
	a.broadcast(push.IntentSendMessage, msg)
	return msg, nil
}

// Delete marks the message with the generic tombstone at once, then applies
// the tombstone returned by the server. On failure the previous copy comes
// back unless a newer deletion landed meanwhile.
func (a *Actions) Delete(ctx context.Context, messageID string) (model.Deletion, error) {
	prior, held := a.engine.markDeletedOptimistic(messageID)
	d, err := a.api.DeleteMessage(ctx, messageID)
	if err != nil {
		if held {
			a.engine.rollbackDeletion(prior)
		}
		return model.Deletion{}, fmt.Errorf("delete message: %w", err)
	}
	a.engine.ApplyMessageDeleted(d)
	a.broadcast(push.IntentDeleteMessage, d)
	return d, nil
}

// Approve accepts a pending applicant. A request that is already gone on
// the server counts as approved.
func (a *Actions) Approve(ctx context.Context, channelID, userID string) error {
	if err := a.api.ApproveJoin(ctx, channelID, userID); err != nil && !rest.IsConflict(err) {
		return fmt.Errorf("approve join: %w", err)
	}
	a.engine.admitApplicant(channelID, userID)
	a.engine.refreshDetail(channelID)
	return nil
}

// Reject declines a pending applicant. A request that is already gone on
// the server counts as rejected.
func (a *Actions) Reject(ctx context.Context, channelID, userID string) error {
	if err := a.api.RejectJoin(ctx, channelID, userID); err != nil && !rest.IsConflict(err) {
		return fmt.Errorf("reject join: %w", err)
	}
	a.engine.RemoveJoinRequest(channelID, userID)
	return nil
}

// Join asks to join a channel. Public channels are added right away;
// private ones stay pending until an approval event arrives.
func (a *Actions) Join(ctx context.Context, channelID string) (rest.JoinOutcome, error) {
	out, err := a.api.JoinChannel(ctx, channelID)
	if err != nil {
		return rest.JoinOutcome{}, fmt.Errorf("join channel: %w", err)
	}
	if out.Status == rest.JoinJoined {
		if out.Channel != nil {
			a.engine.ApplyChannelCreated(*out.Channel)
		} else {
			a.engine.spawnResync("join")
		}
	}
	return out, nil
}

// Create creates a channel and adds it to the store.
func (a *Actions) Create(ctx context.Context, nc rest.NewChannel) (model.Channel, error) {
	ch, err := a.api.CreateChannel(ctx, nc)
	if err != nil {
		return model.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	a.engine.ApplyChannelCreated(ch)
	return ch, nil
}

// OpenDirect opens the direct channel with userID and selects it.
func (a *Actions) OpenDirect(ctx context.Context, userID string) (model.Channel, error) {
	ch, err := a.api.OpenDirect(ctx, userID)
	if err != nil {
		return model.Channel{}, fmt.Errorf("open direct channel: %w", err)
	}
	a.engine.ApplyChannelCreated(ch)
	if err := a.engine.SelectChannel(ch.ID); err != nil {
		return ch, err
	}
	return ch, nil
}

// RemoveMember removes userID from a channel the local user administers.
func (a *Actions) RemoveMember(ctx context.Context, channelID, userID string) error {
	if err := a.api.RemoveMember(ctx, channelID, userID); err != nil && !rest.IsConflict(err) {
		return fmt.Errorf("remove member: %w", err)
	}
	a.engine.ApplyMemberRemoved(channelID, userID)
	return nil
}

// AddFriend sends a friend request.
func (a *Actions) AddFriend(ctx context.Context, userID string) error {
	if err := a.api.SendFriendRequest(ctx, userID); err != nil {
		return fmt.Errorf("send friend request: %w", err)
	}
	return nil
}

// RespondFriend answers a friend request and refreshes the friend lists.
func (a *Actions) RespondFriend(ctx context.Context, requestID string, accept bool) error {
	if err := a.api.RespondFriendRequest(ctx, requestID, accept); err != nil {
		return fmt.Errorf("respond friend request: %w", err)
	}
	a.engine.spawn(a.engine.refreshFriends)
	return nil
}

func (e *Engine) markDeletedOptimistic(id string) (model.Message, bool) {
	e.mu.Lock()
	prior, held := e.timeline.Get(id)
	if held {
		e.timeline.MarkDeleted(model.Deletion{ID: id})
	}
	channelID := e.timeline.ChannelID()
	e.mu.Unlock()
	if held {
		e.bus.Emit(bus.StateTimeline, channelID)
	}
	return prior, held
}

func (e *Engine) rollbackDeletion(prior model.Message) {
	e.mu.Lock()
	restored := false
	if cur, ok := e.timeline.Get(prior.ID); ok && cur.Deleted && cur.Content == model.GenericTombstone {
		restored = e.timeline.Restore(prior)
	}
	channelID := e.timeline.ChannelID()
	e.mu.Unlock()
	if restored {
		e.bus.Emit(bus.StateTimeline, channelID)
	}
}

// admitApplicant moves an approved applicant from the ledger to the member
// list.
func (e *Engine) admitApplicant(channelID, userID string) {
	e.mu.Lock()
	ref, found := e.ledger.Find(channelID, userID)
	if !found {
		ref = model.Bare(userID)
	}
	e.ledger.Remove(channelID, userID)
	e.syncJoinRequestsLocked(channelID)
	e.channels.Update(channelID, func(ch *model.Channel) {
		if !ch.HasMember(userID) {
			ch.Members = append(ch.Members, ref.User())
		}
	})
	e.mu.Unlock()
	e.bus.Emit(bus.StateChannels, nil)
}

func (e *Engine) refreshDetail(channelID string) {
	e.spawn(func(ctx context.Context) {
		ctx, cancel := e.fetchContext(ctx)
		defer cancel()
		detail, err := e.fetcher.ChannelDetail(ctx, channelID)
		if err != nil {
			e.logger.Warn("channel detail refresh failed", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
		e.ApplyChannelDetail(detail)
	})
}
