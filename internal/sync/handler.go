package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/push"
	"github.com/matheus3301/huddle/internal/status"
)

// Checkpoint keys.
const (
	CheckpointSnapshot   = "last_snapshot_at"
	CheckpointConnect    = "last_connect_at"
	CheckpointDisconnect = "last_disconnect_at"
)

// HandleEvent is the push adapter's event handler. It drives the status
// machine and routes each event to its merge entry point. A failing event
// is logged and counted; it never stops later events.
func (e *Engine) HandleEvent(evt any) {
	name := push.Name(evt)
	defer func() {
		if r := recover(); r != nil {
			e.metrics.EventFailed(name)
			e.logger.Error("event handler panicked",
				zap.String("event", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	e.metrics.Event(name)

	switch ev := evt.(type) {
	case push.ConnectionEstablished:
		e.onConnected(ev)
	case push.ConnectionLost:
		e.logger.Warn("push connection lost", zap.Error(ev.Err))
		_ = e.machine.Ensure(status.Reconnecting, "connection lost")
		e.checkpoints.Mark(CheckpointDisconnect, time.Now())
		e.bus.Emit(bus.SyncDisconnected, nil)
	case push.Unauthorized:
		e.Unauthorized()
	case push.MessageReceived:
		e.ApplyIncomingMessage(ev.Message)
	case push.MessageDeleted:
		e.ApplyMessageDeleted(ev.Deletion)
	case push.MemberJoined:
		e.ApplyMemberJoined(ev.ChannelID, ev.User)
	case push.JoinRequestCreated:
		e.ApplyJoinRequestCreated(ev.ChannelID, ev.User)
	case push.JoinRequestApproved:
		e.ApplyChannelApproved(ev.Channel)
	case push.ChannelCreated:
		e.ApplyChannelCreated(ev.Channel)
	case push.PresenceChanged:
		e.ApplyPresenceChange(ev.UserID, ev.Online)
	case push.FriendRequestReceived:
		e.bus.Emit(bus.NotifyFriendRequest, nil)
		e.spawn(e.refreshFriends)
	case push.Malformed:
		e.metrics.EventFailed(ev.Event)
		e.logger.Warn("malformed push event",
			zap.String("event", ev.Event),
			zap.String("reason", ev.Reason),
		)
		e.spawnResync("malformed")
	default:
		e.logger.Debug("unhandled event", zap.String("event", name))
	}
}

// onConnected runs after the adapter re-subscribed every scope. The first
// connection and any reconnect after an outage of at least the gap
// threshold may have missed events, so the full snapshot is fetched again.
func (e *Engine) onConnected(ev push.ConnectionEstablished) {
	if e.machine.Current() == status.AuthRequired {
		_ = e.machine.Transition(status.Connecting)
	}
	e.checkpoints.Mark(CheckpointConnect, time.Now())
	e.bus.Emit(bus.SyncConnected, ev)

	gap := !ev.Reconnect || ev.Outage >= e.gapThreshold
	if !gap {
		_ = e.machine.Ensure(status.Live, "reconnected")
		return
	}
	reason := "connect"
	if ev.Reconnect {
		reason = "gap"
	}
	_ = e.machine.Ensure(status.Syncing, reason)
	e.spawnResync(reason)
}

// Unauthorized marks the session invalid. It is also the REST client's 401
// hook.
func (e *Engine) Unauthorized() {
	if err := e.machine.Ensure(status.AuthRequired, "credential rejected"); err != nil {
		e.logger.Debug("status transition skipped", zap.Error(err))
	}
	e.bus.Emit(bus.SessionInvalid, nil)
}

func (e *Engine) spawnResync(reason string) {
	e.spawn(func(ctx context.Context) {
		if err := e.Resync(ctx, reason); err != nil {
			e.logger.Warn("resync failed", zap.String("reason", reason), zap.Error(err))
		}
	})
}

func (e *Engine) refreshFriends(ctx context.Context) {
	ctx, cancel := e.fetchContext(ctx)
	defer cancel()
	friends, err := e.fetcher.Friends(ctx)
	if err != nil {
		e.logger.Warn("friends fetch failed", zap.Error(err))
		return
	}
	requests, err := e.fetcher.FriendRequests(ctx)
	if err != nil {
		e.logger.Warn("friend requests fetch failed", zap.Error(err))
		return
	}
	e.ApplyFriendData(friends, requests)
}
