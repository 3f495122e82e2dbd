package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The prefix before the dot is the namespace subscribers
// filter on.
const (
	SessionStatusChanged = "session.status_changed"
	SessionInvalid       = "session.invalid"

	SyncConnected      = "sync.connected"
	SyncDisconnected   = "sync.disconnected"
	SyncResynced       = "sync.resynced"
	SyncResyncFailed   = "sync.resync_failed"
	SyncBackfillFailed = "sync.backfill_failed"

	StateChannels = "state.channels"
	StateTimeline = "state.timeline"
	StatePresence = "state.presence"
	StateFriends  = "state.friends"

	NotifyMessage       = "notify.message"
	NotifyJoinRequest   = "notify.join_request"
	NotifyFriendRequest = "notify.friend_request"

	MessageQueued     = "message.queued"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"
	MessageDeleted    = "message.deleted"
)
