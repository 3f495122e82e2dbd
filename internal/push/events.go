package push

import (
	"time"

	"github.com/matheus3301/huddle/internal/model"
)

// Inbound event names.
const (
	EventReceiveMessage      = "receive_message"
	EventMessageDeleted      = "message_deleted"
	EventUserJoined          = "user_joined"
	EventNewJoinRequest      = "new_join_request"
	EventJoinRequestApproved = "join_request_approved"
	EventNewChannel          = "new_channel"
	EventUserStatusChange    = "user_status_change"
	EventNewFriendRequest    = "new_friend_request"
)

// Outbound intent names.
const (
	IntentJoinChannel   = "join_channel"
	IntentLeaveChannel  = "leave_channel"
	IntentSendMessage   = "send_message"
	IntentDeleteMessage = "delete_message"
)

// ConnectionEstablished is dispatched after every successful connect, once
// all scopes have been re-subscribed and before any inbound frame is read.
type ConnectionEstablished struct {
	Reconnect bool
	// Outage is how long the previous connection had been down.
	Outage time.Duration
}

// ConnectionLost is dispatched when an established connection fails.
type ConnectionLost struct {
	Err error
}

// Unauthorized is dispatched when the handshake is refused with 401.
type Unauthorized struct{}

// MessageReceived carries a receive_message payload.
type MessageReceived struct {
	Message model.Message
}

// MessageDeleted carries a message_deleted payload.
type MessageDeleted struct {
	Deletion model.Deletion
}

// MemberJoined carries a user_joined payload.
type MemberJoined struct {
	ChannelID string
	User      model.User
}

// JoinRequestCreated carries a new_join_request payload.
type JoinRequestCreated struct {
	ChannelID string
	User      model.User
}

// JoinRequestApproved carries a join_request_approved payload. Channel is
// nil when the event arrived without a channel body.
type JoinRequestApproved struct {
	Channel *model.Channel
}

// ChannelCreated carries a new_channel payload.
type ChannelCreated struct {
	Channel model.Channel
}

// PresenceChanged carries a user_status_change payload.
type PresenceChanged struct {
	UserID string
	Online bool
}

// FriendRequestReceived signals a new_friend_request event.
type FriendRequestReceived struct{}

// Malformed is dispatched for a known event whose payload could not be used.
type Malformed struct {
	Event  string
	Reason string
}

// Name returns the wire name of a decoded event, used for metrics labels.
func Name(evt any) string {
	switch e := evt.(type) {
	case MessageReceived:
		return EventReceiveMessage
	case MessageDeleted:
		return EventMessageDeleted
	case MemberJoined:
		return EventUserJoined
	case JoinRequestCreated:
		return EventNewJoinRequest
	case JoinRequestApproved:
		return EventJoinRequestApproved
	case ChannelCreated:
		return EventNewChannel
	case PresenceChanged:
		return EventUserStatusChange
	case FriendRequestReceived:
		return EventNewFriendRequest
	case Malformed:
		return e.Event
	case ConnectionEstablished:
		return "connected"
	case ConnectionLost:
		return "disconnected"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}
