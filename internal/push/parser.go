package push

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/matheus3301/huddle/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is the envelope of every text message on the socket.
type Frame struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
}

// EncodeFrame builds an outbound frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

type wireMembership struct {
	ChannelID string     `json:"channelId"`
	User      model.User `json:"user"`
}

type wireApproval struct {
	Channel *model.Channel `json:"channel"`
}

type wirePresence struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// Parse decodes one frame into a typed event. Unknown events yield nil.
// Known events with unusable payloads yield Malformed.
func Parse(raw []byte) any {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Malformed{Event: "frame", Reason: err.Error()}
	}
	bad := func(reason string) any { return Malformed{Event: f.Event, Reason: reason} }

	switch f.Event {
	case EventReceiveMessage:
		var m model.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return bad(err.Error())
		}
		if m.ID == "" || m.ChannelID == "" {
			return bad("message without id or channel")
		}
		return MessageReceived{Message: m}

	case EventMessageDeleted:
		var d model.Deletion
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return bad(err.Error())
		}
		if d.ID == "" {
			return bad("deletion without id")
		}
		return MessageDeleted{Deletion: d}

	case EventUserJoined, EventNewJoinRequest:
		var w wireMembership
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return bad(err.Error())
		}
		if w.ChannelID == "" || w.User.ID == "" {
			return bad("membership without channel or user")
		}
		if f.Event == EventUserJoined {
			return MemberJoined{ChannelID: w.ChannelID, User: w.User}
		}
		return JoinRequestCreated{ChannelID: w.ChannelID, User: w.User}

	case EventJoinRequestApproved:
		var w wireApproval
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &w); err != nil {
				return bad(err.Error())
			}
		}
		if w.Channel != nil && w.Channel.ID == "" {
			w.Channel = nil
		}
		return JoinRequestApproved{Channel: w.Channel}

	case EventNewChannel:
		var c model.Channel
		if err := json.Unmarshal(f.Data, &c); err != nil {
			return bad(err.Error())
		}
		if c.ID == "" {
			return bad("channel without id")
		}
		return ChannelCreated{Channel: c}

	case EventUserStatusChange:
		var w wirePresence
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return bad(err.Error())
		}
		if w.UserID == "" {
			return bad("status change without user")
		}
		return PresenceChanged{UserID: w.UserID, Online: w.IsOnline}

	case EventNewFriendRequest:
		return FriendRequestReceived{}
	}
	return nil
}
