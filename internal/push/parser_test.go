package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, evt any)
	}{
		{
			name:  "receive message",
			frame: `{"event":"receive_message","data":{"_id":"m1","channel":"c1","sender":{"_id":"u1","username":"ana"},"content":"hi"}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(MessageReceived)
				require.True(t, ok)
				assert.Equal(t, "m1", e.Message.ID)
				assert.Equal(t, "c1", e.Message.ChannelID)
				assert.Equal(t, "ana", e.Message.Sender.Username)
			},
		},
		{
			name:  "message without channel",
			frame: `{"event":"receive_message","data":{"_id":"m1"}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(Malformed)
				require.True(t, ok)
				assert.Equal(t, EventReceiveMessage, e.Event)
			},
		},
		{
			name:  "legacy deletion",
			frame: `{"event":"message_deleted","data":"m1"}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(MessageDeleted)
				require.True(t, ok)
				assert.Equal(t, model.Deletion{ID: "m1"}, e.Deletion)
			},
		},
		{
			name:  "deletion record",
			frame: `{"event":"message_deleted","data":{"id":"m1","content":"Admin has deleted that message","deletedBy":{"_id":"adm"}}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(MessageDeleted)
				require.True(t, ok)
				assert.Equal(t, model.AdminTombstone, e.Deletion.Content)
				assert.Equal(t, "adm", e.Deletion.DeletedBy)
			},
		},
		{
			name:  "new join request",
			frame: `{"event":"new_join_request","data":{"channelId":"c1","user":{"_id":"u9","username":"bo","email":"b@x"}}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(JoinRequestCreated)
				require.True(t, ok)
				assert.Equal(t, "c1", e.ChannelID)
				assert.Equal(t, "bo", e.User.Username)
			},
		},
		{
			name:  "user joined",
			frame: `{"event":"user_joined","data":{"channelId":"c1","user":"u9"}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(MemberJoined)
				require.True(t, ok)
				assert.Equal(t, "u9", e.User.ID)
			},
		},
		{
			name:  "approval without channel",
			frame: `{"event":"join_request_approved","data":{}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(JoinRequestApproved)
				require.True(t, ok)
				assert.Nil(t, e.Channel)
			},
		},
		{
			name:  "approval with channel",
			frame: `{"event":"join_request_approved","data":{"channel":{"_id":"c2","name":"team"}}}`,
			check: func(t *testing.T, evt any) {
				e, ok := evt.(JoinRequestApproved)
				require.True(t, ok)
				require.NotNil(t, e.Channel)
				assert.Equal(t, "team", e.Channel.Name)
			},
		},
		{
			name:  "status change",
			frame: `{"event":"user_status_change","data":{"userId":"u1","isOnline":true}}`,
			check: func(t *testing.T, evt any) {
				assert.Equal(t, PresenceChanged{UserID: "u1", Online: true}, evt)
			},
		},
		{
			name:  "friend request",
			frame: `{"event":"new_friend_request","data":{}}`,
			check: func(t *testing.T, evt any) {
				assert.Equal(t, FriendRequestReceived{}, evt)
			},
		},
		{
			name:  "unknown",
			frame: `{"event":"typing","data":{}}`,
			check: func(t *testing.T, evt any) {
				assert.Nil(t, evt)
			},
		},
		{
			name:  "garbage",
			frame: `not json`,
			check: func(t *testing.T, evt any) {
				_, ok := evt.(Malformed)
				assert.True(t, ok)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse([]byte(tt.frame)))
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	raw, err := EncodeFrame(IntentJoinChannel, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"join_channel","data":"c1"}`, string(raw))
}
