package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDecodesListAndDetailShapes(t *testing.T) {
	list := `{"_id":"c1","name":"general","isPrivate":true,"admin":"u1",
		"members":["u1","u2","u1"],"joinRequests":["u7"],
		"lastMessageAt":"2024-03-01T10:00:00.000Z"}`
	var c Channel
	require.NoError(t, json.Unmarshal([]byte(list), &c))
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "u1", c.AdminID)
	assert.True(t, c.Private)
	require.Len(t, c.Members, 2, "duplicate member ids collapse")
	require.Len(t, c.JoinRequests, 1)
	assert.Equal(t, Bare("u7"), c.JoinRequests[0])
	assert.True(t, c.LastActivityAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	detail := `{"_id":"c1","name":"general","admin":{"_id":"u1","username":"ana"},
		"members":[{"_id":"u1","username":"ana","isOnline":true}],
		"joinRequests":[{"_id":"u7","username":"bob","email":"bob@x.io"},{"_id":"u8"}]}`
	require.NoError(t, json.Unmarshal([]byte(detail), &c))
	assert.Equal(t, "u1", c.AdminID)
	assert.True(t, c.Members[0].Online)
	assert.Equal(t, Populated("u7", "bob", "bob@x.io"), c.JoinRequests[0])
	assert.Equal(t, Bare("u8"), c.JoinRequests[1], "object without profile stays bare")
}

func TestJoinRequestRefRoundTripKeepsTag(t *testing.T) {
	in := []JoinRequestRef{Bare("u1"), Populated("u2", "bo", "bo@x.io")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `["u1",{"id":"u2","username":"bo","email":"bo@x.io"}]`, string(data))

	var out []JoinRequestRef
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMessageDecodesChannelRefAndFile(t *testing.T) {
	raw := `{"_id":"m1","channel":{"_id":"c9"},"sender":{"_id":"u2","username":"bo"},
		"content":"hi","fileUrl":"/uploads/a.png","fileType":"image","isDeleted":false}`
	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "c9", m.ChannelID)
	assert.Equal(t, "bo", m.Sender.Username)
	require.NotNil(t, m.File)
	assert.Equal(t, Attachment{URL: "/uploads/a.png", Kind: "image"}, *m.File)

	raw = `{"_id":"m2","channel":"c9","sender":"u2","content":"x","isDeleted":true,"deletedBy":{"_id":"u1"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "c9", m.ChannelID)
	assert.Equal(t, "u2", m.Sender.ID)
	assert.Equal(t, "u1", m.DeletedBy)
	assert.Nil(t, m.File)
}

func TestDeletionAcceptsBareAndRecord(t *testing.T) {
	var d Deletion
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &d))
	assert.Equal(t, Deletion{ID: "42"}, d)
	assert.Equal(t, GenericTombstone, d.Tombstone())

	require.NoError(t, json.Unmarshal([]byte(`{"_id":"42","content":"Admin has deleted that message","deletedBy":"u1"}`), &d))
	assert.Equal(t, Deletion{ID: "42", Content: AdminTombstone, DeletedBy: "u1"}, d)
	assert.Equal(t, AdminTombstone, d.Tombstone())
}
