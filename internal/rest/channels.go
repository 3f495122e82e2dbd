package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matheus3301/huddle/internal/model"
)

// JoinStatus is the outcome of a join request.
type JoinStatus string

const (
	JoinPending JoinStatus = "pending"
	JoinJoined  JoinStatus = "joined"
)

// JoinOutcome is returned by JoinChannel. Channel is set when the channel
// was public and the local user is now a member.
type JoinOutcome struct {
	Status  JoinStatus     `json:"status"`
	Channel *model.Channel `json:"channel,omitempty"`
}

// NewChannel describes a channel to create.
type NewChannel struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"isPrivate"`
}

type membership struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// ListChannels returns the channels visible to the local user.
func (c *Client) ListChannels(ctx context.Context) ([]model.Channel, error) {
	var out []model.Channel
	if err := c.call(ctx, request{method: http.MethodGet, path: "channels"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelDetail returns the populated record of one channel.
func (c *Client) ChannelDetail(ctx context.Context, id string) (model.Channel, error) {
	var out model.Channel
	if err := c.call(ctx, request{method: http.MethodGet, path: "channels/" + id}, &out); err != nil {
		return model.Channel{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// JoinChannel asks to join id. Private channels answer pending.
func (c *Client) JoinChannel(ctx context.Context, id string) (JoinOutcome, error) {
	var out JoinOutcome
	if err := c.call(ctx, request{method: http.MethodPost, path: "channels/" + id + "/join"}, &out); err != nil {
		return JoinOutcome{}, err
	}
	if out.Status == "" {
		out.Status = JoinJoined
	}
	return out, nil
}

// CreateChannel creates a channel administered by the local user.
func (c *Client) CreateChannel(ctx context.Context, nc NewChannel) (model.Channel, error) {
	req, err := jsonRequest(http.MethodPost, "channels", nc)
	if err != nil {
		return model.Channel{}, err
	}
	var out model.Channel
	if err := c.call(ctx, req, &out); err != nil {
		return model.Channel{}, err
	}
	return out, nil
}

// OpenDirect returns the direct-message channel with userID, creating it
// when needed.
func (c *Client) OpenDirect(ctx context.Context, userID string) (model.Channel, error) {
	req, err := jsonRequest(http.MethodPost, "channels/dm", map[string]string{"recipientId": userID})
	if err != nil {
		return model.Channel{}, err
	}
	var out model.Channel
	if err := c.call(ctx, req, &out); err != nil {
		return model.Channel{}, err
	}
	return out, nil
}

// ApproveJoin accepts userID into channelID.
func (c *Client) ApproveJoin(ctx context.Context, channelID, userID string) error {
	return c.membershipCall(ctx, "channels/approve", channelID, userID)
}

// RejectJoin declines userID's request for channelID.
func (c *Client) RejectJoin(ctx context.Context, channelID, userID string) error {
	return c.membershipCall(ctx, "channels/reject", channelID, userID)
}

// RemoveMember removes userID from channelID. Admin only.
func (c *Client) RemoveMember(ctx context.Context, channelID, userID string) error {
	return c.membershipCall(ctx, "channels/remove-user", channelID, userID)
}

func (c *Client) membershipCall(ctx context.Context, path, channelID, userID string) error {
	req, err := jsonRequest(http.MethodPost, path, membership{ChannelID: channelID, UserID: userID})
	if err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}

// SearchChannels matches channel names.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]model.Channel, error) {
	var out []model.Channel
	req := request{method: http.MethodGet, path: "channels/search", query: url.Values{"query": {query}}}
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
