package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matheus3301/huddle/internal/model"
)

// Me returns the user the credential belongs to.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out model.User
	if err := c.call(ctx, request{method: http.MethodGet, path: "auth/me"}, &out); err != nil {
		return model.User{}, err
	}
	return out, nil
}

// Friends returns the local user's friends.
func (c *Client) Friends(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := c.call(ctx, request{method: http.MethodGet, path: "users/friends"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FriendRequests returns the pending incoming friend requests.
func (c *Client) FriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var out []model.FriendRequest
	if err := c.call(ctx, request{method: http.MethodGet, path: "users/friend-requests"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchUsers matches usernames and emails.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var out []model.User
	req := request{method: http.MethodGet, path: "users/search", query: url.Values{"query": {query}}}
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendFriendRequest asks userID to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, userID string) error {
	req, err := jsonRequest(http.MethodPost, "users/friend-request", map[string]string{"userId": userID})
	if err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}

// RespondFriendRequest accepts or rejects requestID.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID string, accept bool) error {
	status := "rejected"
	if accept {
		status = "accepted"
	}
	req, err := jsonRequest(http.MethodPost, "users/friend-request/respond", map[string]string{
		"requestId": requestID,
		"status":    status,
	})
	if err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}
