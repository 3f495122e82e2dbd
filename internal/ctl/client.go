// Package ctl is the client side of the daemon's control socket.
package ctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDaemonDown is returned when nothing listens on the session socket.
var ErrDaemonDown = errors.New("daemon is not running")

// Error is a non-2xx answer from the daemon.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon answered %d", e.Code)
	}
	return fmt.Sprintf("daemon answered %d: %s", e.Code, e.Message)
}

// Client talks HTTP over the session's Unix socket.
type Client struct {
	httpc *http.Client
}

// New returns a client bound to socketPath.
func New(socketPath string) *Client {
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{httpc: &http.Client{Transport: tr}}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpc.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return ErrDaemonDown
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var ev api.ErrorView
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &ev)
		return &Error{Code: resp.StatusCode, Message: ev.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (api.StatusView, error) {
	var v api.StatusView
	err := c.do(ctx, http.MethodGet, "/status", nil, &v)
	return v, err
}

// Resync forces a snapshot fetch and waits for it.
func (c *Client) Resync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/resync", nil, nil)
}

func (c *Client) Channels(ctx context.Context) ([]api.ChannelView, error) {
	var v []api.ChannelView
	err := c.do(ctx, http.MethodGet, "/channels", nil, &v)
	return v, err
}

func (c *Client) Channel(ctx context.Context, id string) (api.ChannelView, error) {
	var v api.ChannelView
	err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(id), nil, &v)
	return v, err
}

func (c *Client) CreateChannel(ctx context.Context, req api.CreateRequest) (api.ChannelView, error) {
	var v api.ChannelView
	err := c.do(ctx, http.MethodPost, "/channels", req, &v)
	return v, err
}

func (c *Client) Select(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(id)+"/select", nil, nil)
}

func (c *Client) CloseChannel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/channels/close", nil, nil)
}

func (c *Client) Join(ctx context.Context, id string) (api.JoinView, error) {
	var v api.JoinView
	err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(id)+"/join", nil, &v)
	return v, err
}

// Decide approves or rejects a pending join request.
func (c *Client) Decide(ctx context.Context, channelID, userID string, approve bool) error {
	decision := "reject"
	if approve {
		decision = "approve"
	}
	path := fmt.Sprintf("/channels/%s/requests/%s/%s", url.PathEscape(channelID), url.PathEscape(userID), decision)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) RemoveMember(ctx context.Context, channelID, userID string) error {
	path := fmt.Sprintf("/channels/%s/members/%s", url.PathEscape(channelID), url.PathEscape(userID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// History pages through the local message cache of a channel. before is a
// unix millisecond cursor, 0 for the newest page.
func (c *Client) History(ctx context.Context, channelID string, before int64, limit int) ([]model.Message, error) {
	q := url.Values{}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var v []model.Message
	err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID)+"/history?"+q.Encode(), nil, &v)
	return v, err
}

func (c *Client) OpenDirect(ctx context.Context, userID string) (api.ChannelView, error) {
	var v api.ChannelView
	err := c.do(ctx, http.MethodPost, "/dm/"+url.PathEscape(userID), nil, &v)
	return v, err
}

func (c *Client) Timeline(ctx context.Context) (api.TimelineView, error) {
	var v api.TimelineView
	err := c.do(ctx, http.MethodGet, "/timeline", nil, &v)
	return v, err
}

// Send queues a message in the daemon's outbox and returns its client id.
func (c *Client) Send(ctx context.Context, req api.SendRequest) (string, error) {
	var v api.QueuedView
	err := c.do(ctx, http.MethodPost, "/messages", req, &v)
	return v.ClientMsgID, err
}

func (c *Client) Delete(ctx context.Context, messageID string) (model.Deletion, error) {
	var v model.Deletion
	err := c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, &v)
	return v, err
}

func (c *Client) Presence(ctx context.Context) (api.PresenceView, error) {
	var v api.PresenceView
	err := c.do(ctx, http.MethodGet, "/presence", nil, &v)
	return v, err
}

func (c *Client) Friends(ctx context.Context) (api.FriendsView, error) {
	var v api.FriendsView
	err := c.do(ctx, http.MethodGet, "/friends", nil, &v)
	return v, err
}

func (c *Client) AddFriend(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/friends/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) RespondFriend(ctx context.Context, requestID string, accept bool) error {
	decision := "reject"
	if accept {
		decision = "accept"
	}
	return c.do(ctx, http.MethodPost, "/friends/requests/"+url.PathEscape(requestID)+"/"+decision, nil, nil)
}

// SearchMessages runs a full-text query over cached messages. An empty
// channelID searches every channel.
func (c *Client) SearchMessages(ctx context.Context, query, channelID string, limit int) ([]api.SearchHit, error) {
	q := url.Values{"q": {query}}
	if channelID != "" {
		q.Set("channel", channelID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var v []api.SearchHit
	err := c.do(ctx, http.MethodGet, "/search/messages?"+q.Encode(), nil, &v)
	return v, err
}

func (c *Client) SearchChannels(ctx context.Context, query string) ([]api.ChannelView, error) {
	var v []api.ChannelView
	err := c.do(ctx, http.MethodGet, "/search/channels?"+url.Values{"q": {query}}.Encode(), nil, &v)
	return v, err
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var v []model.User
	err := c.do(ctx, http.MethodGet, "/search/users?"+url.Values{"q": {query}}.Encode(), nil, &v)
	return v, err
}

// Metrics returns the Prometheus exposition text.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/metrics", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}
