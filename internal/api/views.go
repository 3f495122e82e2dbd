package api

import (
	"time"

	"github.com/matheus3301/huddle/internal/model"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
)

// StatusView answers GET /status.
type StatusView struct {
	Session      string     `json:"session"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	UptimeMs     int64      `json:"uptime_ms"`
	User         model.User `json:"user"`
	Connected    bool       `json:"connected"`
	Scopes       int        `json:"scopes"`
	Channels     int        `json:"channels"`
	Unread       int        `json:"unread"`
	Active       string     `json:"active,omitempty"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
}

// RequestView is a pending join request.
type RequestView struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Populated bool   `json:"populated"`
}

// ChannelView is one channel of the store.
type ChannelView struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Private        bool          `json:"private"`
	AdminID        string        `json:"admin_id,omitempty"`
	Members        []model.User  `json:"members"`
	JoinRequests   []RequestView `json:"join_requests"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Unread         int           `json:"unread"`
	Active         bool          `json:"active"`
}

// TimelineView answers GET /timeline.
type TimelineView struct {
	ChannelID string          `json:"channel_id"`
	Messages  []model.Message `json:"messages"`
}

// PresenceView answers GET /presence.
type PresenceView struct {
	Online []string `json:"online"`
}

// FriendsView answers GET /friends.
type FriendsView struct {
	Friends  []model.User          `json:"friends"`
	Requests []model.FriendRequest `json:"requests"`
}

// SearchHit is one local full-text match.
type SearchHit struct {
	Message model.Message `json:"message"`
	Snippet string        `json:"snippet"`
}

// QueuedView answers POST /messages.
type QueuedView struct {
	ClientMsgID string `json:"client_msg_id"`
}

// JoinView answers POST /channels/{id}/join.
type JoinView struct {
	Status  string       `json:"status"`
	Channel *ChannelView `json:"channel,omitempty"`
}

// ErrorView is the body of every non-2xx answer.
type ErrorView struct {
	Error string `json:"error"`
}

func channelView(s intsync.ChannelSummary) ChannelView {
	v := ChannelView{
		ID:             s.ID,
		Name:           s.Name,
		Description:    s.Description,
		Private:        s.Private,
		AdminID:        s.AdminID,
		Members:        s.Members,
		JoinRequests:   make([]RequestView, 0, len(s.JoinRequests)),
		LastActivityAt: s.LastActivityAt,
		Unread:         s.Unread,
		Active:         s.Active,
	}
	if v.Members == nil {
		v.Members = []model.User{}
	}
	for _, r := range s.JoinRequests {
		v.JoinRequests = append(v.JoinRequests, RequestView{
			ID:        r.ID,
			Username:  r.Username,
			Email:     r.Email,
			Populated: r.IsPopulated(),
		})
	}
	return v
}

func plainChannelView(ch model.Channel) ChannelView {
	return channelView(intsync.ChannelSummary{Channel: ch})
}

func searchHits(results []store.SearchResult) []SearchHit {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Message: r.Message.Model(), Snippet: r.Snippet})
	}
	return hits
}
