// Package model holds the domain records shared by the REST fetcher, the push
// adapter and the reconciliation engine.
package model

import "time"

const (
	// GenericTombstone replaces the content of a message deleted without an
	// authoritative replacement.
	GenericTombstone = "This message was deleted"
	// AdminTombstone is the content the service uses when a channel admin
	// deletes somebody else's message.
	AdminTombstone = "Admin has deleted that message"
)

// User is a member, applicant, friend or message sender.
// Online is a hint when decoded; views overwrite it from the presence set.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Online   bool   `json:"isOnline"`
}

// RefKind tags a JoinRequestRef.
type RefKind uint8

const (
	RefBare RefKind = iota
	RefPopulated
)

func (k RefKind) String() string {
	if k == RefPopulated {
		return "populated"
	}
	return "bare"
}

// JoinRequestRef points at a pending applicant of a private channel. The list
// endpoint usually returns bare identifiers, the detail endpoint populated
// records.
type JoinRequestRef struct {
	Kind     RefKind
	ID       string
	Username string
	Email    string
}

// Bare returns a reference that only carries the applicant identifier.
func Bare(id string) JoinRequestRef {
	return JoinRequestRef{Kind: RefBare, ID: id}
}

// Populated returns a reference carrying the applicant's profile.
func Populated(id, username, email string) JoinRequestRef {
	return JoinRequestRef{Kind: RefPopulated, ID: id, Username: username, Email: email}
}

// IsPopulated reports whether r carries profile data.
func (r JoinRequestRef) IsPopulated() bool {
	return r.Kind == RefPopulated
}

// User converts the reference into a User record.
func (r JoinRequestRef) User() User {
	return User{ID: r.ID, Username: r.Username, Email: r.Email}
}

// Channel is a conversation scope the local user may belong to.
type Channel struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Private        bool             `json:"isPrivate"`
	AdminID        string           `json:"admin,omitempty"`
	Members        []User           `json:"members"`
	JoinRequests   []JoinRequestRef `json:"joinRequests"`
	LastActivityAt time.Time        `json:"lastActivityAt"`
}

// HasMember reports whether userID is in the member set.
func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// DisplayName is the name used in notifications.
func (c *Channel) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Clone returns a deep copy of c.
func (c Channel) Clone() Channel {
	c.Members = append([]User(nil), c.Members...)
	c.JoinRequests = append([]JoinRequestRef(nil), c.JoinRequests...)
	return c
}

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Message is a single timeline entry. Deleted messages keep their slot and
// carry a tombstone in Content.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channelId"`
	Sender    User        `json:"sender"`
	Content   string      `json:"content"`
	File      *Attachment `json:"attachment,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	Deleted   bool        `json:"isDeleted"`
	DeletedBy string      `json:"deletedBy,omitempty"`
}

// Deletion is the payload of a message_deleted event or a DELETE response.
// Legacy events only carry the identifier.
type Deletion struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	DeletedBy string `json:"deletedBy,omitempty"`
}

// Tombstone returns the content the deleted message should carry.
func (d Deletion) Tombstone() string {
	if d.Content == "" {
		return GenericTombstone
	}
	return d.Content
}

// FriendRequest is an incoming friend request awaiting a response.
type FriendRequest struct {
	ID     string `json:"id"`
	Sender User   `json:"sender"`
	Status string `json:"status,omitempty"`
}
