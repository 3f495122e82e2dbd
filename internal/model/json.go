package model

import (
	"bytes"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The service embeds related records either as bare identifier strings or as
// populated objects keyed by "_id". Decoders below accept both forms and also
// the "id" spelling produced by this module's own encoders.

func isString(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '"'
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func pickID(mongoID, id string) string {
	if mongoID != "" {
		return mongoID
	}
	return id
}

type wireUser struct {
	MongoID  string `json:"_id"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsOnline bool   `json:"isOnline"`
}

// UnmarshalJSON accepts a bare identifier or a user object.
func (u *User) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if isString(data) {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = User{ID: id}
		return nil
	}
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	*u = User{ID: pickID(w.MongoID, w.ID), Username: w.Username, Email: w.Email, Online: w.IsOnline}
	return nil
}

// UnmarshalJSON decodes a bare identifier into RefBare and an object carrying
// a username into RefPopulated.
func (r *JoinRequestRef) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	if isString(data) {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Bare(id)
		return nil
	}
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode join request: %w", err)
	}
	id := pickID(w.MongoID, w.ID)
	if w.Username == "" && w.Email == "" {
		*r = Bare(id)
		return nil
	}
	*r = Populated(id, w.Username, w.Email)
	return nil
}

// MarshalJSON writes bare references as strings and populated ones as
// objects, the same shapes the service uses.
func (r JoinRequestRef) MarshalJSON() ([]byte, error) {
	if r.Kind == RefBare {
		return json.Marshal(r.ID)
	}
	return json.Marshal(struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}{r.ID, r.Username, r.Email})
}

type wireChannel struct {
	MongoID        string           `json:"_id"`
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Private        bool             `json:"isPrivate"`
	Admin          *User            `json:"admin"`
	Members        []User           `json:"members"`
	JoinRequests   []JoinRequestRef `json:"joinRequests"`
	LastMessageAt  *time.Time       `json:"lastMessageAt"`
	LastActivityAt *time.Time       `json:"lastActivityAt"`
}

func (c *Channel) UnmarshalJSON(data []byte) error {
	var w wireChannel
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode channel: %w", err)
	}
	*c = Channel{
		ID:           pickID(w.MongoID, w.ID),
		Name:         w.Name,
		Description:  w.Description,
		Private:      w.Private,
		Members:      dedupeUsers(w.Members),
		JoinRequests: w.JoinRequests,
	}
	if w.Admin != nil {
		c.AdminID = w.Admin.ID
	}
	for _, ts := range []*time.Time{w.LastMessageAt, w.LastActivityAt} {
		if ts != nil && ts.After(c.LastActivityAt) {
			c.LastActivityAt = *ts
		}
	}
	return nil
}

func dedupeUsers(users []User) []User {
	if len(users) == 0 {
		return users
	}
	seen := make(map[string]struct{}, len(users))
	out := users[:0]
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

type wireRef struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
}

// refID decodes either a bare identifier or an object with an identifier.
func refID(data []byte) (string, error) {
	if len(data) == 0 || isNull(data) {
		return "", nil
	}
	if isString(data) {
		var id string
		err := json.Unmarshal(data, &id)
		return id, err
	}
	var w wireRef
	if err := json.Unmarshal(data, &w); err != nil {
		return "", err
	}
	return pickID(w.MongoID, w.ID), nil
}

type wireMessage struct {
	MongoID    string              `json:"_id"`
	ID         string              `json:"id"`
	Channel    jsoniter.RawMessage `json:"channel"`
	ChannelID  string              `json:"channelId"`
	Sender     User                `json:"sender"`
	Content    string              `json:"content"`
	FileURL    string              `json:"fileUrl"`
	FileType   string              `json:"fileType"`
	Attachment *Attachment         `json:"attachment"`
	CreatedAt  time.Time           `json:"createdAt"`
	Deleted    bool                `json:"isDeleted"`
	DeletedBy  jsoniter.RawMessage `json:"deletedBy"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	channelID := w.ChannelID
	if len(w.Channel) > 0 {
		id, err := refID(w.Channel)
		if err != nil {
			return fmt.Errorf("decode message channel: %w", err)
		}
		if id != "" {
			channelID = id
		}
	}
	deletedBy, err := refID(w.DeletedBy)
	if err != nil {
		return fmt.Errorf("decode message deletedBy: %w", err)
	}
	*m = Message{
		ID:        pickID(w.MongoID, w.ID),
		ChannelID: channelID,
		Sender:    w.Sender,
		Content:   w.Content,
		File:      w.Attachment,
		CreatedAt: w.CreatedAt,
		Deleted:   w.Deleted,
		DeletedBy: deletedBy,
	}
	if m.File == nil && w.FileURL != "" {
		m.File = &Attachment{URL: w.FileURL, Kind: w.FileType}
	}
	return nil
}

type wireDeletion struct {
	MongoID   string              `json:"_id"`
	ID        string              `json:"id"`
	Content   string              `json:"content"`
	DeletedBy jsoniter.RawMessage `json:"deletedBy"`
}

// UnmarshalJSON accepts a bare message identifier (legacy event) or the
// {id, content, deletedBy} record.
func (d *Deletion) UnmarshalJSON(data []byte) error {
	if isString(data) {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*d = Deletion{ID: id}
		return nil
	}
	var w wireDeletion
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode deletion: %w", err)
	}
	deletedBy, err := refID(w.DeletedBy)
	if err != nil {
		return fmt.Errorf("decode deletion deletedBy: %w", err)
	}
	*d = Deletion{ID: pickID(w.MongoID, w.ID), Content: w.Content, DeletedBy: deletedBy}
	return nil
}

type wireFriendRequest struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Sender  User   `json:"sender"`
	Status  string `json:"status"`
}

func (r *FriendRequest) UnmarshalJSON(data []byte) error {
	var w wireFriendRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode friend request: %w", err)
	}
	*r = FriendRequest{ID: pickID(w.MongoID, w.ID), Sender: w.Sender, Status: w.Status}
	return nil
}
