package store

// CachedMessage is a message row of the local cache.
type CachedMessage struct {
	ID         int64
	ChannelID  string
	MsgID      string
	SenderID   string
	SenderName string
	Content    string
	FileURL    string
	FileKind   string
	Deleted    bool
	DeletedBy  string
	CreatedAt  int64 // unix millis
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChannelID    string
	Content      string
	FilePath     string
	Status       string
	Attempts     int
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
}

// SearchResult holds a cached message with a highlighted snippet.
type SearchResult struct {
	Message CachedMessage
	Snippet string
}
