package chat

import "time"

// Message types accepted on the wire.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
)

// Conversation is a direct chat between exactly two users. The pair is
// stored normalized (UserLow < UserHigh) so the database can enforce
// at most one conversation per unordered pair.
type Conversation struct {
	ID            int       `json:"id"`
	UserLow       int       `json:"-"`
	UserHigh      int       `json:"-"`
	LastMessageID *int      `json:"last_message_id,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// NormalizePair orders two user ids so (a,b) and (b,a) address the
// same conversation.
func NormalizePair(a, b int) (low, high int) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID int) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Participants returns both members; order is not meaningful.
func (c *Conversation) Participants() [2]int {
	return [2]int{c.UserLow, c.UserHigh}
}

// PeerOf returns the other participant.
func (c *Conversation) PeerOf(userID int) int {
	if userID == c.UserLow {
		return c.UserHigh
	}
	return c.UserLow
}

type Message struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	Username       string     `json:"username"` // denormalized sender name for display
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DeliveredAt    time.Time  `json:"delivered_at"`
}

// ReadReceipt identifies one message flipped to read and the sender
// who should be notified.
type ReadReceipt struct {
	MessageID int
	SenderID  int
}

// ConversationSummary is the REST listing shape: the conversation from
// the caller's point of view, with peer identity and last message.
type ConversationSummary struct {
	ID            int       `json:"id"`
	PeerID        int       `json:"peer_id"`
	PeerUsername  string    `json:"peer_username"`
	PeerOnline    bool      `json:"peer_online"`
	PeerLastSeen  time.Time `json:"peer_last_seen"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
}
