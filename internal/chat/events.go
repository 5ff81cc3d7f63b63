package chat

import "encoding/json"

// Event names shared by both directions of the websocket protocol.
// "message:send" and "message:read" arrive from clients; the rest are
// pushed by the server ("message:read" goes both ways with different
// payloads: ids in, receipts out).
const (
	EventMessageSend = "message:send"
	EventMessageNew  = "message:new"
	EventMessageRead = "message:read"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
	EventError       = "error"
)

// Event is the wire envelope: {"event": "...", "data": {...}}.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent marshals data and wraps it in the envelope.
func NewEvent(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: name, Data: raw})
}

// SendRequest is the client payload for message:send.
type SendRequest struct {
	ConversationID int    `json:"conversation_id" validate:"required,gt=0"`
	Content        string `json:"content" validate:"required"`
	MessageType    string `json:"message_type" validate:"omitempty,oneof=text image file"`
}

// TypingRequest is the client payload for typing:start / typing:stop.
type TypingRequest struct {
	ConversationID int `json:"conversation_id"`
}

// ReadRequest is the client payload for message:read. Clients batch
// the ids of messages visible on screen into one call.
type ReadRequest struct {
	ConversationID int   `json:"conversation_id"`
	MessageIDs     []int `json:"message_ids"`
}

// NewMessagePayload is pushed as message:new to every participant.
type NewMessagePayload struct {
	Message        *Message `json:"message"`
	ConversationID int      `json:"conversation_id"`
}

// TypingPayload is relayed to the other participant. Username is only
// set on typing:start.
type TypingPayload struct {
	ConversationID int    `json:"conversation_id"`
	UserID         int    `json:"user_id"`
	Username       string `json:"username,omitempty"`
}

// ReadPayload notifies a message's original sender that it was read.
type ReadPayload struct {
	MessageID      int `json:"message_id"`
	ConversationID int `json:"conversation_id"`
	ReadBy         int `json:"read_by"`
}

// PresencePayload is broadcast as user:online / user:offline.
type PresencePayload struct {
	UserID   int  `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

// ErrorPayload carries an operation failure back to the caller only.
type ErrorPayload struct {
	Message string `json:"message"`
}
