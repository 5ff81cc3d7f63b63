package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Store is the persisted conversation/message surface the core
// consumes. *Repository satisfies it; tests plug in a fake.
type Store interface {
	FindConversation(ctx context.Context, a, b int) (*Conversation, error)
	CreateConversation(ctx context.Context, a, b int) (*Conversation, error)
	GetConversation(ctx context.Context, id int) (*Conversation, error)
	AppendMessage(ctx context.Context, m *Message) (*Message, error)
	UpdateConversationLast(ctx context.Context, conversationID, messageID int, at time.Time) error
	MarkMessagesRead(ctx context.Context, conversationID, readerID int, ids []int, at time.Time) ([]ReadReceipt, error)
	ListMessages(ctx context.Context, conversationID int) ([]*Message, error)
	ListConversations(ctx context.Context, userID int) ([]*ConversationSummary, error)
}

// Directory is the slice of the user service the core needs: display
// names and the persisted presence flags.
type Directory interface {
	Username(ctx context.Context, userID int) (string, error)
	SetOnline(ctx context.Context, userID int, online bool, seen time.Time) error
}

// Service is the real-time coordination core: it owns the presence
// transitions, message fan-out, typing relay, and read receipts.
type Service struct {
	store    Store
	users    Directory
	presence *Registry
	hub      *Hub
	validate *validator.Validate
}

func NewService(store Store, users Directory, presence *Registry, hub *Hub) *Service {
	return &Service{
		store:    store,
		users:    users,
		presence: presence,
		hub:      hub,
		validate: validator.New(),
	}
}

// ResolveUser confirms the identity still exists and returns its
// canonical display name. The gateway calls this before upgrading so
// tokens for deleted users are refused.
func (s *Service) ResolveUser(ctx context.Context, userID int) (string, error) {
	return s.users.Username(ctx, userID)
}

// Connect registers a live connection. The user's first connection
// flips them online in the store and announces user:online to every
// other connected user; further devices attach silently.
func (s *Service) Connect(ctx context.Context, userID int, connID string, sink Sink) {
	first := s.presence.Register(userID, connID, sink)
	if !first {
		return
	}

	if err := s.users.SetOnline(ctx, userID, true, time.Now()); err != nil {
		log.Printf("presence: persisting online for user %d: %v", userID, err)
	}
	payload, err := NewEvent(EventUserOnline, PresencePayload{UserID: userID, IsOnline: true})
	if err != nil {
		return
	}
	s.hub.BroadcastExcept(ctx, userID, payload)
}

// Disconnect unregisters a connection. Dropping the user's last
// connection clears any stuck typing indicator toward the peer,
// persists last_seen, and announces user:offline exactly once.
func (s *Service) Disconnect(ctx context.Context, userID int, connID string) {
	last, typingIn := s.presence.Unregister(userID, connID)
	if !last {
		return
	}

	if typingIn != 0 {
		s.relayTypingStop(ctx, userID, typingIn)
	}

	if err := s.users.SetOnline(ctx, userID, false, time.Now()); err != nil {
		log.Printf("presence: persisting offline for user %d: %v", userID, err)
	}
	payload, err := NewEvent(EventUserOffline, PresencePayload{UserID: userID, IsOnline: false})
	if err != nil {
		return
	}
	s.hub.BroadcastExcept(ctx, userID, payload)
}

// participantConversation loads the conversation and enforces that the
// caller belongs to it. Non-participants get ErrNotParticipant, the
// same answer as a conversation that does not exist.
func (s *Service) participantConversation(ctx context.Context, userID, conversationID int) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// SendMessage validates, persists, and fans out one message. The write
// completes before any push so no recipient ever sees a message that a
// fetch would not return. Every participant's connections get the
// event, including the sender's other devices; offline participants
// are skipped silently and catch up from history.
func (s *Service) SendMessage(ctx context.Context, senderID int, req SendRequest) (*Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.MessageType == "" {
		req.MessageType = TypeText
	}
	if req.Content == "" {
		return nil, ErrEmptyContent
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	conv, err := s.participantConversation(ctx, senderID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	username, err := s.users.Username(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		DeliveredAt:    time.Now(),
	}
	saved, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversationLast(ctx, conv.ID, saved.ID, saved.DeliveredAt); err != nil {
		return nil, err
	}

	saved.Username = username
	payload, err := NewEvent(EventMessageNew, NewMessagePayload{Message: saved, ConversationID: conv.ID})
	if err != nil {
		return nil, err
	}
	for _, participantID := range conv.Participants() {
		s.hub.Send(ctx, participantID, payload)
	}
	return saved, nil
}

// StartTyping records the typing context and relays typing:start to
// the other participant. Non-participants are ignored, not errored:
// typing is advisory traffic.
func (s *Service) StartTyping(ctx context.Context, userID, conversationID int) error {
	conv, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return nil
		}
		return err
	}

	s.presence.SetTyping(userID, conv.ID)

	username, err := s.users.Username(ctx, userID)
	if err != nil {
		return err
	}
	payload, err := NewEvent(EventTypingStart, TypingPayload{
		ConversationID: conv.ID,
		UserID:         userID,
		Username:       username,
	})
	if err != nil {
		return err
	}
	s.hub.Send(ctx, conv.PeerOf(userID), payload)
	return nil
}

// StopTyping clears the typing context and relays typing:stop.
func (s *Service) StopTyping(ctx context.Context, userID, conversationID int) error {
	conv, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return nil
		}
		return err
	}

	s.presence.ClearTyping(userID)
	s.relayTypingStop(ctx, userID, conv.ID)
	return nil
}

// relayTypingStop pushes typing:stop to the conversation's other
// participant. Also the compensating path when a typing user's last
// connection drops.
func (s *Service) relayTypingStop(ctx context.Context, userID, conversationID int) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		log.Printf("typing: resolving conversation %d: %v", conversationID, err)
		return
	}
	payload, err := NewEvent(EventTypingStop, TypingPayload{
		ConversationID: conv.ID,
		UserID:         userID,
	})
	if err != nil {
		return
	}
	s.hub.Send(ctx, conv.PeerOf(userID), payload)
}

// MarkRead flips the given messages to read on behalf of the reader
// and notifies each affected message's original sender. Messages the
// reader sent, and messages already read, match nothing: repeat calls
// are no-ops. The ids arrive batched so one burst of messages costs
// one call.
func (s *Service) MarkRead(ctx context.Context, readerID, conversationID int, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}

	conv, err := s.participantConversation(ctx, readerID, conversationID)
	if err != nil {
		return err
	}

	receipts, err := s.store.MarkMessagesRead(ctx, conv.ID, readerID, lo.Uniq(messageIDs), time.Now())
	if err != nil {
		return err
	}

	for _, rec := range receipts {
		payload, err := NewEvent(EventMessageRead, ReadPayload{
			MessageID:      rec.MessageID,
			ConversationID: conv.ID,
			ReadBy:         readerID,
		})
		if err != nil {
			return err
		}
		s.hub.Send(ctx, rec.SenderID, payload)
	}
	return nil
}

// StartConversation finds or lazily creates the conversation between
// the caller and peerID. A concurrent create by the other side loses
// the unique-constraint race and re-fetches the winner's row.
func (s *Service) StartConversation(ctx context.Context, userID, peerID int) (*Conversation, error) {
	if userID == peerID {
		return nil, ErrSelfConversation
	}
	if _, err := s.users.Username(ctx, peerID); err != nil {
		return nil, err
	}

	conv, err := s.store.FindConversation(ctx, userID, peerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotParticipant) {
		return nil, err
	}

	conv, err = s.store.CreateConversation(ctx, userID, peerID)
	if errors.Is(err, ErrConversationExists) {
		return s.store.FindConversation(ctx, userID, peerID)
	}
	return conv, err
}

// ListConversations returns the caller's conversations for the REST
// surface.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]*ConversationSummary, error) {
	return s.store.ListConversations(ctx, userID)
}

// ListMessages returns a conversation's history, gated by the same
// participant check as the real-time operations.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID int) ([]*Message, error) {
	conv, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conv.ID)
}
