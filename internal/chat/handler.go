package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	myMiddleware "github.com/KrishnaChhetry/Chat-App/internal/middleware"
	"github.com/KrishnaChhetry/Chat-App/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ServeWs is the connection gateway. The JWT middleware has already
// verified the token; the handler re-resolves the user so a token for
// a since-deleted account is refused, then upgrades and registers the
// connection. Authentication failure is terminal for the attempt.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username, err := h.service.ResolveUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(h.service, conn, userID, username)
	h.service.Connect(r.Context(), userID, client.ID, client)

	go client.WritePump()
	go client.ReadPump()
}

type startConversationRequest struct {
	ParticipantID int `json:"participant_id"`
}

type startConversationResponse struct {
	ConversationID int `json:"conversation_id"`
	PeerID         int `json:"peer_id"`
}

// StartConversation finds or creates the conversation between the
// caller and the given participant.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	callerID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ParticipantID == 0 {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	conv, err := h.service.StartConversation(r.Context(), callerID, req.ParticipantID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfConversation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, user.ErrUserNotFound):
			http.Error(w, "participant not found", http.StatusNotFound)
		default:
			http.Error(w, "failed to start conversation", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startConversationResponse{
		ConversationID: conv.ID,
		PeerID:         conv.PeerOf(callerID),
	})
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	callerID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.service.ListConversations(r.Context(), callerID)
	if err != nil {
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// GetMessages returns a conversation's history. Non-participants get
// 404, indistinguishable from a conversation that does not exist.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	callerID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	messages, err := h.service.ListMessages(r.Context(), callerID, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
