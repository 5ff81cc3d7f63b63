package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

// Client is one live websocket bound to an authenticated user. It is
// the middleman between the connection and the coordination core: the
// read pump turns frames into service calls, the write pump drains the
// send queue.
type Client struct {
	ID       string
	UserID   int
	Username string

	conn    *websocket.Conn
	service *Service
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func NewClient(service *Service, conn *websocket.Conn, userID int, username string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		conn:     conn,
		service:  service,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Push enqueues payload without blocking. A closed connection or a
// full queue reports an error so the hub drops this push rather than
// stall fan-out to everyone else. The send channel is only ever
// drained, never closed: fan-out goroutines may race Close, and a
// send on a closed channel would panic.
func (c *Client) Push(payload []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		return errors.New("send queue full")
	}
}

// Close signals the write pump to exit. Safe to call from the hub,
// the registry shutdown, and the read pump's cleanup at once, and
// safe against pushes still in flight.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// ReadPump pumps frames from the websocket into the service. It owns
// the disconnect path: when the read loop exits for any reason the
// connection is unregistered and presence cleanup runs.
func (c *Client) ReadPump() {
	defer func() {
		c.service.Disconnect(context.Background(), c.UserID, c.ID)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error for user %d: %v", c.UserID, err)
			}
			break
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.sendError("Malformed event")
		return
	}

	ctx := context.Background()
	switch evt.Event {
	case EventMessageSend:
		var req SendRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			c.sendError("Malformed event")
			return
		}
		if _, err := c.service.SendMessage(ctx, c.UserID, req); err != nil {
			c.sendError(sendFailureMessage(err))
		}

	case EventTypingStart:
		var req TypingRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			return
		}
		if err := c.service.StartTyping(ctx, c.UserID, req.ConversationID); err != nil {
			log.Printf("ws: typing:start for user %d: %v", c.UserID, err)
		}

	case EventTypingStop:
		var req TypingRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			return
		}
		if err := c.service.StopTyping(ctx, c.UserID, req.ConversationID); err != nil {
			log.Printf("ws: typing:stop for user %d: %v", c.UserID, err)
		}

	case EventMessageRead:
		var req ReadRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			c.sendError("Malformed event")
			return
		}
		if err := c.service.MarkRead(ctx, c.UserID, req.ConversationID, req.MessageIDs); err != nil {
			if errors.Is(err, ErrNotParticipant) {
				c.sendError("Conversation not found")
			} else {
				c.sendError("Failed to mark messages as read")
			}
		}

	default:
		c.sendError("Unknown event")
	}
}

// sendFailureMessage maps internal errors to what the caller may see.
// Non-participants get the same answer as a missing conversation.
func sendFailureMessage(err error) string {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotParticipant):
		return "Conversation not found"
	case errors.Is(err, ErrEmptyContent):
		return "Message cannot be empty"
	case errors.As(err, &verr):
		return "Invalid message"
	default:
		return "Failed to send message"
	}
}

func (c *Client) sendError(msg string) {
	payload, err := NewEvent(EventError, ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	if err := c.Push(payload); err != nil {
		log.Printf("ws: dropping error event for user %d: %v", c.UserID, err)
	}
}

// WritePump pumps queued payloads to the websocket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
