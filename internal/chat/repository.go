package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const conversationColumns = "id, user_low, user_high, last_message_id, last_message_at, created_at"

func scanConversation(row *sql.Row) (*Conversation, error) {
	c := &Conversation{}
	var lastMessageID sql.NullInt64
	err := row.Scan(&c.ID, &c.UserLow, &c.UserHigh, &lastMessageID, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		id := int(lastMessageID.Int64)
		c.LastMessageID = &id
	}
	return c, nil
}

// FindConversation looks up the conversation for an unordered pair.
func (r *Repository) FindConversation(ctx context.Context, a, b int) (*Conversation, error) {
	low, high := NormalizePair(a, b)
	query := "SELECT " + conversationColumns + " FROM conversations WHERE user_low = $1 AND user_high = $2"

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, low, high))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	return c, nil
}

// CreateConversation inserts the pair. The unique constraint makes
// concurrent creates race-safe: the loser gets ErrConversationExists
// and re-fetches.
func (r *Repository) CreateConversation(ctx context.Context, a, b int) (*Conversation, error) {
	low, high := NormalizePair(a, b)
	query := `INSERT INTO conversations (user_low, user_high)
	          VALUES ($1, $2)
	          RETURNING ` + conversationColumns

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, low, high))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConversationExists
		}
		return nil, err
	}
	return c, nil
}

func (r *Repository) GetConversation(ctx context.Context, id int) (*Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations WHERE id = $1"

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	return c, nil
}

// AppendMessage persists a new message and fills in its id.
func (r *Repository) AppendMessage(ctx context.Context, m *Message) (*Message, error) {
	query := `INSERT INTO messages (conversation_id, sender_id, content, message_type, delivered_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		m.ConversationID, m.SenderID, m.Content, m.MessageType, m.DeliveredAt,
	).Scan(&m.ID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateConversationLast moves the conversation's last-message marker.
func (r *Repository) UpdateConversationLast(ctx context.Context, conversationID, messageID int, at time.Time) error {
	query := "UPDATE conversations SET last_message_id = $2, last_message_at = $3 WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, conversationID, messageID, at)
	return err
}

// MarkMessagesRead flips is_read for the given ids, skipping the
// reader's own messages and anything already read, and returns one
// receipt per row actually updated. Folding the update and the
// follow-up fetch into one RETURNING statement keeps repeat calls
// idempotent: a second call matches nothing and returns nothing.
func (r *Repository) MarkMessagesRead(ctx context.Context, conversationID, readerID int, ids []int, at time.Time) ([]ReadReceipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+4)
	}
	query := `UPDATE messages
	          SET is_read = TRUE, read_at = $3
	          WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	            AND id IN (` + strings.Join(placeholders, ", ") + `)
	          RETURNING id, sender_id`

	args := append([]any{conversationID, readerID, at},
		lo.Map(ids, func(id int, _ int) any { return id })...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []ReadReceipt
	for rows.Next() {
		var rec ReadReceipt
		if err := rows.Scan(&rec.MessageID, &rec.SenderID); err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

// ListMessages returns a conversation's full history in append order,
// with sender usernames resolved.
func (r *Repository) ListMessages(ctx context.Context, conversationID int) ([]*Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content,
	                 m.message_type, m.is_read, m.read_at, m.delivered_at
	          FROM messages m
	          JOIN users u ON u.id = m.sender_id
	          WHERE m.conversation_id = $1
	          ORDER BY m.id`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var readAt sql.NullTime
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Username, &m.Content,
			&m.MessageType, &m.IsRead, &readAt, &m.DeliveredAt)
		if err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListConversations returns the caller's conversations, most recently
// active first, each with the peer's identity and last message.
func (r *Repository) ListConversations(ctx context.Context, userID int) ([]*ConversationSummary, error) {
	query := `SELECT c.id, c.last_message_at,
	                 u.id, u.username, u.is_online, u.last_seen,
	                 m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
	                 m.is_read, m.read_at, m.delivered_at
	          FROM conversations c
	          JOIN users u ON u.id = CASE WHEN c.user_low = $1 THEN c.user_high ELSE c.user_low END
	          LEFT JOIN messages m ON m.id = c.last_message_id
	          WHERE $1 IN (c.user_low, c.user_high)
	          ORDER BY c.last_message_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		s := &ConversationSummary{}
		var msgID, msgConvID, msgSenderID sql.NullInt64
		var msgContent, msgType sql.NullString
		var msgIsRead sql.NullBool
		var msgReadAt, msgDeliveredAt sql.NullTime
		err := rows.Scan(&s.ID, &s.LastMessageAt,
			&s.PeerID, &s.PeerUsername, &s.PeerOnline, &s.PeerLastSeen,
			&msgID, &msgConvID, &msgSenderID, &msgContent, &msgType,
			&msgIsRead, &msgReadAt, &msgDeliveredAt)
		if err != nil {
			return nil, err
		}
		if msgID.Valid {
			m := &Message{
				ID:             int(msgID.Int64),
				ConversationID: int(msgConvID.Int64),
				SenderID:       int(msgSenderID.Int64),
				Content:        msgContent.String,
				MessageType:    msgType.String,
				IsRead:         msgIsRead.Bool,
				DeliveredAt:    msgDeliveredAt.Time,
			}
			if msgReadAt.Valid {
				m.ReadAt = &msgReadAt.Time
			}
			s.LastMessage = m
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
