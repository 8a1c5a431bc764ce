// internal/messaging/postgres.go

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// uniqueViolation is the Postgres error code for a unique constraint hit
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateConversation inserts the conversation and both participant rows
// in one transaction. The conversation must already carry a canonical
// pair (UserA < UserB); the unique constraint on the pair turns a
// concurrent duplicate create into ErrDuplicateConversation.
func (r *postgresRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin conversation tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO conversations (user_a, user_b, last_message_at, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id`,
		conv.UserA, conv.UserB, conv.LastMessageAt, conv.CreatedAt,
	).Scan(&conv.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO conversation_participants (conversation_id, user_id, unread_count)
        VALUES ($1, $2, 0), ($1, $3, 0)`,
		conv.ID, conv.UserA, conv.UserB,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *postgresRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var conv Conversation
	query := `
        SELECT id, user_a, user_b, last_message_id, last_message_at, created_at
        FROM conversations
        WHERE id = $1`

	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conv.Participants = []int64{conv.UserA, conv.UserB}
	return &conv, nil
}

func (r *postgresRepository) GetConversationByPair(ctx context.Context, userA, userB int64) (*Conversation, error) {
	var conv Conversation
	query := `
        SELECT id, user_a, user_b, last_message_id, last_message_at, created_at
        FROM conversations
        WHERE user_a = $1 AND user_b = $2`

	if err := r.db.GetContext(ctx, &conv, query, userA, userB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conv.Participants = []int64{conv.UserA, conv.UserB}
	return &conv, nil
}

// ListUserConversations returns the user's conversations newest-activity
// first, each annotated with the caller's unread count and the other
// participant's profile.
func (r *postgresRepository) ListUserConversations(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error) {
	query := `
        SELECT
            c.id, c.user_a, c.user_b, c.last_message_id, c.last_message_at, c.created_at,
            cp.unread_count,
            u.id, u.name, u.email, u.role, u.is_verified, u.batch, u.department, u.avatar_url
        FROM conversations c
        JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
        JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
        WHERE c.user_a = $1 OR c.user_b = $1
        ORDER BY c.last_message_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversationRows(rows)
}

func (r *postgresRepository) CountUserConversations(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM conversations WHERE user_a = $1 OR user_b = $1`, userID,
	).Scan(&total)
	return total, err
}

// ListAllConversations is the admin view: every conversation, newest
// activity first, without a caller-specific unread annotation.
func (r *postgresRepository) ListAllConversations(ctx context.Context, limit, offset int) ([]*Conversation, error) {
	conversations := []*Conversation{}
	query := `
        SELECT id, user_a, user_b, last_message_id, last_message_at, created_at
        FROM conversations
        ORDER BY last_message_at DESC
        LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &conversations, query, limit, offset); err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		conv.Participants = []int64{conv.UserA, conv.UserB}
	}
	return conversations, nil
}

func (r *postgresRepository) CountAllConversations(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&total)
	return total, err
}

func (r *postgresRepository) IncrementUnread(ctx context.Context, conversationID, userID int64) error {
	query := `
        UPDATE conversation_participants
        SET unread_count = unread_count + 1
        WHERE conversation_id = $1 AND user_id = $2`

	_, err := r.db.ExecContext(ctx, query, conversationID, userID)
	return err
}

func (r *postgresRepository) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	query := `
        UPDATE conversation_participants
        SET unread_count = 0
        WHERE conversation_id = $1 AND user_id = $2`

	_, err := r.db.ExecContext(ctx, query, conversationID, userID)
	return err
}

func (r *postgresRepository) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	query := `
        UPDATE conversations
        SET last_message_id = $1, last_message_at = $2
        WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, messageID, at, conversationID)
	return err
}

func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
	query := `
        INSERT INTO messages (conversation_id, sender_id, content, message_type, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`

	return r.db.QueryRowContext(
		ctx, query,
		message.ConversationID, message.SenderID, message.Content,
		message.MessageType, message.CreatedAt,
	).Scan(&message.ID)
}

func (r *postgresRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	query := `
        SELECT id, conversation_id, sender_id, content, message_type,
               is_edited, edited_at, is_deleted, deleted_at, created_at
        FROM messages
        WHERE id = $1`

	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns non-deleted messages newest-first with sender
// profiles resolved. Callers reverse the slice for chat display. The
// serial primary key is the tie-break for messages created within the
// same timestamp.
func (r *postgresRepository) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error) {
	query := `
        SELECT
            m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
            m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at,
            u.id, u.name, u.email, u.role, u.is_verified, u.batch, u.department, u.avatar_url
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id = $1 AND m.is_deleted = false
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessageRows(rows)
}

func (r *postgresRepository) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages
        WHERE conversation_id = $1 AND is_deleted = false`, conversationID,
	).Scan(&total)
	return total, err
}

func (r *postgresRepository) UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	query := `
        UPDATE messages
        SET content = $1, is_edited = true, edited_at = $2
        WHERE id = $3 AND is_deleted = false`

	result, err := r.db.ExecContext(ctx, query, content, editedAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *postgresRepository) SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error {
	query := `
        UPDATE messages
        SET is_deleted = true, deleted_at = $1
        WHERE id = $2 AND is_deleted = false`

	result, err := r.db.ExecContext(ctx, query, deletedAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchMessages runs a case-insensitive substring match over non-deleted
// content in conversations the user participates in, optionally narrowed
// to one conversation. Newest first, no ranking.
func (r *postgresRepository) SearchMessages(ctx context.Context, userID int64, conversationID *int64, query string, limit int) ([]*Message, error) {
	pattern := "%" + query + "%"

	sqlQuery := `
        SELECT
            m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
            m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at,
            u.id, u.name, u.email, u.role, u.is_verified, u.batch, u.department, u.avatar_url
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        JOIN users u ON u.id = m.sender_id
        WHERE (c.user_a = $1 OR c.user_b = $1)
          AND m.is_deleted = false
          AND m.content ILIKE $2`

	args := []interface{}{userID, pattern}
	if conversationID != nil {
		sqlQuery += ` AND m.conversation_id = $3`
		args = append(args, *conversationID)
	}
	sqlQuery += fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessageRows(rows)
}

// MarkMessageRead is idempotent: the unique constraint plus DO NOTHING
// keeps at most one receipt per (message, user).
func (r *postgresRepository) MarkMessageRead(ctx context.Context, messageID, userID int64, readAt time.Time) error {
	query := `
        INSERT INTO message_reads (message_id, user_id, read_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, messageID, userID, readAt)
	return err
}

// MarkConversationRead inserts a receipt for every non-deleted message
// in the conversation that the reader did not send. Existing receipts
// are untouched.
func (r *postgresRepository) MarkConversationRead(ctx context.Context, conversationID, readerID int64, readAt time.Time) error {
	query := `
        INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT m.id, $2, $3
        FROM messages m
        WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND m.is_deleted = false
        ON CONFLICT (message_id, user_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, conversationID, readerID, readAt)
	return err
}

func (r *postgresRepository) GetMessageReads(ctx context.Context, messageID int64) ([]*ReadReceipt, error) {
	receipts := []*ReadReceipt{}
	query := `
        SELECT message_id, user_id, read_at
        FROM message_reads
        WHERE message_id = $1
        ORDER BY read_at ASC`

	if err := r.db.SelectContext(ctx, &receipts, query, messageID); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *postgresRepository) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	var user UserInfo
	query := `
        SELECT id, name, email, role, is_verified, batch, department, avatar_url
        FROM users
        WHERE id = $1`

	if err := r.db.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Row scanning helpers

func scanConversationRows(rows *sql.Rows) ([]*Conversation, error) {
	conversations := []*Conversation{}
	for rows.Next() {
		var conv Conversation
		var other UserInfo

		err := rows.Scan(
			&conv.ID, &conv.UserA, &conv.UserB, &conv.LastMessageID,
			&conv.LastMessageAt, &conv.CreatedAt,
			&conv.UnreadCount,
			&other.ID, &other.Name, &other.Email, &other.Role,
			&other.IsVerified, &other.Batch, &other.Department, &other.AvatarURL,
		)
		if err != nil {
			return nil, err
		}

		conv.Participants = []int64{conv.UserA, conv.UserB}
		conv.OtherParticipant = &other
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

func scanMessageRows(rows *sql.Rows) ([]*Message, error) {
	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var sender UserInfo

		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.MessageType,
			&msg.IsEdited, &msg.EditedAt, &msg.IsDeleted, &msg.DeletedAt, &msg.CreatedAt,
			&sender.ID, &sender.Name, &sender.Email, &sender.Role,
			&sender.IsVerified, &sender.Batch, &sender.Department, &sender.AvatarURL,
		)
		if err != nil {
			return nil, err
		}

		msg.Sender = &sender
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
