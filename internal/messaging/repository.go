// internal/messaging/repository.go

package messaging

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateConversation is returned by CreateConversation when the
// canonical pair already has a thread. Callers resolve the concurrent
// find-or-create race by re-fetching.
var ErrDuplicateConversation = errors.New("conversation already exists for this pair")

type Repository interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	GetConversationByPair(ctx context.Context, userA, userB int64) (*Conversation, error)
	ListUserConversations(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error)
	CountUserConversations(ctx context.Context, userID int64) (int64, error)
	ListAllConversations(ctx context.Context, limit, offset int) ([]*Conversation, error)
	CountAllConversations(ctx context.Context) (int64, error)
	IncrementUnread(ctx context.Context, conversationID, userID int64) error
	ResetUnread(ctx context.Context, conversationID, userID int64) error
	SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error

	// Messages
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int64, error)
	UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error
	SearchMessages(ctx context.Context, userID int64, conversationID *int64, query string, limit int) ([]*Message, error)

	// Read receipts
	MarkMessageRead(ctx context.Context, messageID, userID int64, readAt time.Time) error
	MarkConversationRead(ctx context.Context, conversationID, readerID int64, readAt time.Time) error
	GetMessageReads(ctx context.Context, messageID int64) ([]*ReadReceipt, error)

	// User info
	GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error)
}
