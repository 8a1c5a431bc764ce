// internal/messaging/models.go

package messaging

import (
	"encoding/json"
	"time"
)

// Message types. Only text is exercised today; image and file are
// accepted by the schema for forward compatibility.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeFile  = "file"
)

// MaxContentLength is the default bound on message content after
// trimming; ServiceConfig can override it.
const MaxContentLength = 1000

// MinSearchQueryLength is the shortest accepted search query.
const MinSearchQueryLength = 2

// Conversation is the exactly-two-party container for a message thread.
// The pair is stored in canonical order (UserA < UserB) so a lookup by
// unordered pair is deterministic and the unique constraint prevents a
// duplicate (A,B)/(B,A) thread.
type Conversation struct {
	ID            int64     `json:"id" db:"id"`
	UserA         int64     `json:"-" db:"user_a"`
	UserB         int64     `json:"-" db:"user_b"`
	LastMessageID *int64    `json:"last_message_id,omitempty" db:"last_message_id"`
	LastMessageAt time.Time `json:"last_message_time" db:"last_message_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	// Computed fields
	Participants     []int64   `json:"participants,omitempty"`
	UnreadCount      int       `json:"unread_count" db:"unread_count"`
	OtherParticipant *UserInfo `json:"other_participant,omitempty"`
	LastMessage      *Message  `json:"last_message,omitempty"`
}

// HasParticipant reports whether the user belongs to this conversation.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserA == userID || c.UserB == userID
}

// OtherOf returns the participant that is not userID.
func (c *Conversation) OtherOf(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// Message is one entry in a conversation's ordered log. Deleted
// messages stay in storage but are invisible to every read path.
type Message struct {
	ID             int64      `json:"id" db:"id"`
	ConversationID int64      `json:"conversation_id" db:"conversation_id"`
	SenderID       int64      `json:"sender_id" db:"sender_id"`
	Content        string     `json:"content" db:"content"`
	MessageType    string     `json:"message_type" db:"message_type"`
	IsEdited       bool       `json:"is_edited" db:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty" db:"edited_at"`
	IsDeleted      bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`

	// Computed fields
	Sender *UserInfo      `json:"sender,omitempty"`
	ReadBy []*ReadReceipt `json:"read_by,omitempty"`
}

// ReadReceipt records that a user read a message. Append-only, at most
// one entry per user per message. Receipts survive a soft delete of the
// message; they describe a historical fact.
type ReadReceipt struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}

// UserInfo is the displayable profile data resolved onto conversations
// and messages. Profile management itself lives outside this module.
type UserInfo struct {
	ID         int64   `json:"id" db:"id"`
	Name       string  `json:"name" db:"name"`
	Email      string  `json:"email" db:"email"`
	Role       string  `json:"role" db:"role"`
	IsVerified bool    `json:"is_verified" db:"is_verified"`
	Batch      *string `json:"batch,omitempty" db:"batch"`
	Department *string `json:"department,omitempty" db:"department"`
	AvatarURL  *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Pagination is the standard page metadata returned by list endpoints.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewPagination computes page metadata from a total row count.
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Request DTOs

type SendMessageInput struct {
	Content string `json:"content" validate:"required"`
}

type EditMessageInput struct {
	Content string `json:"content" validate:"required"`
}

type BulkSendInput struct {
	Recipients []int64 `json:"recipients" validate:"required,min=1,dive,gt=0"`
	Content    string  `json:"content" validate:"required"`
}

// Response DTOs

type ConversationList struct {
	Conversations []*Conversation `json:"conversations"`
	Pagination    Pagination      `json:"pagination"`
}

type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// BulkSendResult is one recipient's outcome in a bulk send.
type BulkSendResult struct {
	RecipientID    int64 `json:"recipient_id"`
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

// BulkSendFailure names a recipient that could not be reached and why.
type BulkSendFailure struct {
	RecipientID int64  `json:"recipient_id"`
	Reason      string `json:"reason"`
}

// BulkSendReport aggregates per-recipient outcomes; partial failure is
// reported, not fatal.
type BulkSendReport struct {
	TotalSent        int                `json:"total_sent"`
	TotalFailed      int                `json:"total_failed"`
	Sent             []*BulkSendResult  `json:"sent"`
	FailedRecipients []*BulkSendFailure `json:"failed_recipients"`
}

// Websocket events

// Client-to-server event names
const (
	EventAuth              = "auth"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventTyping            = "typing"
	EventMarkAsRead        = "markAsRead"
)

// Server-to-client event names
const (
	EventConnected      = "connected"
	EventError          = "error"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventUserTyping     = "userTyping"
	EventMessagesRead   = "messagesRead"
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
)

// WSEvent is the envelope for every frame on the realtime channel.
type WSEvent struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client-to-server payloads

type AuthPayload struct {
	Token string `json:"token"`
}

type RoomPayload struct {
	ConversationID int64 `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	IsTyping       bool  `json:"isTyping"`
}

type MarkAsReadPayload struct {
	ConversationID int64 `json:"conversationId"`
}

// Server-to-client payloads

type UserOnlinePayload struct {
	UserID int64     `json:"userId"`
	User   *UserInfo `json:"user,omitempty"`
}

type UserOfflinePayload struct {
	UserID   int64     `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

type UserTypingPayload struct {
	UserID   int64     `json:"userId"`
	User     *UserInfo `json:"user,omitempty"`
	IsTyping bool      `json:"isTyping"`
}

type MessagesReadPayload struct {
	ConversationID int64 `json:"conversationId"`
	ReadBy         int64 `json:"readBy"`
}

type NewMessagePayload struct {
	Message        *Message `json:"message"`
	ConversationID int64    `json:"conversationId"`
}

type MessageEditedPayload struct {
	Message        *Message `json:"message"`
	ConversationID int64    `json:"conversationId"`
}

type MessageDeletedPayload struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
