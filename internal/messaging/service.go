// internal/messaging/service.go

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotParticipant       = errors.New("not a participant in this conversation")
	ErrNotSender            = errors.New("only the sender can modify this message")
	ErrNotConnected         = errors.New("users are not connected")
	ErrPeerNotVerified      = errors.New("recipient is not a verified user")
	ErrSelfConversation     = errors.New("cannot open a conversation with yourself")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrContentTooLong       = errors.New("message content exceeds the maximum length")
	ErrQueryTooShort        = fmt.Errorf("search query must be at least %d characters", MinSearchQueryLength)
	ErrMessageDeleted       = errors.New("message has been deleted")
)

// ConnectionChecker is the gate consulted before a conversation is
// created. Enforced only at creation time; per-message sends check
// conversation membership instead.
type ConnectionChecker interface {
	AreConnected(ctx context.Context, userA, userB int64) (bool, error)
}

type Service interface {
	// Conversations
	GetOrCreateConversation(ctx context.Context, userID, peerID int64) (*Conversation, error)
	AdminGetOrCreateConversation(ctx context.Context, adminID, peerID int64) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64, page, pageSize int) (*ConversationList, error)
	AdminListConversations(ctx context.Context, page, pageSize int) (*ConversationList, error)
	IsParticipant(ctx context.Context, userID, conversationID int64) bool

	// Messages
	SendMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error)
	GetMessages(ctx context.Context, conversationID, userID int64, page, pageSize int) (*MessagePage, error)
	EditMessage(ctx context.Context, messageID, editorID int64, content string) (*Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID int64) error
	SearchMessages(ctx context.Context, userID int64, query string, conversationID *int64) ([]*Message, error)

	// Read state
	MarkConversationRead(ctx context.Context, conversationID, readerID int64) error

	// Bulk/admin fan-out
	BulkSend(ctx context.Context, adminID int64, input *BulkSendInput) (*BulkSendReport, error)

	// Lookups used by the realtime layer
	GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error)

	// SetHub wires the realtime channel after construction to break the
	// service/hub circular dependency.
	SetHub(hub *Hub)
}

// ServiceConfig bounds the messaging service's content, list and
// fan-out sizes.
type ServiceConfig struct {
	MaxMessageLength     int
	MessagePageSize      int
	ConversationPageSize int
	SearchResultLimit    int
	BulkSendMax          int
}

// DefaultServiceConfig mirrors the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxMessageLength:     MaxContentLength,
		MessagePageSize:      50,
		ConversationPageSize: 20,
		SearchResultLimit:    50,
		BulkSendMax:          500,
	}
}

type messageService struct {
	repo   Repository
	gate   ConnectionChecker
	hub    *Hub
	config ServiceConfig
}

func NewService(repo Repository, gate ConnectionChecker, config ServiceConfig) Service {
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = MaxContentLength
	}
	return &messageService{
		repo:   repo,
		gate:   gate,
		config: config,
	}
}

func (s *messageService) SetHub(hub *Hub) {
	s.hub = hub
}

// GetOrCreateConversation canonicalizes the pair, returns the existing
// thread or creates one. The connection gate is enforced here and only
// here.
func (s *messageService) GetOrCreateConversation(ctx context.Context, userID, peerID int64) (*Conversation, error) {
	if userID == peerID {
		return nil, ErrSelfConversation
	}

	peer, err := s.repo.GetUserInfo(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, ErrUserNotFound
	}

	connected, err := s.gate.AreConnected(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, ErrNotConnected
	}

	return s.findOrCreate(ctx, userID, peerID, peer)
}

// AdminGetOrCreateConversation bypasses the connection gate. The peer
// must still be a verified user.
func (s *messageService) AdminGetOrCreateConversation(ctx context.Context, adminID, peerID int64) (*Conversation, error) {
	if adminID == peerID {
		return nil, ErrSelfConversation
	}

	peer, err := s.repo.GetUserInfo(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, ErrUserNotFound
	}
	if !peer.IsVerified {
		return nil, ErrPeerNotVerified
	}

	return s.findOrCreate(ctx, adminID, peerID, peer)
}

func (s *messageService) findOrCreate(ctx context.Context, userID, peerID int64, peer *UserInfo) (*Conversation, error) {
	userA, userB := canonicalPair(userID, peerID)

	conv, err := s.repo.GetConversationByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}

	if conv == nil {
		now := time.Now()
		conv = &Conversation{
			UserA:         userA,
			UserB:         userB,
			LastMessageAt: now,
			CreatedAt:     now,
		}
		err = s.repo.CreateConversation(ctx, conv)
		if errors.Is(err, ErrDuplicateConversation) {
			// Lost the creation race; the winner's row is authoritative.
			conv, err = s.repo.GetConversationByPair(ctx, userA, userB)
			if err != nil {
				return nil, err
			}
			if conv == nil {
				return nil, ErrConversationNotFound
			}
		} else if err != nil {
			return nil, err
		} else {
			conversationsCreated.Inc()
		}
		conv.Participants = []int64{conv.UserA, conv.UserB}
	}

	conv.OtherParticipant = peer
	return conv, nil
}

func (s *messageService) ListConversations(ctx context.Context, userID int64, page, pageSize int) (*ConversationList, error) {
	page, pageSize = normalizePage(page, pageSize, s.config.ConversationPageSize)

	total, err := s.repo.CountUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	conversations, err := s.repo.ListUserConversations(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	s.attachLastMessages(ctx, conversations)

	return &ConversationList{
		Conversations: conversations,
		Pagination:    NewPagination(page, pageSize, total),
	}, nil
}

func (s *messageService) AdminListConversations(ctx context.Context, page, pageSize int) (*ConversationList, error) {
	page, pageSize = normalizePage(page, pageSize, s.config.ConversationPageSize)

	total, err := s.repo.CountAllConversations(ctx)
	if err != nil {
		return nil, err
	}

	conversations, err := s.repo.ListAllConversations(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	s.attachLastMessages(ctx, conversations)

	return &ConversationList{
		Conversations: conversations,
		Pagination:    NewPagination(page, pageSize, total),
	}, nil
}

// attachLastMessages resolves last-message previews. A failed lookup
// leaves the pointer nil rather than failing the listing.
func (s *messageService) attachLastMessages(ctx context.Context, conversations []*Conversation) {
	for _, conv := range conversations {
		if conv.LastMessageID == nil {
			continue
		}
		msg, err := s.repo.GetMessage(ctx, *conv.LastMessageID)
		if err != nil {
			log.Printf("messaging: resolving last message %d: %v", *conv.LastMessageID, err)
			continue
		}
		if msg != nil && !msg.IsDeleted {
			conv.LastMessage = msg
		}
	}
}

func (s *messageService) IsParticipant(ctx context.Context, userID, conversationID int64) bool {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		return false
	}
	return conv.HasParticipant(userID)
}

// SendMessage runs the full send pipeline:
// compose -> authorize -> persist -> update counters -> publish -> respond.
// The message write is authoritative; counter updates and the realtime
// publish are best-effort.
func (s *messageService) SendMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error) {
	// compose: validate before any store mutation
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > s.config.MaxMessageLength {
		return nil, ErrContentTooLong
	}

	// authorize: membership, not a connection re-check
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	// persist
	message := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    TypeText,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	messagesSent.WithLabelValues(message.MessageType).Inc()

	// update-conversation-counters: failures here must not lose the message
	recipientID := conv.OtherOf(senderID)
	if err := s.repo.SetLastMessage(ctx, conversationID, message.ID, message.CreatedAt); err != nil {
		log.Printf("messaging: updating last message for conversation %d: %v", conversationID, err)
	}
	if err := s.repo.IncrementUnread(ctx, conversationID, recipientID); err != nil {
		log.Printf("messaging: incrementing unread for user %d in conversation %d: %v", recipientID, conversationID, err)
	}

	// respond with sender resolved
	message.Sender, err = s.repo.GetUserInfo(ctx, senderID)
	if err != nil {
		log.Printf("messaging: resolving sender %d: %v", senderID, err)
	}

	// publish-realtime: fire and forget
	s.publish(conversationID, EventNewMessage, &NewMessagePayload{
		Message:        message,
		ConversationID: conversationID,
	})

	return message, nil
}

// GetMessages returns one page of history oldest-first and, as a side
// effect, marks the caller's unread messages read.
func (s *messageService) GetMessages(ctx context.Context, conversationID, userID int64, page, pageSize int) (*MessagePage, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	page, pageSize = normalizePage(page, pageSize, s.config.MessagePageSize)

	total, err := s.repo.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	// Storage order is newest-first; chat UIs append, so flip to oldest-first.
	reverseMessages(messages)

	for _, msg := range messages {
		reads, err := s.repo.GetMessageReads(ctx, msg.ID)
		if err != nil {
			log.Printf("messaging: loading receipts for message %d: %v", msg.ID, err)
			continue
		}
		msg.ReadBy = reads
	}

	// Reading history marks it read. Best-effort; history itself is served.
	if err := s.MarkConversationRead(ctx, conversationID, userID); err != nil {
		log.Printf("messaging: marking conversation %d read for user %d: %v", conversationID, userID, err)
	}

	return &MessagePage{
		Messages:   messages,
		Pagination: NewPagination(page, pageSize, total),
	}, nil
}

func (s *messageService) EditMessage(ctx context.Context, messageID, editorID int64, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > s.config.MaxMessageLength {
		return nil, ErrContentTooLong
	}

	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, ErrMessageNotFound
	}
	if message.SenderID != editorID {
		return nil, ErrNotSender
	}
	if message.IsDeleted {
		return nil, ErrMessageDeleted
	}

	now := time.Now()
	if err := s.repo.UpdateMessageContent(ctx, messageID, content, now); err != nil {
		return nil, err
	}

	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	message.Sender, _ = s.repo.GetUserInfo(ctx, editorID)

	s.publish(message.ConversationID, EventMessageEdited, &MessageEditedPayload{
		Message:        message,
		ConversationID: message.ConversationID,
	})

	return message, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, messageID, requesterID int64) error {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message == nil {
		return ErrMessageNotFound
	}
	if message.SenderID != requesterID {
		return ErrNotSender
	}
	if message.IsDeleted {
		return ErrMessageDeleted
	}

	if err := s.repo.SoftDeleteMessage(ctx, messageID, time.Now()); err != nil {
		return err
	}

	s.publish(message.ConversationID, EventMessageDeleted, &MessageDeletedPayload{
		MessageID:      messageID,
		ConversationID: message.ConversationID,
	})

	return nil
}

func (s *messageService) SearchMessages(ctx context.Context, userID int64, query string, conversationID *int64) ([]*Message, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinSearchQueryLength {
		return nil, ErrQueryTooShort
	}

	if conversationID != nil {
		conv, err := s.repo.GetConversation(ctx, *conversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
		if !conv.HasParticipant(userID) {
			return nil, ErrNotParticipant
		}
	}

	return s.repo.SearchMessages(ctx, userID, conversationID, query, s.config.SearchResultLimit)
}

// MarkConversationRead persists receipts for every unread message from
// the other participant and zeroes the reader's counter, then relays a
// messagesRead event to the room.
func (s *messageService) MarkConversationRead(ctx context.Context, conversationID, readerID int64) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(readerID) {
		return ErrNotParticipant
	}

	if err := s.repo.MarkConversationRead(ctx, conversationID, readerID, time.Now()); err != nil {
		return err
	}
	if err := s.repo.ResetUnread(ctx, conversationID, readerID); err != nil {
		return err
	}

	s.publish(conversationID, EventMessagesRead, &MessagesReadPayload{
		ConversationID: conversationID,
		ReadBy:         readerID,
	})

	return nil
}

// BulkSend fans content out to each recipient sequentially, creating
// conversations through the admin-bypass path. Each recipient's outcome
// is collected; one failure never aborts the batch.
func (s *messageService) BulkSend(ctx context.Context, adminID int64, input *BulkSendInput) (*BulkSendReport, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > s.config.MaxMessageLength {
		return nil, ErrContentTooLong
	}
	if len(input.Recipients) > s.config.BulkSendMax {
		return nil, fmt.Errorf("too many recipients: %d exceeds limit of %d", len(input.Recipients), s.config.BulkSendMax)
	}

	report := &BulkSendReport{
		Sent:             []*BulkSendResult{},
		FailedRecipients: []*BulkSendFailure{},
	}

	for _, recipientID := range input.Recipients {
		conv, err := s.AdminGetOrCreateConversation(ctx, adminID, recipientID)
		if err != nil {
			report.FailedRecipients = append(report.FailedRecipients, &BulkSendFailure{
				RecipientID: recipientID,
				Reason:      err.Error(),
			})
			bulkRecipients.WithLabelValues("failed").Inc()
			continue
		}

		message, err := s.SendMessage(ctx, conv.ID, adminID, content)
		if err != nil {
			report.FailedRecipients = append(report.FailedRecipients, &BulkSendFailure{
				RecipientID: recipientID,
				Reason:      err.Error(),
			})
			bulkRecipients.WithLabelValues("failed").Inc()
			continue
		}

		report.Sent = append(report.Sent, &BulkSendResult{
			RecipientID:    recipientID,
			ConversationID: conv.ID,
			MessageID:      message.ID,
		})
		bulkRecipients.WithLabelValues("sent").Inc()
	}

	report.TotalSent = len(report.Sent)
	report.TotalFailed = len(report.FailedRecipients)
	return report, nil
}

func (s *messageService) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	return s.repo.GetUserInfo(ctx, userID)
}

// publish hands an event to the hub if one is attached. With no hub or
// no populated room this is a silent no-op; offline recipients catch up
// over REST.
func (s *messageService) publish(conversationID int64, event string, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.PublishToConversation(conversationID, event, payload)
}

// Helpers

func canonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func normalizePage(page, pageSize, defaultSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultSize
	}
	return page, pageSize
}

func reverseMessages(messages []*Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
