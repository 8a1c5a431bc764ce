// internal/messaging/service_test.go

package messaging

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository is an in-memory Repository for service tests.
type fakeRepository struct {
	conversations map[int64]*Conversation
	messages      map[int64]*Message
	unread        map[int64]map[int64]int // conversationID -> userID -> count
	reads         map[int64]map[int64]time.Time
	users         map[int64]*UserInfo

	nextConversationID int64
	nextMessageID      int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		conversations:      make(map[int64]*Conversation),
		messages:           make(map[int64]*Message),
		unread:             make(map[int64]map[int64]int),
		reads:              make(map[int64]map[int64]time.Time),
		users:              make(map[int64]*UserInfo),
		nextConversationID: 1,
		nextMessageID:      1,
	}
}

func (f *fakeRepository) addUser(id int64, name string, verified bool) {
	f.users[id] = &UserInfo{ID: id, Name: name, Email: name + "@example.com", Role: "alumni", IsVerified: verified}
}

func (f *fakeRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	for _, existing := range f.conversations {
		if existing.UserA == conv.UserA && existing.UserB == conv.UserB {
			return ErrDuplicateConversation
		}
	}
	conv.ID = f.nextConversationID
	f.nextConversationID++
	copied := *conv
	f.conversations[conv.ID] = &copied
	f.unread[conv.ID] = map[int64]int{conv.UserA: 0, conv.UserB: 0}
	return nil
}

func (f *fakeRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeRepository) GetConversationByPair(ctx context.Context, userA, userB int64) (*Conversation, error) {
	for _, conv := range f.conversations {
		if conv.UserA == userA && conv.UserB == userB {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) ListUserConversations(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error) {
	var result []*Conversation
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			copied := *conv
			copied.UnreadCount = f.unread[conv.ID][userID]
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return paginate(result, limit, offset), nil
}

func (f *fakeRepository) CountUserConversations(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) ListAllConversations(ctx context.Context, limit, offset int) ([]*Conversation, error) {
	var result []*Conversation
	for _, conv := range f.conversations {
		copied := *conv
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return paginate(result, limit, offset), nil
}

func (f *fakeRepository) CountAllConversations(ctx context.Context) (int64, error) {
	return int64(len(f.conversations)), nil
}

func (f *fakeRepository) IncrementUnread(ctx context.Context, conversationID, userID int64) error {
	f.unread[conversationID][userID]++
	return nil
}

func (f *fakeRepository) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	f.unread[conversationID][userID] = 0
	return nil
}

func (f *fakeRepository) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	conv := f.conversations[conversationID]
	conv.LastMessageID = &messageID
	conv.LastMessageAt = at
	return nil
}

func (f *fakeRepository) CreateMessage(ctx context.Context, message *Message) error {
	message.ID = f.nextMessageID
	f.nextMessageID++
	copied := *message
	f.messages[message.ID] = &copied
	return nil
}

func (f *fakeRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

// ListMessages returns newest-first, mirroring the storage order.
func (f *fakeRepository) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error) {
	var result []*Message
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID && !msg.IsDeleted {
			copied := *msg
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, limit, offset), nil
}

func (f *fakeRepository) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	var n int64
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID && !msg.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	msg := f.messages[id]
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	return nil
}

func (f *fakeRepository) SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error {
	msg := f.messages[id]
	msg.IsDeleted = true
	msg.DeletedAt = &deletedAt
	return nil
}

func (f *fakeRepository) SearchMessages(ctx context.Context, userID int64, conversationID *int64, query string, limit int) ([]*Message, error) {
	var result []*Message
	for _, msg := range f.messages {
		if msg.IsDeleted {
			continue
		}
		conv := f.conversations[msg.ConversationID]
		if conv == nil || !conv.HasParticipant(userID) {
			continue
		}
		if conversationID != nil && msg.ConversationID != *conversationID {
			continue
		}
		if !strings.Contains(strings.ToLower(msg.Content), strings.ToLower(query)) {
			continue
		}
		copied := *msg
		result = append(result, &copied)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (f *fakeRepository) MarkMessageRead(ctx context.Context, messageID, userID int64, readAt time.Time) error {
	if f.reads[messageID] == nil {
		f.reads[messageID] = make(map[int64]time.Time)
	}
	if _, seen := f.reads[messageID][userID]; !seen {
		f.reads[messageID][userID] = readAt
	}
	return nil
}

func (f *fakeRepository) MarkConversationRead(ctx context.Context, conversationID, readerID int64, readAt time.Time) error {
	for _, msg := range f.messages {
		if msg.ConversationID != conversationID || msg.SenderID == readerID {
			continue
		}
		f.MarkMessageRead(ctx, msg.ID, readerID, readAt)
	}
	return nil
}

func (f *fakeRepository) GetMessageReads(ctx context.Context, messageID int64) ([]*ReadReceipt, error) {
	var receipts []*ReadReceipt
	for userID, readAt := range f.reads[messageID] {
		receipts = append(receipts, &ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: readAt})
	}
	return receipts, nil
}

func (f *fakeRepository) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// fakeGate is a ConnectionChecker backed by a set of canonical pairs.
type fakeGate struct {
	pairs map[[2]int64]bool
}

func newFakeGate(pairs ...[2]int64) *fakeGate {
	g := &fakeGate{pairs: make(map[[2]int64]bool)}
	for _, p := range pairs {
		g.connect(p[0], p[1])
	}
	return g
}

func (g *fakeGate) connect(a, b int64) {
	x, y := canonicalPair(a, b)
	g.pairs[[2]int64{x, y}] = true
}

func (g *fakeGate) AreConnected(ctx context.Context, userA, userB int64) (bool, error) {
	x, y := canonicalPair(userA, userB)
	return g.pairs[[2]int64{x, y}], nil
}

func newTestService(repo *fakeRepository, gate *fakeGate) Service {
	return NewService(repo, gate, DefaultServiceConfig())
}

func TestGetOrCreateConversationCanonicalizesPair(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	ctx := context.Background()

	first, err := svc.GetOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)

	// Opened from the other side, the same thread comes back
	second, err := svc.GetOrCreateConversation(ctx, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), first.UserA)
	assert.Equal(t, int64(2), first.UserB)
	assert.Len(t, repo.conversations, 1)
}

func TestGetOrCreateConversationRequiresConnection(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate())

	_, err := svc.GetOrCreateConversation(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	svc := newTestService(repo, newFakeGate())

	_, err := svc.GetOrCreateConversation(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestGetOrCreateConversationUnknownPeer(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 99}))

	_, err := svc.GetOrCreateConversation(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdminGetOrCreateConversationBypassesGate(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(10, "admin", true)
	repo.addUser(2, "bob", true)
	repo.addUser(3, "carol", false)
	svc := newTestService(repo, newFakeGate())
	ctx := context.Background()

	conv, err := svc.AdminGetOrCreateConversation(ctx, 10, 2)
	require.NoError(t, err)
	assert.NotZero(t, conv.ID)

	// Unverified peers stay unreachable even for admins
	_, err = svc.AdminGetOrCreateConversation(ctx, 10, 3)
	assert.ErrorIs(t, err, ErrPeerNotVerified)
}

func setupConversation(t *testing.T, repo *fakeRepository, svc Service, a, b int64) *Conversation {
	t.Helper()
	conv, err := svc.GetOrCreateConversation(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func TestSendMessageValidatesContent(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, conv.ID, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = svc.SendMessage(ctx, conv.ID, 1, strings.Repeat("a", MaxContentLength+1))
	assert.ErrorIs(t, err, ErrContentTooLong)

	msg, err := svc.SendMessage(ctx, conv.ID, 1, strings.Repeat("a", MaxContentLength))
	require.NoError(t, err)
	assert.Len(t, msg.Content, MaxContentLength)
}

func TestSendMessageHonorsConfiguredLimit(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)

	config := DefaultServiceConfig()
	config.MaxMessageLength = 10
	svc := NewService(repo, newFakeGate([2]int64{1, 2}), config)
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, conv.ID, 1, strings.Repeat("a", 11))
	assert.ErrorIs(t, err, ErrContentTooLong)

	msg, err := svc.SendMessage(ctx, conv.ID, 1, strings.Repeat("a", 10))
	require.NoError(t, err)
	assert.Len(t, msg.Content, 10)

	_, err = svc.EditMessage(ctx, msg.ID, 1, strings.Repeat("b", 11))
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	repo.addUser(3, "carol", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)

	_, err := svc.SendMessage(context.Background(), conv.ID, 3, "hi")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendMessageUpdatesCounters(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, conv.ID, 1, "hello")
	require.NoError(t, err)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice", msg.Sender.Name)

	// Recipient's unread counter moved; sender's did not
	assert.Equal(t, 1, repo.unread[conv.ID][2])
	assert.Equal(t, 0, repo.unread[conv.ID][1])

	stored := repo.conversations[conv.ID]
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, msg.ID, *stored.LastMessageID)
	assert.Equal(t, msg.CreatedAt, stored.LastMessageAt)
}

func TestGetMessagesOldestFirstAndMarksRead(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, conv.ID, 1, "hello")
	require.NoError(t, err)
	second, err := svc.SendMessage(ctx, conv.ID, 2, "hi")
	require.NoError(t, err)

	page, err := svc.GetMessages(ctx, conv.ID, 2, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)

	assert.Equal(t, first.ID, page.Messages[0].ID)
	assert.Equal(t, second.ID, page.Messages[1].ID)
	assert.Equal(t, "hello", page.Messages[0].Content)

	// Reading the page zeroed the reader's counter and left a receipt
	assert.Equal(t, 0, repo.unread[conv.ID][2])
	_, read := repo.reads[first.ID][2]
	assert.True(t, read)
}

func TestGetMessagesRequiresMembership(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	repo.addUser(3, "carol", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)

	_, err := svc.GetMessages(context.Background(), conv.ID, 3, 1, 50)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestEditMessageOnlySender(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, conv.ID, 1, "original")
	require.NoError(t, err)

	_, err = svc.EditMessage(ctx, msg.ID, 2, "hijacked")
	assert.ErrorIs(t, err, ErrNotSender)

	edited, err := svc.EditMessage(ctx, msg.ID, 1, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)
}

func TestDeleteMessageOnlySender(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, conv.ID, 1, "oops")
	require.NoError(t, err)

	err = svc.DeleteMessage(ctx, msg.ID, 2)
	assert.ErrorIs(t, err, ErrNotSender)

	require.NoError(t, svc.DeleteMessage(ctx, msg.ID, 1))

	// A deleted message can be neither edited nor deleted again
	_, err = svc.EditMessage(ctx, msg.ID, 1, "resurrect")
	assert.ErrorIs(t, err, ErrMessageDeleted)
	err = svc.DeleteMessage(ctx, msg.ID, 1)
	assert.ErrorIs(t, err, ErrMessageDeleted)
}

func TestDeletedMessagesInvisibleInHistoryAndSearch(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	keep, err := svc.SendMessage(ctx, conv.ID, 1, "keep this one")
	require.NoError(t, err)
	gone, err := svc.SendMessage(ctx, conv.ID, 1, "delete this one")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, gone.ID, 1))

	page, err := svc.GetMessages(ctx, conv.ID, 1, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, keep.ID, page.Messages[0].ID)

	results, err := svc.SearchMessages(ctx, 1, "this one", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.ID, results[0].ID)
}

func TestSearchMessagesValidation(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	repo.addUser(3, "carol", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	_, err := svc.SearchMessages(ctx, 1, "a", nil)
	assert.ErrorIs(t, err, ErrQueryTooShort)

	// Scoping to a conversation the caller is not in is forbidden
	_, err = svc.SearchMessages(ctx, 3, "hello", &conv.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestMarkConversationRead(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, conv.ID, 1, "unread")
	require.NoError(t, err)
	require.Equal(t, 1, repo.unread[conv.ID][2])

	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID, 2))
	assert.Equal(t, 0, repo.unread[conv.ID][2])
	_, read := repo.reads[msg.ID][2]
	assert.True(t, read)

	// Idempotent: a second pass changes nothing
	firstReadAt := repo.reads[msg.ID][2]
	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID, 2))
	assert.Equal(t, firstReadAt, repo.reads[msg.ID][2])
}

func TestListConversationsPagination(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	gate := newFakeGate()
	for i := int64(2); i <= 6; i++ {
		repo.addUser(i, "peer", true)
		gate.connect(1, i)
	}
	svc := newTestService(repo, gate)
	ctx := context.Background()

	for i := int64(2); i <= 6; i++ {
		_, err := svc.GetOrCreateConversation(ctx, 1, i)
		require.NoError(t, err)
	}

	list, err := svc.ListConversations(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Len(t, list.Conversations, 2)
	assert.Equal(t, int64(5), list.Pagination.Total)
	assert.Equal(t, 3, list.Pagination.TotalPages)
	assert.True(t, list.Pagination.HasNext)
	assert.False(t, list.Pagination.HasPrev)
}

func TestBulkSendPartialFailure(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(10, "admin", true)
	repo.addUser(2, "bob", true)
	repo.addUser(3, "carol", true)
	repo.addUser(4, "dave", true)
	repo.addUser(5, "eve", false) // unverified
	svc := newTestService(repo, newFakeGate())
	ctx := context.Background()

	report, err := svc.BulkSend(ctx, 10, &BulkSendInput{
		Recipients: []int64{2, 3, 4, 5},
		Content:    "reunion announcement",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalSent)
	assert.Equal(t, 1, report.TotalFailed)
	require.Len(t, report.FailedRecipients, 1)
	assert.Equal(t, int64(5), report.FailedRecipients[0].RecipientID)

	// Each successful recipient got a real conversation and message
	for _, sent := range report.Sent {
		msg, err := svc.GetMessages(ctx, sent.ConversationID, 10, 1, 10)
		require.NoError(t, err)
		require.Len(t, msg.Messages, 1)
		assert.Equal(t, "reunion announcement", msg.Messages[0].Content)
	}
}

func TestBulkSendRejectsOversizedBatch(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(10, "admin", true)
	svc := NewService(repo, newFakeGate(), ServiceConfig{
		MessagePageSize:      50,
		ConversationPageSize: 20,
		SearchResultLimit:    50,
		BulkSendMax:          2,
	})

	_, err := svc.BulkSend(context.Background(), 10, &BulkSendInput{
		Recipients: []int64{2, 3, 4},
		Content:    "too many",
	})
	assert.Error(t, err)
}

func TestIsParticipant(t *testing.T) {
	repo := newFakeRepository()
	repo.addUser(1, "alice", true)
	repo.addUser(2, "bob", true)
	svc := newTestService(repo, newFakeGate([2]int64{1, 2}))
	conv := setupConversation(t, repo, svc, 1, 2)
	ctx := context.Background()

	assert.True(t, svc.IsParticipant(ctx, 1, conv.ID))
	assert.True(t, svc.IsParticipant(ctx, 2, conv.ID))
	assert.False(t, svc.IsParticipant(ctx, 3, conv.ID))
	assert.False(t, svc.IsParticipant(ctx, 1, 999))
}
