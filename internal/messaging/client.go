// internal/messaging/client.go

package messaging

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxFrameSize = 16 * 1024
)

// Client is one authenticated websocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  int64
	service Service

	// joinedRooms is owned by the hub and mutated under its lock.
	joinedRooms map[string]bool

	// mu guards closed so enqueue never races a Close from the hub.
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, service Service) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		userID:      userID,
		service:     service,
		joinedRooms: make(map[string]bool),
	}
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// A live connection refreshes the shared presence key
		c.hub.presence.SetOnline(context.Background(), c.userID)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("messaging: websocket error for user %d: %v", c.userID, err)
			}
			break
		}

		c.processEvent(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued frames into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) processEvent(data []byte) {
	var event WSEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.sendError("BAD_EVENT", "malformed event")
		return
	}

	ctx := context.Background()

	switch event.Event {
	case EventJoinConversation:
		c.handleJoin(event.Data)

	case EventLeaveConversation:
		c.handleLeave(event.Data)

	case EventTyping:
		c.handleTyping(ctx, event.Data)

	case EventMarkAsRead:
		c.handleMarkAsRead(ctx, event.Data)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event: "+event.Event)
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		c.sendError("BAD_PAYLOAD", "joinConversation requires conversationId")
		return
	}

	if err := c.hub.JoinConversation(c, payload.ConversationID); err != nil {
		c.sendError("FORBIDDEN", "not a participant in this conversation")
	}
}

func (c *Client) handleLeave(data json.RawMessage) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		c.sendError("BAD_PAYLOAD", "leaveConversation requires conversationId")
		return
	}

	c.hub.LeaveConversation(c, payload.ConversationID)
}

// handleTyping relays a typing indicator to the other room members.
// Never persisted.
func (c *Client) handleTyping(ctx context.Context, data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		c.sendError("BAD_PAYLOAD", "typing requires conversationId")
		return
	}

	if !c.service.IsParticipant(ctx, c.userID, payload.ConversationID) {
		c.sendError("FORBIDDEN", "not a participant in this conversation")
		return
	}

	user, err := c.service.GetUserInfo(ctx, c.userID)
	if err != nil {
		log.Printf("messaging: resolving user %d for typing relay: %v", c.userID, err)
	}

	c.hub.PublishToConversationExcept(payload.ConversationID, c.userID, EventUserTyping, &UserTypingPayload{
		UserID:   c.userID,
		User:     user,
		IsTyping: payload.IsTyping,
	})
}

// handleMarkAsRead persists read receipts through the service, which
// relays the messagesRead event to the room itself.
func (c *Client) handleMarkAsRead(ctx context.Context, data json.RawMessage) {
	var payload MarkAsReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		c.sendError("BAD_PAYLOAD", "markAsRead requires conversationId")
		return
	}

	if err := c.service.MarkConversationRead(ctx, payload.ConversationID, c.userID); err != nil {
		log.Printf("messaging: markAsRead for user %d in conversation %d: %v", c.userID, payload.ConversationID, err)
		c.sendError("MARK_READ_FAILED", "could not mark conversation read")
	}
}

func (c *Client) sendError(code, message string) {
	data, err := marshalEvent(EventError, &WSErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues a frame without blocking. Returns false if the client
// is closed or its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close shuts the send channel exactly once; the write pump then closes
// the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
