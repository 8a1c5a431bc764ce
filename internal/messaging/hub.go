// internal/messaging/hub.go

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Hub maintains the process-wide registry of active websocket clients
// and the room membership used to scope event fan-out. One room per
// conversation plus a personal room per user.
type Hub struct {
	// clients is keyed by user id; a second connection from the same
	// user replaces the first (last-connection-wins presence).
	clients map[int64]*Client

	// rooms maps a room key to the members currently joined.
	rooms map[string]map[int64]*Client

	mu sync.RWMutex

	// Register/unregister clients
	register   chan *Client
	unregister chan *Client

	service  Service
	presence *PresenceTracker

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// WaitGroup for pending operations
	wg sync.WaitGroup
}

func NewHub(service Service, presence *PresenceTracker) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[int64]*Client),
		rooms:      make(map[string]map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		service:    service,
		presence:   presence,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func conversationRoom(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

func personalRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func (h *Hub) Run() {
	defer h.cleanup()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	// Last connection wins for the same user
	if old, exists := h.clients[client.userID]; exists {
		h.removeFromRoomsLocked(old)
		old.Close()
	}

	h.clients[client.userID] = client

	// Auto-join the personal notification room
	h.joinRoomLocked(client, personalRoom(client.userID))

	total := len(h.clients)
	h.mu.Unlock()

	activeConnections.Set(float64(total))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.presence.SetOnline(h.ctx, client.userID)
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.broadcastPresence(client.userID, true, time.Time{})
	}()

	log.Printf("messaging: user %d connected, %d clients active", client.userID, total)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	current, exists := h.clients[client.userID]
	if !exists || current != client {
		// Already replaced by a newer connection
		h.mu.Unlock()
		return
	}

	h.removeFromRoomsLocked(client)
	delete(h.clients, client.userID)
	client.Close()

	total := len(h.clients)
	h.mu.Unlock()

	activeConnections.Set(float64(total))

	lastSeen := time.Now()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.presence.SetOffline(h.ctx, client.userID, lastSeen)
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.broadcastPresence(client.userID, false, lastSeen)
	}()

	log.Printf("messaging: user %d disconnected, %d clients active", client.userID, total)
}

// JoinConversation adds the client to a conversation's room after a
// membership check. Clients must join before they receive that
// conversation's events.
func (h *Hub) JoinConversation(client *Client, conversationID int64) error {
	if !h.service.IsParticipant(h.ctx, client.userID, conversationID) {
		return ErrNotParticipant
	}

	h.mu.Lock()
	h.joinRoomLocked(client, conversationRoom(conversationID))
	h.mu.Unlock()

	return nil
}

// LeaveConversation removes the client from a conversation's room.
func (h *Hub) LeaveConversation(client *Client, conversationID int64) {
	h.mu.Lock()
	h.leaveRoomLocked(client, conversationRoom(conversationID))
	h.mu.Unlock()
}

func (h *Hub) joinRoomLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[int64]*Client)
		h.rooms[room] = members
	}
	members[client.userID] = client
	client.joinedRooms[room] = true
}

func (h *Hub) leaveRoomLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client.userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.joinedRooms, room)
}

func (h *Hub) removeFromRoomsLocked(client *Client) {
	for room := range client.joinedRooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client.userID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.joinedRooms = make(map[string]bool)
}

// PublishToConversation fans an event out to every member of the
// conversation's room. An empty or absent room is a silent no-op.
func (h *Hub) PublishToConversation(conversationID int64, event string, payload interface{}) {
	h.publishToRoom(conversationRoom(conversationID), event, payload, 0)
}

// PublishToConversationExcept is PublishToConversation minus one user,
// used for typing relays.
func (h *Hub) PublishToConversationExcept(conversationID, exceptUserID int64, event string, payload interface{}) {
	h.publishToRoom(conversationRoom(conversationID), event, payload, exceptUserID)
}

// SendToUser delivers an event to a user's personal room.
func (h *Hub) SendToUser(userID int64, event string, payload interface{}) {
	h.publishToRoom(personalRoom(userID), event, payload, 0)
}

func (h *Hub) publishToRoom(room, event string, payload interface{}, exceptUserID int64) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("messaging: marshalling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for userID, client := range members {
		if exceptUserID != 0 && userID == exceptUserID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.deliver(client, data)
	}

	realtimeEvents.WithLabelValues(event).Inc()
}

// broadcastPresence sends userOnline/userOffline to every connected
// client. Global fan-out is fine at this scale; presence in Redis is
// the path toward narrowing it per instance.
func (h *Hub) broadcastPresence(userID int64, online bool, lastSeen time.Time) {
	var event string
	var payload interface{}

	if online {
		user, err := h.service.GetUserInfo(h.ctx, userID)
		if err != nil {
			log.Printf("messaging: resolving user %d for presence: %v", userID, err)
		}
		event = EventUserOnline
		payload = &UserOnlinePayload{UserID: userID, User: user}
	} else {
		event = EventUserOffline
		payload = &UserOfflinePayload{UserID: userID, LastSeen: lastSeen}
	}

	data, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("messaging: marshalling presence event: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		if id == userID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.deliver(client, data)
	}

	realtimeEvents.WithLabelValues(event).Inc()
}

// deliver queues a frame on the client's send channel; a blocked client
// is dropped rather than stalling the fan-out. A client closed between
// the room snapshot and this send is skipped by enqueue.
func (h *Hub) deliver(client *Client, data []byte) {
	if !client.enqueue(data) {
		go func() { h.unregister <- client }()
	}
}

func (h *Hub) IsUserOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.clients[userID]
	return exists
}

func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	for _, client := range h.clients {
		client.Close()
	}
	h.clients = make(map[int64]*Client)
	h.rooms = make(map[string]map[int64]*Client)
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) Shutdown() {
	h.cancel()
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSEvent{
		Event:     event,
		Data:      data,
		Timestamp: time.Now(),
	})
}
