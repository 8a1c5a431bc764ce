// internal/messaging/websocket_test.go

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/auth"
)

const handshakeTestSecret = "handshake-test-secret"

func newHandshakeServer(t *testing.T) (*httptest.Server, *Hub, auth.Service) {
	t.Helper()

	repo := newFakeRepository()
	repo.addUser(1, "alice", true)

	svc := newTestService(repo, newFakeGate())
	hub := NewHub(svc, nil)
	svc.SetHub(hub)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	authService := auth.NewService(&auth.Config{
		JWTSecret:         handshakeTestSecret,
		AccessTokenExpiry: time.Hour,
	})
	handler := NewHandler(svc, hub, authService)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)

	return srv, hub, authService
}

func dialWebsocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsFrame(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(WSEvent{Event: event, Data: data})
	require.NoError(t, err)
	return frame
}

func readHandshakeEvent(t *testing.T, conn *websocket.Conn) *WSEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event WSEvent
	require.NoError(t, conn.ReadJSON(&event))
	return &event
}

func TestHandshakeRejectsNonAuthFirstFrame(t *testing.T) {
	srv, hub, _ := newHandshakeServer(t)
	conn := dialWebsocket(t, srv)

	// Any event before auth is refused, even a well-formed one
	frame := wsFrame(t, EventJoinConversation, &RoomPayload{ConversationID: 1})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	event := readHandshakeEvent(t, conn)
	assert.Equal(t, EventError, event.Event)

	var payload WSErrorPayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, "AUTH_FAILED", payload.Code)

	// The server closes the connection after the error frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 0, hub.ActiveConnections())
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	srv, hub, _ := newHandshakeServer(t)
	conn := dialWebsocket(t, srv)

	frame := wsFrame(t, EventAuth, &AuthPayload{Token: "not-a-real-token"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	event := readHandshakeEvent(t, conn)
	assert.Equal(t, EventError, event.Event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 0, hub.ActiveConnections())
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	srv, _, _ := newHandshakeServer(t)
	conn := dialWebsocket(t, srv)

	frame := wsFrame(t, EventAuth, &AuthPayload{})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	event := readHandshakeEvent(t, conn)
	assert.Equal(t, EventError, event.Event)
}

func TestHandshakeAcceptsValidToken(t *testing.T) {
	srv, hub, authService := newHandshakeServer(t)
	conn := dialWebsocket(t, srv)

	token, err := authService.GenerateToken(context.Background(), &auth.Identity{
		UserID:     1,
		Email:      "alice@example.com",
		Name:       "alice",
		Role:       auth.RoleAlumni,
		IsVerified: true,
	})
	require.NoError(t, err)

	frame := wsFrame(t, EventAuth, &AuthPayload{Token: token})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	event := readHandshakeEvent(t, conn)
	require.Equal(t, EventConnected, event.Event)

	var ack struct {
		UserID int64 `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(event.Data, &ack))
	assert.Equal(t, int64(1), ack.UserID)

	require.Eventually(t, func() bool {
		return hub.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsUserOnline(1))
}
