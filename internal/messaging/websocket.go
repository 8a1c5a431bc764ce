// internal/messaging/websocket.go
// Websocket upgrade and the authentication handshake. The token rides
// in the first frame rather than the query string so it never reaches
// access logs.

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/auth"
)

// authWait is how long the client has to present its auth frame.
const authWait = 10 * time.Second

var errBadAuthFrame = errors.New("expected auth event with a token")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for websockets is enforced at the proxy layer
		return true
	},
}

// HandleWebSocket upgrades the connection and runs the auth handshake:
// handshake -> authenticated -> joined-rooms -> active -> closed.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("messaging: websocket upgrade failed: %v", err)
		return
	}

	identity, err := h.authenticate(r.Context(), conn)
	if err != nil {
		writeEvent(conn, EventError, &WSErrorPayload{
			Code:    "AUTH_FAILED",
			Message: "authentication required",
		})
		conn.Close()
		return
	}

	writeEvent(conn, EventConnected, map[string]interface{}{
		"userId": identity.UserID,
	})

	client := NewClient(h.hub, conn, identity.UserID, h.service)
	h.hub.register <- client
	client.Start()
}

// authenticate reads the first frame, which must be an auth event
// carrying a valid token. One shot; no server-side retry.
func (h *Handler) authenticate(ctx context.Context, conn *websocket.Conn) (*auth.Identity, error) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(authWait))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var event WSEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Event != EventAuth {
		return nil, errBadAuthFrame
	}

	var payload AuthPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, errBadAuthFrame
	}

	return h.authService.ValidateToken(ctx, payload.Token)
}

func writeEvent(conn *websocket.Conn, event string, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, data)
}
