// internal/messaging/presence.go
// Presence mirror in Redis. The hub's in-process registry is the source
// of truth for this instance; Redis carries a TTL'd copy so other
// instances (and ops tooling) can observe who is online and when a user
// was last seen. All operations are best-effort.

package messaging

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKeyPrefix = "presence:online:"
	lastSeenKeyPrefix = "presence:lastseen:"
)

// PresenceTracker records online/offline state in Redis with a TTL.
// A nil tracker (Redis not configured) disables every operation.
type PresenceTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceTracker(client *redis.Client, ttl time.Duration) *PresenceTracker {
	if client == nil {
		return nil
	}
	return &PresenceTracker{client: client, ttl: ttl}
}

// SetOnline marks the user online. Refreshed by the hub on every ping
// so the key expires on its own if the instance dies.
func (p *PresenceTracker) SetOnline(ctx context.Context, userID int64) {
	if p == nil {
		return
	}
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	if err := p.client.Set(ctx, key, time.Now().Unix(), p.ttl).Err(); err != nil {
		log.Printf("presence: setting online for user %d: %v", userID, err)
	}
}

// SetOffline clears the online key and records the last-seen timestamp.
func (p *PresenceTracker) SetOffline(ctx context.Context, userID int64, lastSeen time.Time) {
	if p == nil {
		return
	}
	onlineKey := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	lastSeenKey := fmt.Sprintf("%s%d", lastSeenKeyPrefix, userID)

	if err := p.client.Del(ctx, onlineKey).Err(); err != nil {
		log.Printf("presence: clearing online for user %d: %v", userID, err)
	}
	if err := p.client.Set(ctx, lastSeenKey, lastSeen.Unix(), 0).Err(); err != nil {
		log.Printf("presence: recording last seen for user %d: %v", userID, err)
	}
}

// IsOnline reports whether any instance currently holds a connection
// for the user.
func (p *PresenceTracker) IsOnline(ctx context.Context, userID int64) bool {
	if p == nil {
		return false
	}
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	exists, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("presence: checking online for user %d: %v", userID, err)
		return false
	}
	return exists > 0
}
