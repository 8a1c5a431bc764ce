// internal/connections/repository.go

package connections

import (
	"context"
)

type Repository interface {
	// Requests
	CreateRequest(ctx context.Context, req *ConnectionRequest) error
	GetRequest(ctx context.Context, id int64) (*ConnectionRequest, error)
	GetLiveRequestBetween(ctx context.Context, userA, userB int64) (*ConnectionRequest, error)
	ListRequestsForUser(ctx context.Context, userID int64) ([]*ConnectionRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, status string) error

	// AcceptRequest marks the request accepted and creates the connection
	// in one transaction. A half-applied accept would leave the pair
	// permanently unable to connect, so both writes succeed or neither does.
	AcceptRequest(ctx context.Context, req *ConnectionRequest) (*Connection, error)

	// Connections
	AreConnected(ctx context.Context, userA, userB int64) (bool, error)
	ListConnections(ctx context.Context, userID int64) ([]*Connection, error)
}
