// internal/connections/service.go

package connections

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRequestNotFound  = errors.New("connection request not found")
	ErrDuplicateRequest = errors.New("a request already exists between these users")
	ErrAlreadyConnected = errors.New("users are already connected")
	ErrSelfRequest      = errors.New("cannot send a connection request to yourself")
	ErrNotRecipient     = errors.New("only the recipient can respond to this request")
	ErrNotRequester     = errors.New("only the requester can withdraw this request")
	ErrNotPending       = errors.New("request is no longer pending")
)

type Service interface {
	SendRequest(ctx context.Context, requesterID int64, input *SendRequestInput) (*ConnectionRequest, error)
	AcceptRequest(ctx context.Context, requestID, userID int64) (*Connection, error)
	DeclineRequest(ctx context.Context, requestID, userID int64) error
	WithdrawRequest(ctx context.Context, requestID, userID int64) error
	ListRequests(ctx context.Context, userID int64) ([]*ConnectionRequest, error)
	ListConnections(ctx context.Context, userID int64) ([]*Connection, error)

	// AreConnected answers the messaging layer's gate check.
	AreConnected(ctx context.Context, userA, userB int64) (bool, error)
}

type connectionService struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &connectionService{repo: repo}
}

func (s *connectionService) SendRequest(ctx context.Context, requesterID int64, input *SendRequestInput) (*ConnectionRequest, error) {
	if requesterID == input.RecipientID {
		return nil, ErrSelfRequest
	}

	connected, err := s.repo.AreConnected(ctx, requesterID, input.RecipientID)
	if err != nil {
		return nil, err
	}
	if connected {
		return nil, ErrAlreadyConnected
	}

	existing, err := s.repo.GetLiveRequestBetween(ctx, requesterID, input.RecipientID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRequest
	}

	req := &ConnectionRequest{
		RequesterID: requesterID,
		RecipientID: input.RecipientID,
		Status:      StatusPending,
		Message:     input.Message,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	return req, nil
}

func (s *connectionService) AcceptRequest(ctx context.Context, requestID, userID int64) (*Connection, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.RecipientID != userID {
		return nil, ErrNotRecipient
	}
	if req.Status != StatusPending {
		return nil, ErrNotPending
	}

	return s.repo.AcceptRequest(ctx, req)
}

func (s *connectionService) DeclineRequest(ctx context.Context, requestID, userID int64) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.RecipientID != userID {
		return ErrNotRecipient
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}

	return s.repo.UpdateRequestStatus(ctx, requestID, StatusDeclined)
}

func (s *connectionService) WithdrawRequest(ctx context.Context, requestID, userID int64) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.RequesterID != userID {
		return ErrNotRequester
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}

	return s.repo.UpdateRequestStatus(ctx, requestID, StatusWithdrawn)
}

func (s *connectionService) ListRequests(ctx context.Context, userID int64) ([]*ConnectionRequest, error) {
	return s.repo.ListRequestsForUser(ctx, userID)
}

func (s *connectionService) ListConnections(ctx context.Context, userID int64) ([]*Connection, error) {
	return s.repo.ListConnections(ctx, userID)
}

func (s *connectionService) AreConnected(ctx context.Context, userA, userB int64) (bool, error) {
	return s.repo.AreConnected(ctx, userA, userB)
}
