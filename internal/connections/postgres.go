// internal/connections/postgres.go

package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateRequest(ctx context.Context, req *ConnectionRequest) error {
	query := `
        INSERT INTO connection_requests (requester_id, recipient_id, status, message, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`

	return r.db.QueryRowContext(
		ctx, query,
		req.RequesterID, req.RecipientID, req.Status, req.Message, req.CreatedAt,
	).Scan(&req.ID)
}

func (r *postgresRepository) GetRequest(ctx context.Context, id int64) (*ConnectionRequest, error) {
	var req ConnectionRequest
	query := `
        SELECT id, requester_id, recipient_id, status, message, responded_at, created_at
        FROM connection_requests
        WHERE id = $1`

	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// GetLiveRequestBetween returns a pending or accepted request between the
// pair in either direction. Declined and withdrawn requests do not block
// a new attempt.
func (r *postgresRepository) GetLiveRequestBetween(ctx context.Context, userA, userB int64) (*ConnectionRequest, error) {
	var req ConnectionRequest
	query := `
        SELECT id, requester_id, recipient_id, status, message, responded_at, created_at
        FROM connection_requests
        WHERE ((requester_id = $1 AND recipient_id = $2) OR (requester_id = $2 AND recipient_id = $1))
          AND status IN ('pending', 'accepted')
        ORDER BY created_at DESC
        LIMIT 1`

	if err := r.db.GetContext(ctx, &req, query, userA, userB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *postgresRepository) ListRequestsForUser(ctx context.Context, userID int64) ([]*ConnectionRequest, error) {
	requests := []*ConnectionRequest{}
	query := `
        SELECT id, requester_id, recipient_id, status, message, responded_at, created_at
        FROM connection_requests
        WHERE (requester_id = $1 OR recipient_id = $1) AND status = 'pending'
        ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *postgresRepository) UpdateRequestStatus(ctx context.Context, id int64, status string) error {
	query := `
        UPDATE connection_requests
        SET status = $1, responded_at = $2
        WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AcceptRequest flips the request to accepted and inserts the connection
// row inside a single transaction.
func (r *postgresRepository) AcceptRequest(ctx context.Context, req *ConnectionRequest) (*Connection, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	result, err := tx.ExecContext(ctx, `
        UPDATE connection_requests
        SET status = $1, responded_at = $2
        WHERE id = $3 AND status = 'pending'`,
		StatusAccepted, now, req.ID,
	)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	userA, userB := CanonicalPair(req.RequesterID, req.RecipientID)
	conn := &Connection{UserA: userA, UserB: userB, CreatedAt: now}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO connections (user_a, user_b, created_at)
        VALUES ($1, $2, $3)
        RETURNING id`,
		conn.UserA, conn.UserB, conn.CreatedAt,
	).Scan(&conn.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept tx: %w", err)
	}

	req.Status = StatusAccepted
	req.RespondedAt = &now
	return conn, nil
}

func (r *postgresRepository) AreConnected(ctx context.Context, userA, userB int64) (bool, error) {
	a, b := CanonicalPair(userA, userB)

	var exists bool
	query := `
        SELECT EXISTS(
            SELECT 1 FROM connections WHERE user_a = $1 AND user_b = $2
        )`

	err := r.db.QueryRowContext(ctx, query, a, b).Scan(&exists)
	return exists, err
}

func (r *postgresRepository) ListConnections(ctx context.Context, userID int64) ([]*Connection, error) {
	conns := []*Connection{}
	query := `
        SELECT id, user_a, user_b, created_at
        FROM connections
        WHERE user_a = $1 OR user_b = $1
        ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &conns, query, userID); err != nil {
		return nil, err
	}
	return conns, nil
}
