// internal/connections/models.go

package connections

import "time"

// Request statuses
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusWithdrawn = "withdrawn"
)

// ConnectionRequest is an invitation from one alumnus to another.
// Only one live request may exist between a pair at a time; duplicate
// prevention keys on request existence.
type ConnectionRequest struct {
	ID          int64      `json:"id" db:"id"`
	RequesterID int64      `json:"requester_id" db:"requester_id"`
	RecipientID int64      `json:"recipient_id" db:"recipient_id"`
	Status      string     `json:"status" db:"status"`
	Message     *string    `json:"message,omitempty" db:"message"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Connection is an accepted, mutual relationship. The pair is stored in
// canonical order (UserA < UserB) so lookups by unordered pair hit one row.
type Connection struct {
	ID        int64     `json:"id" db:"id"`
	UserA     int64     `json:"user_a" db:"user_a"`
	UserB     int64     `json:"user_b" db:"user_b"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Request DTOs

type SendRequestInput struct {
	RecipientID int64   `json:"recipient_id" validate:"required,gt=0"`
	Message     *string `json:"message,omitempty" validate:"omitempty,max=300"`
}

// CanonicalPair returns the two ids in sorted order.
func CanonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}
