package invite

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the invite package.
var (
	ErrNotFound    = errors.New("invite not found")
	ErrAlreadyUsed = errors.New("invite already used")
	ErrCodeRetries = errors.New("failed to generate unique invite code")
)

// Invite holds the fields read from the invites table. Codes are single-use;
// UsedBy and UsedAt are set exactly once when the code is consumed.
type Invite struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	UsedBy    *int64     `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Used reports whether the invite has been consumed.
func (i *Invite) Used() bool {
	return i.UsedBy != nil
}

// Repository defines the data-access contract for invite operations.
type Repository interface {
	// Create inserts a new invite with a randomly generated code.
	Create(ctx context.Context) (*Invite, error)

	// GetByCode returns the invite matching the given code, or ErrNotFound.
	GetByCode(ctx context.Context, code string) (*Invite, error)

	// Consume atomically marks an unused invite as used by the given user.
	// When the code is missing it returns ErrNotFound; when another caller
	// consumed it first it returns ErrAlreadyUsed.
	Consume(ctx context.Context, code string, userID int64) error
}
