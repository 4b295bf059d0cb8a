package user

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the user package.
var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// User holds the fields read from the users table. PublicKey is an opaque
// blob uploaded by the client; the server stores and returns it without
// interpreting it. The JSON encoding of PublicKey is standard base64.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	PublicKey []byte    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Credentials is the login-specific read of a user that includes the
// password hash. It is never serialised to a client.
type Credentials struct {
	User
	PasswordHash string `json:"-"`
}

// CreateParams groups the inputs for creating a new user.
type CreateParams struct {
	Username     string
	PasswordHash string
	PublicKey    []byte
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	// Create inserts a new user and returns the stored record. Returns
	// ErrUsernameTaken when the username is already in use.
	Create(ctx context.Context, params CreateParams) (*User, error)

	// GetByID returns a user by id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByUsername returns a user by username without credentials, or
	// ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetCredentials returns a user by username including the password hash,
	// or ErrNotFound.
	GetCredentials(ctx context.Context, username string) (*Credentials, error)

	// GetAll returns every user ordered by username. Never returns nil.
	GetAll(ctx context.Context) ([]User, error)

	// UpdatePublicKey replaces the stored public key for a user.
	UpdatePublicKey(ctx context.Context, id int64, publicKey []byte) error

	// UpdateLastSeen sets last_seen to the current time.
	UpdateLastSeen(ctx context.Context, id int64) error

	// Count returns the total number of users. A zero count enables
	// bootstrap registration without an invite.
	Count(ctx context.Context) (int, error)

	// Delete removes a user row. It exists solely to roll back a
	// registration whose invite consumption lost a race; established
	// accounts are never destroyed.
	Delete(ctx context.Context, id int64) error
}
