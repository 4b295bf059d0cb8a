package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/sqlite"
)

// selectColumns lists the columns returned by queries that produce a *User.
const selectColumns = `id, username, public_key, created_at, last_seen`

// SQLRepository implements Repository over the embedded SQLite store.
type SQLRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQLite-backed user repository.
func NewSQLRepository(db *sql.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Create inserts a new user and reads the stored record back so that the
// caller sees the database-assigned id and timestamps.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*User, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, public_key) VALUES (?, ?, ?)",
		params.Username, params.PasswordHash, params.PublicKey,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a user by id, or ErrNotFound.
func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

// GetByUsername returns a user by username without credentials, or
// ErrNotFound.
func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

// GetCredentials returns a user by username including the password hash, or
// ErrNotFound.
func (r *SQLRepository) GetCredentials(ctx context.Context, username string) (*Credentials, error) {
	var c Credentials
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, public_key, created_at, last_seen FROM users WHERE username = ?",
		username,
	).Scan(&c.ID, &c.Username, &c.PasswordHash, &c.PublicKey, &c.CreatedAt, &c.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user credentials: %w", err)
	}
	return &c, nil
}

// GetAll returns every user ordered by username.
func (r *SQLRepository) GetAll(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PublicKey, &u.CreatedAt, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdatePublicKey replaces the stored public key for a user.
func (r *SQLRepository) UpdatePublicKey(ctx context.Context, id int64, publicKey []byte) error {
	tag, err := r.db.ExecContext(ctx,
		"UPDATE users SET public_key = ? WHERE id = ?", publicKey, id)
	if err != nil {
		return fmt.Errorf("update public key: %w", err)
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastSeen sets last_seen to the current time.
func (r *SQLRepository) UpdateLastSeen(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET last_seen = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// Count returns the total number of users.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Delete removes a user row.
func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanUser scans a single row into a *User.
func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PublicKey, &u.CreatedAt, &u.LastSeen); err != nil {
		return nil, err
	}
	return &u, nil
}
