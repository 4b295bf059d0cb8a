package invite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/sqlite"
)

const (
	codeBytes      = 16
	maxCodeRetries = 3
)

// selectColumns lists the columns returned by queries that produce an *Invite.
const selectColumns = `id, code, used_by, created_at, used_at`

// SQLRepository implements Repository over the embedded SQLite store.
type SQLRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQLite-backed invite repository.
func NewSQLRepository(db *sql.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Create inserts a new invite with a randomly generated code. Generation
// retries up to maxCodeRetries on the unlikely event of a unique constraint
// violation.
func (r *SQLRepository) Create(ctx context.Context) (*Invite, error) {
	for attempt := range maxCodeRetries {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		res, err := r.db.ExecContext(ctx,
			"INSERT INTO invites (code) VALUES (?)", code)
		if err != nil {
			if sqlite.IsUniqueViolation(err) && attempt < maxCodeRetries-1 {
				continue
			}
			if sqlite.IsUniqueViolation(err) {
				return nil, ErrCodeRetries
			}
			return nil, fmt.Errorf("insert invite: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		return r.getByID(ctx, id)
	}
	return nil, ErrCodeRetries
}

// GetByCode returns the invite matching the given code.
func (r *SQLRepository) GetByCode(ctx context.Context, code string) (*Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM invites WHERE code = ?", code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query invite by code: %w", err)
	}
	return inv, nil
}

// Consume atomically claims an unused invite for the given user. The guard
// on used_by IS NULL makes concurrent consumes of the same code resolve to
// exactly one winner. If the update affects zero rows, a diagnostic query
// determines whether the code is missing or already spent.
func (r *SQLRepository) Consume(ctx context.Context, code string, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invites SET used_by = ?, used_at = ? WHERE code = ? AND used_by IS NULL",
		userID, time.Now().UTC(), code,
	)
	if err != nil {
		return fmt.Errorf("consume invite: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume invite rows affected: %w", err)
	}
	if n == 0 {
		return r.diagnoseConsumeFailure(ctx, code)
	}
	return nil
}

// diagnoseConsumeFailure explains why the atomic consume matched nothing.
func (r *SQLRepository) diagnoseConsumeFailure(ctx context.Context, code string) error {
	inv, err := r.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("diagnose invite consume: %w", err)
	}
	if inv.Used() {
		return ErrAlreadyUsed
	}
	// The invite exists and looks unused; the update raced something odd.
	return fmt.Errorf("consume invite %s: update matched no rows", code)
}

func (r *SQLRepository) getByID(ctx context.Context, id int64) (*Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM invites WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query invite by id: %w", err)
	}
	return inv, nil
}

// generateCode returns a 32-character lowercase hex code.
func generateCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// scanInvite scans a single row into an *Invite.
func scanInvite(row *sql.Row) (*Invite, error) {
	var inv Invite
	if err := row.Scan(&inv.ID, &inv.Code, &inv.UsedBy, &inv.CreatedAt, &inv.UsedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}
