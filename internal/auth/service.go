package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/config"
	"github.com/enclave-chat/enclave-server/internal/invite"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// Service implements authentication business logic, keeping HTTP handlers
// thin and focused on request parsing and response formatting.
type Service struct {
	users   user.Repository
	invites invite.Repository
	config  *config.Config
	log     zerolog.Logger
}

// NewService creates a new authentication service.
func NewService(users user.Repository, invites invite.Repository, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		users:   users,
		invites: invites,
		config:  cfg,
		log:     logger,
	}
}

// RegisterRequest is the input for Service.Register.
type RegisterRequest struct {
	Username   string
	Password   string
	PublicKey  []byte
	InviteCode string
}

// LoginRequest is the input for Service.Login.
type LoginRequest struct {
	Username string
	Password string
}

// AuthResult is the output for Register and Login.
type AuthResult struct {
	User  *user.User
	Token string
}

// Register validates inputs, enforces the invite gate, creates the user, and
// returns a session token. The first account ever created may register
// without an invite code; every later registration needs an unused one.
//
// The invite is consumed after the user row exists so used_by can reference
// it. If the consume loses a concurrent race for the same code, the freshly
// created user is deleted again so the single-use guarantee holds.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	inviteRequired := count > 0

	if inviteRequired && req.InviteCode == "" {
		return nil, ErrInviteRequired
	}

	// Pre-check the invite so an obviously bad code fails before any writes.
	// The authoritative check is the atomic consume below.
	if req.InviteCode != "" {
		inv, err := s.invites.GetByCode(ctx, req.InviteCode)
		if err != nil {
			if errors.Is(err, invite.ErrNotFound) {
				return nil, ErrInviteInvalid
			}
			return nil, fmt.Errorf("check invite: %w", err)
		}
		if inv.Used() {
			return nil, ErrInviteInvalid
		}
	}

	hash, err := HashPassword(
		req.Password,
		s.config.Argon2Memory,
		s.config.Argon2Iterations,
		s.config.Argon2Parallelism,
		s.config.Argon2SaltLength,
		s.config.Argon2KeyLength,
	)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.CreateParams{
		Username:     req.Username,
		PasswordHash: hash,
		PublicKey:    req.PublicKey,
	})
	if err != nil {
		return nil, err
	}

	if req.InviteCode != "" {
		if err := s.invites.Consume(ctx, req.InviteCode, u.ID); err != nil {
			if delErr := s.users.Delete(ctx, u.ID); delErr != nil {
				s.log.Error().Err(delErr).Int64("user_id", u.ID).
					Msg("Failed to roll back user after invite consume failure")
			}
			if errors.Is(err, invite.ErrNotFound) || errors.Is(err, invite.ErrAlreadyUsed) {
				return nil, ErrInviteInvalid
			}
			return nil, fmt.Errorf("consume invite: %w", err)
		}
	}

	token, err := NewToken(u.ID, u.Username, s.config.JWTSecret, s.config.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("User registered")
	return &AuthResult{User: u, Token: token}, nil
}

// Login verifies credentials and returns a session token. An unknown
// username surfaces as user.ErrNotFound; a wrong password as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	creds, err := s.users.GetCredentials(ctx, req.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	match, err := VerifyPassword(req.Password, creds.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	token, err := NewToken(creds.ID, creds.Username, s.config.JWTSecret, s.config.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &AuthResult{User: &creds.User, Token: token}, nil
}

// ValidateInvite reports whether a code exists and is still unused.
func (s *Service) ValidateInvite(ctx context.Context, code string) (bool, error) {
	inv, err := s.invites.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, invite.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check invite: %w", err)
	}
	return !inv.Used(), nil
}
