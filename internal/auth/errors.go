package auth

import "errors"

// Sentinel errors for the auth package.
var (
	ErrUsernameLength       = errors.New("username must be between 3 and 32 characters")
	ErrUsernameInvalidChars = errors.New("username may only contain letters, digits, underscores, and periods")
	ErrPasswordTooShort     = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong      = errors.New("password must be at most 128 characters")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInviteRequired       = errors.New("invite code required")
	ErrInviteInvalid        = errors.New("invalid or used invite code")
	ErrInvalidToken         = errors.New("invalid or expired token")
)
