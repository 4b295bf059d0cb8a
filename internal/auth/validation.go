package auth

import "regexp"

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// ValidateUsername checks a username is 3-32 characters and only contains
// letters, digits, underscores, and periods. len() is used intentionally
// because usernameRegex restricts to ASCII, where byte count equals rune
// count.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return ErrUsernameLength
	}
	if !usernameRegex.MatchString(username) {
		return ErrUsernameInvalidChars
	}
	return nil
}

// ValidatePassword checks that a password is between 6 and 128 characters.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return ErrPasswordTooShort
	}
	if len(password) > 128 {
		return ErrPasswordTooLong
	}
	return nil
}
