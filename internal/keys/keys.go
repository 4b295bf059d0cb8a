// Package keys encodes and decodes the opaque byte blobs the server
// transports but never interprets: client public keys, message ciphertext,
// and nonces. Base64 is purely a wire encoding; the server performs no
// cryptographic operation on any of these values.
package keys

import (
	"encoding/base64"
	"errors"
)

// ErrEmpty is returned when a required blob is missing from a request.
var ErrEmpty = errors.New("value must not be empty")

// Encode returns the standard base64 encoding of a blob.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode parses a standard base64 string back into raw bytes.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// DecodeRequired parses a standard base64 string and rejects empty input.
// Handlers use it for fields that must carry a value, such as a public key
// at registration.
func DecodeRequired(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	return base64.StdEncoding.DecodeString(s)
}
