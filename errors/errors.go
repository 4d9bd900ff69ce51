package errors

import "fmt"

// Authentication failures are fatal to the connection.
// They are never surfaced to the peer beyond the transport-level close.
var (
	ErrMissingToken       = fmt.Errorf("no token found in handshake")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrUnknownUser        = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// Recoverable failures, reported to the originating session only.
var (
	ErrEmptyContent   = fmt.Errorf("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds the allowed length")
	ErrStoreFailure   = fmt.Errorf("message persistence failed")
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)
