package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserExists is returned when a phone number is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned for a wrong phone/PIN pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User represents a registered wallet owner.
type User struct {
	ID           string
	Phone        string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone string
	PIN   string
}
