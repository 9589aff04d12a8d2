package user

import (
	"errors"
	"time"
)

// User represents a user record in the system.
type User struct {
	ID        int64     // ID is assigned by the store on insert and never changes
	Name      string    // Name is the full name of the user
	Email     string    // Email is unique across all users
	Age       int       // Age in years
	CreatedAt time.Time // CreatedAt is set once at creation
}

// Store-level errors returned by Repository implementations.
var (
	// ErrUserNotFound is returned when no record matches the requested id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when the unique email constraint rejects a write.
	ErrEmailTaken = errors.New("email already taken")
)
