package user

import (
	"time"

	domain "user-service/internal/domain/user"
)

// CreateUserRequest represents the request payload for creating a new user.
type CreateUserRequest struct {
	Name  string `validate:"notblank,max=100"`
	Email string `validate:"required,email"`
	Age   int    `validate:"min=0"`
}

// UpdateUserRequest represents a partial update. Nil fields are left unchanged.
type UpdateUserRequest struct {
	ID    int64
	Name  *string `validate:"omitempty,notblank,max=100"`
	Email *string `validate:"omitempty,email"`
	Age   *int    `validate:"omitempty,min=0"`
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID int64
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID int64
}

// CheckEmailRequest asks whether any user owns Email.
type CheckEmailRequest struct {
	Email string
}

// ProbeRequest drives the fallback diagnostic operation.
type ProbeRequest struct {
	Delay   time.Duration // simulated latency before answering
	Error   bool          // force a failure
	Success bool          // report SUCCESS instead of OK
}

// UserResponse is the shaped user record returned to callers.
type UserResponse struct {
	ID        int64
	Name      string
	Email     string
	Age       int
	CreatedAt time.Time
}

// ToUserResponse maps a stored record to its response shape.
func ToUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
	}
}
