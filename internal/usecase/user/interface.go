package user

import "context"

// UserUsecase defines the interface for user business logic operations.
type UserUsecase interface {
	CreateUser(ctx context.Context, in CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, in GetUserRequest) (*UserResponse, error)
	ListUsers(ctx context.Context) []UserResponse
	UpdateUser(ctx context.Context, in UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, in DeleteUserRequest) error
	EmailExists(ctx context.Context, in CheckEmailRequest) (bool, error)
	CountUsers(ctx context.Context) int64
	ProbeFallback(ctx context.Context, in ProbeRequest) string
}
