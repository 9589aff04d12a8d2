package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "user-service/internal/domain/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/fallback"
	"user-service/pkg/logger"
	"user-service/pkg/security"
)

// Placeholder values returned by GetUser when the store is unavailable.
const (
	FallbackName  = "Service Temporarily Unavailable"
	FallbackEmail = "fallback@example.com"
)

// MaxProbeDelay caps the simulated latency accepted by ProbeFallback.
const MaxProbeDelay = 10 * time.Second

// ErrProbeFailure is the simulated failure raised by ProbeFallback.
var ErrProbeFailure = errors.New("simulated failure for fallback probe")

// Repository defines the Record Store consumed by the user service.
type Repository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)       // Insert; store assigns ID
	Update(ctx context.Context, u *domain.User) (*domain.User, error)       // Persist all fields of an existing record
	FindByID(ctx context.Context, id int64) (*domain.User, error)           // domain.ErrUserNotFound when absent
	FindAllOrderedByCreatedDesc(ctx context.Context) ([]domain.User, error) // Newest first
	ExistsByID(ctx context.Context, id int64) (bool, error)                 // Existence by primary key
	ExistsByEmail(ctx context.Context, email string) (bool, error)          // Existence by unique email
	DeleteByID(ctx context.Context, id int64) error                         // Remove by primary key
	Count(ctx context.Context) (int64, error)                               // Total number of records
}

// Usecase implements the business logic for user management operations.
type Usecase struct {
	repo     Repository
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Option customizes a Usecase.
type Option func(*Usecase)

// WithClock overrides the time source used for creation timestamps and placeholders.
func WithClock(now func() time.Time) Option {
	return func(uc *Usecase) {
		uc.now = now
	}
}

// defaultClock matches the microsecond precision of the store's timestamps.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// New creates a new instance of Usecase with the provided repository and logger.
func New(r Repository, log *zap.Logger, opts ...Option) *Usecase {
	uc := &Usecase{
		repo:     r,
		log:      log,
		validate: security.NewValidator(),
		now:      defaultClock,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

var _ UserUsecase = (*Usecase)(nil)

// formatValidationError converts validator.ValidationErrors into a field → message map.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return pkgerrors.NewValidationError("", err.Error())
	}
	return pkgerrors.NewFieldsValidationError(security.FieldMessages(validationErrors))
}

func notFound(id int64) error {
	return pkgerrors.NewNotFoundError("user", fmt.Sprintf("user not found with id: %d", id))
}

func emailConflict(email string) error {
	return pkgerrors.NewAlreadyExistsError("user", "email already exists: "+email)
}

// CreateUser creates a new user after validating the request and checking email uniqueness.
func (uc *Usecase) CreateUser(ctx context.Context, in CreateUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("creating user", zap.String("name", in.Name), zap.String("email", in.Email))

	if err := uc.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	exists, err := uc.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		log.Error("failed to check existing email", zap.String("email", in.Email), zap.Error(err))
		return nil, pkgerrors.NewInternalError("failed to validate email uniqueness", err)
	}
	if exists {
		log.Warn("email already exists", zap.String("email", in.Email))
		return nil, emailConflict(in.Email)
	}

	// The unique index on email catches a concurrent insert that passed the check above.
	saved, err := uc.repo.Create(ctx, &domain.User{
		Name:      in.Name,
		Email:     in.Email,
		Age:       in.Age,
		CreatedAt: uc.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			log.Warn("email taken by concurrent insert", zap.String("email", in.Email))
			return nil, emailConflict(in.Email)
		}
		log.Error("failed to create user", zap.Error(err))
		return nil, pkgerrors.NewInternalError("failed to create user", err)
	}

	resp := ToUserResponse(saved)
	return &resp, nil
}

// GetUser retrieves a user by ID. Store failures other than a missing record
// yield a placeholder user carrying the requested ID.
func (uc *Usecase) GetUser(ctx context.Context, in GetUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log)
	if in.ID <= 0 {
		log.Warn("get user with non-positive id", zap.Int64("id", in.ID))
		return nil, notFound(in.ID)
	}

	return fallback.Do(ctx, "get_user",
		func(ctx context.Context) (*UserResponse, error) {
			u, err := uc.repo.FindByID(ctx, in.ID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					return nil, notFound(in.ID)
				}
				return nil, err
			}
			resp := ToUserResponse(u)
			return &resp, nil
		},
		func(error) *UserResponse {
			return uc.placeholder(in.ID)
		},
		fallback.WithPassthrough(pkgerrors.IsNotFound),
		fallback.WithLogger(uc.log),
	)
}

func (uc *Usecase) placeholder(id int64) *UserResponse {
	return &UserResponse{
		ID:        id,
		Name:      FallbackName,
		Email:     FallbackEmail,
		Age:       0,
		CreatedAt: uc.now(),
	}
}

// ListUsers returns every user, newest first. A store failure yields an empty list.
func (uc *Usecase) ListUsers(ctx context.Context) []UserResponse {
	return fallback.Run(ctx, "list_users",
		func(ctx context.Context) ([]UserResponse, error) {
			users, err := uc.repo.FindAllOrderedByCreatedDesc(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]UserResponse, len(users))
			for i := range users {
				out[i] = ToUserResponse(&users[i])
			}
			return out, nil
		},
		func(error) []UserResponse {
			return []UserResponse{}
		},
		fallback.WithLogger(uc.log),
	)
}

// UpdateUser applies the non-nil fields of in to an existing user.
func (uc *Usecase) UpdateUser(ctx context.Context, in UpdateUserRequest) (*UserResponse, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("updating user", zap.Int64("id", in.ID))

	if err := uc.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	if in.ID <= 0 {
		return nil, notFound(in.ID)
	}

	existing, err := uc.repo.FindByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			log.Warn("user to update not found", zap.Int64("id", in.ID))
			return nil, notFound(in.ID)
		}
		log.Error("failed to load user for update", zap.Int64("id", in.ID), zap.Error(err))
		return nil, pkgerrors.NewInternalError("failed to load user", err)
	}

	if in.Email != nil && *in.Email != existing.Email {
		exists, err := uc.repo.ExistsByEmail(ctx, *in.Email)
		if err != nil {
			log.Error("failed to check existing email", zap.String("email", *in.Email), zap.Error(err))
			return nil, pkgerrors.NewInternalError("failed to validate email uniqueness", err)
		}
		if exists {
			log.Warn("email already exists", zap.String("email", *in.Email), zap.Int64("id", in.ID))
			return nil, emailConflict(*in.Email)
		}
	}

	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Email != nil {
		existing.Email = *in.Email
	}
	if in.Age != nil {
		existing.Age = *in.Age
	}

	saved, err := uc.repo.Update(ctx, existing)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			return nil, emailConflict(existing.Email)
		case errors.Is(err, domain.ErrUserNotFound):
			return nil, notFound(in.ID)
		}
		log.Error("failed to update user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, pkgerrors.NewInternalError("failed to update user", err)
	}

	resp := ToUserResponse(saved)
	return &resp, nil
}

// DeleteUser removes a user. Unknown IDs fail without issuing a delete.
func (uc *Usecase) DeleteUser(ctx context.Context, in DeleteUserRequest) error {
	log := logger.WithContext(ctx, uc.log)
	log.Info("deleting user", zap.Int64("id", in.ID))

	if in.ID <= 0 {
		return notFound(in.ID)
	}

	exists, err := uc.repo.ExistsByID(ctx, in.ID)
	if err != nil {
		log.Error("failed to check user existence", zap.Int64("id", in.ID), zap.Error(err))
		return pkgerrors.NewInternalError("failed to check user existence", err)
	}
	if !exists {
		log.Warn("user to delete not found", zap.Int64("id", in.ID))
		return notFound(in.ID)
	}

	if err := uc.repo.DeleteByID(ctx, in.ID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return notFound(in.ID)
		}
		log.Error("failed to delete user", zap.Int64("id", in.ID), zap.Error(err))
		return pkgerrors.NewInternalError("failed to delete user", err)
	}
	return nil
}

// EmailExists reports whether a user with the given email exists.
func (uc *Usecase) EmailExists(ctx context.Context, in CheckEmailRequest) (bool, error) {
	log := logger.WithContext(ctx, uc.log)
	exists, err := uc.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		log.Error("failed to check email", zap.String("email", in.Email), zap.Error(err))
		return false, pkgerrors.NewInternalError("failed to check email", err)
	}
	return exists, nil
}

// CountUsers returns the number of users, or 0 when the store is unavailable.
func (uc *Usecase) CountUsers(ctx context.Context) int64 {
	return fallback.Run(ctx, "count_users",
		uc.repo.Count,
		func(error) int64 { return 0 },
		fallback.WithLogger(uc.log),
	)
}

// ProbeFallback exercises the fallback wrapper with a simulated delay or failure.
func (uc *Usecase) ProbeFallback(ctx context.Context, in ProbeRequest) string {
	delay := in.Delay
	if delay < 0 {
		delay = 0
	}
	if delay > MaxProbeDelay {
		delay = MaxProbeDelay
	}

	return fallback.Run(ctx, "probe",
		func(ctx context.Context) (string, error) {
			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}

			if in.Error {
				return "", ErrProbeFailure
			}
			if in.Success {
				return fmt.Sprintf("Fallback probe - SUCCESS. Delay: %dms", delay.Milliseconds()), nil
			}
			return fmt.Sprintf("Fallback probe - OK. Delay: %dms", delay.Milliseconds()), nil
		},
		func(err error) string {
			return "Fallback: service is temporarily unavailable. Original error: " + err.Error()
		},
		fallback.WithLogger(uc.log),
	)
}
