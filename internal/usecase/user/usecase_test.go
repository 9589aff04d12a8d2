package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	domain "user-service/internal/domain/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/logger"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockRepository) FindAllOrderedByCreatedDesc(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteByID(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var (
	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	errStore = errors.New("connection refused")
)

func setupTestUsecase(t *testing.T) (*Usecase, *MockRepository) {
	mockRepo := new(MockRepository)
	uc := New(mockRepo, zaptest.NewLogger(t), WithClock(func() time.Time { return fixedNow }))
	return uc, mockRepo
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// ==================== CREATE USER TESTS ====================

func TestCreateUser_Success(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	req := CreateUserRequest{Name: "John Doe", Email: "john@example.com", Age: 30}

	mockRepo.On("ExistsByEmail", ctx, req.Email).Return(false, nil)
	mockRepo.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == 0 && u.Name == req.Name && u.Email == req.Email && u.Age == 30 && u.CreatedAt.Equal(fixedNow)
	})).Return(&domain.User{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: fixedNow}, nil)

	resp, err := uc.CreateUser(ctx, req)

	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "John Doe", resp.Name)
	assert.Equal(t, "john@example.com", resp.Email)
	assert.Equal(t, 30, resp.Age)
	assert.Equal(t, fixedNow, resp.CreatedAt)

	mockRepo.AssertExpectations(t)
}

func TestCreateUser_EmailAlreadyExists(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	req := CreateUserRequest{Name: "John Doe", Email: "john@example.com", Age: 30}
	mockRepo.On("ExistsByEmail", ctx, req.Email).Return(true, nil)

	resp, err := uc.CreateUser(ctx, req)

	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "email already exists")
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateUser_UniqueConstraintRace(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	req := CreateUserRequest{Name: "John Doe", Email: "john@example.com", Age: 30}
	mockRepo.On("ExistsByEmail", ctx, req.Email).Return(false, nil)
	mockRepo.On("Create", ctx, mock.Anything).Return(nil, domain.ErrEmailTaken)

	_, err := uc.CreateUser(ctx, req)

	assert.True(t, pkgerrors.IsAlreadyExists(err))
}

func TestCreateUser_StoreFailureIsNotSwallowed(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	req := CreateUserRequest{Name: "John Doe", Email: "john@example.com"}
	mockRepo.On("ExistsByEmail", ctx, req.Email).Return(false, nil)
	mockRepo.On("Create", ctx, mock.Anything).Return(nil, errStore)

	resp, err := uc.CreateUser(ctx, req)

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.Equal(t, 500, pkgerrors.StatusOf(err))
}

func TestCreateUser_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateUserRequest
		fields map[string]string
	}{
		{
			name:   "blank name",
			req:    CreateUserRequest{Name: "   ", Email: "john@example.com"},
			fields: map[string]string{"name": "must not be blank"},
		},
		{
			name:   "missing email",
			req:    CreateUserRequest{Name: "John", Email: ""},
			fields: map[string]string{"email": "is required"},
		},
		{
			name:   "malformed email",
			req:    CreateUserRequest{Name: "John", Email: "invalid-email"},
			fields: map[string]string{"email": "must be a valid email"},
		},
		{
			name:   "negative age",
			req:    CreateUserRequest{Name: "John", Email: "john@example.com", Age: -1},
			fields: map[string]string{"age": "must be greater than or equal to 0"},
		},
		{
			name: "multiple errors",
			req:  CreateUserRequest{Name: "", Email: "invalid", Age: -5},
			fields: map[string]string{
				"name":  "must not be blank",
				"email": "must be a valid email",
				"age":   "must be greater than or equal to 0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, mockRepo := setupTestUsecase(t)

			resp, err := uc.CreateUser(context.Background(), tt.req)

			assert.Nil(t, resp)
			var verr *pkgerrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)
			mockRepo.AssertNotCalled(t, "ExistsByEmail", mock.Anything, mock.Anything)
		})
	}
}

// ==================== GET USER TESTS ====================

func TestGetUser_Success(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	created := fixedNow.Add(-time.Hour)
	mockRepo.On("FindByID", ctx, int64(1)).
		Return(&domain.User{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: created}, nil)

	resp, err := uc.GetUser(ctx, GetUserRequest{ID: 1})

	require.NoError(t, err)
	assert.Equal(t, UserResponse{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: created}, *resp)
}

func TestGetUser_NotFound(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(999)).Return(nil, domain.ErrUserNotFound)

	resp, err := uc.GetUser(ctx, GetUserRequest{ID: 999})

	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "999")
}

func TestGetUser_NonPositiveID(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)

	_, err := uc.GetUser(context.Background(), GetUserRequest{ID: 0})

	assert.True(t, pkgerrors.IsNotFound(err))
	mockRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestGetUser_StoreFailureReturnsPlaceholder(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(7)).Return(nil, errStore)

	resp, err := uc.GetUser(ctx, GetUserRequest{ID: 7})

	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, FallbackName, resp.Name)
	assert.Equal(t, FallbackEmail, resp.Email)
	assert.Equal(t, 0, resp.Age)
	assert.Equal(t, fixedNow, resp.CreatedAt)
}

// ==================== LIST USERS TESTS ====================

func TestListUsers_NewestFirst(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	a := domain.User{ID: 1, Name: "A", Email: "a@example.com", CreatedAt: fixedNow.Add(-time.Minute)}
	b := domain.User{ID: 2, Name: "B", Email: "b@example.com", CreatedAt: fixedNow}
	mockRepo.On("FindAllOrderedByCreatedDesc", ctx).Return([]domain.User{b, a}, nil)

	users := uc.ListUsers(ctx)

	require.Len(t, users, 2)
	assert.Equal(t, "B", users[0].Name)
	assert.Equal(t, "A", users[1].Name)
}

func TestListUsers_Empty(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindAllOrderedByCreatedDesc", ctx).Return([]domain.User{}, nil)

	users := uc.ListUsers(ctx)

	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestListUsers_StoreFailureReturnsEmpty(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindAllOrderedByCreatedDesc", ctx).Return(nil, errStore)

	users := uc.ListUsers(ctx)

	assert.NotNil(t, users)
	assert.Empty(t, users)
}

// ==================== UPDATE USER TESTS ====================

func existingUser() *domain.User {
	return &domain.User{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: fixedNow.Add(-time.Hour)}
}

func TestUpdateUser_AllFields(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(1)).Return(existingUser(), nil)
	mockRepo.On("ExistsByEmail", ctx, "john.updated@example.com").Return(false, nil)
	mockRepo.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == 1 && u.Name == "John Updated" && u.Email == "john.updated@example.com" && u.Age == 35
	})).Return(&domain.User{ID: 1, Name: "John Updated", Email: "john.updated@example.com", Age: 35, CreatedAt: fixedNow.Add(-time.Hour)}, nil)

	resp, err := uc.UpdateUser(ctx, UpdateUserRequest{
		ID:    1,
		Name:  strPtr("John Updated"),
		Email: strPtr("john.updated@example.com"),
		Age:   intPtr(35),
	})

	require.NoError(t, err)
	assert.Equal(t, "John Updated", resp.Name)
	assert.Equal(t, "john.updated@example.com", resp.Email)
	assert.Equal(t, 35, resp.Age)
	mockRepo.AssertExpectations(t)
}

func TestUpdateUser_PartialNameOnly(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	createdAt := fixedNow.Add(-time.Hour)
	mockRepo.On("FindByID", ctx, int64(1)).Return(existingUser(), nil)
	mockRepo.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Name == "John Updated" && u.Email == "john@example.com" && u.Age == 30 && u.CreatedAt.Equal(createdAt)
	})).Return(&domain.User{ID: 1, Name: "John Updated", Email: "john@example.com", Age: 30, CreatedAt: createdAt}, nil)

	resp, err := uc.UpdateUser(ctx, UpdateUserRequest{ID: 1, Name: strPtr("John Updated")})

	require.NoError(t, err)
	assert.Equal(t, "John Updated", resp.Name)
	assert.Equal(t, "john@example.com", resp.Email)
	assert.Equal(t, 30, resp.Age)
	mockRepo.AssertNotCalled(t, "ExistsByEmail", mock.Anything, mock.Anything)
}

func TestUpdateUser_SameEmailSkipsConflictCheck(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(1)).Return(existingUser(), nil)
	mockRepo.On("Update", ctx, mock.Anything).Return(existingUser(), nil)

	_, err := uc.UpdateUser(ctx, UpdateUserRequest{ID: 1, Email: strPtr("john@example.com")})

	require.NoError(t, err)
	mockRepo.AssertNotCalled(t, "ExistsByEmail", mock.Anything, mock.Anything)
}

func TestUpdateUser_EmailConflict(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(1)).Return(existingUser(), nil)
	mockRepo.On("ExistsByEmail", ctx, "existing@example.com").Return(true, nil)

	resp, err := uc.UpdateUser(ctx, UpdateUserRequest{ID: 1, Email: strPtr("existing@example.com")})

	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsAlreadyExists(err))
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateUser_NotFound(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(999)).Return(nil, domain.ErrUserNotFound)

	resp, err := uc.UpdateUser(ctx, UpdateUserRequest{ID: 999, Name: strPtr("Nobody")})

	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsNotFound(err))
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateUser_ValidationError(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)

	_, err := uc.UpdateUser(context.Background(), UpdateUserRequest{ID: 1, Email: strPtr("not-an-email"), Age: intPtr(-3)})

	var verr *pkgerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a valid email", verr.Fields["email"])
	assert.Equal(t, "must be greater than or equal to 0", verr.Fields["age"])
	mockRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestUpdateUser_StoreFailureIsNotSwallowed(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("FindByID", ctx, int64(1)).Return(existingUser(), nil)
	mockRepo.On("Update", ctx, mock.Anything).Return(nil, errStore)

	_, err := uc.UpdateUser(ctx, UpdateUserRequest{ID: 1, Age: intPtr(40)})

	assert.ErrorIs(t, err, errStore)
}

// ==================== DELETE USER TESTS ====================

func TestDeleteUser_Success(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("ExistsByID", ctx, int64(1)).Return(true, nil)
	mockRepo.On("DeleteByID", ctx, int64(1)).Return(nil)

	err := uc.DeleteUser(ctx, DeleteUserRequest{ID: 1})

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestDeleteUser_NotFound(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("ExistsByID", ctx, int64(999)).Return(false, nil)

	err := uc.DeleteUser(ctx, DeleteUserRequest{ID: 999})

	assert.True(t, pkgerrors.IsNotFound(err))
	mockRepo.AssertNotCalled(t, "DeleteByID", mock.Anything, mock.Anything)
}

func TestDeleteUser_StoreFailureIsNotSwallowed(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("ExistsByID", ctx, int64(1)).Return(false, errStore)

	err := uc.DeleteUser(ctx, DeleteUserRequest{ID: 1})

	assert.ErrorIs(t, err, errStore)
	mockRepo.AssertNotCalled(t, "DeleteByID", mock.Anything, mock.Anything)
}

// ==================== EMAIL / COUNT TESTS ====================

func TestEmailExists(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("ExistsByEmail", ctx, "john@example.com").Return(true, nil)
	mockRepo.On("ExistsByEmail", ctx, "unknown@example.com").Return(false, nil)

	exists, err := uc.EmailExists(ctx, CheckEmailRequest{Email: "john@example.com"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = uc.EmailExists(ctx, CheckEmailRequest{Email: "unknown@example.com"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCountUsers(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("Count", ctx).Return(int64(5), nil)

	assert.Equal(t, int64(5), uc.CountUsers(ctx))
}

func TestCountUsers_StoreFailureReturnsZero(t *testing.T) {
	uc, mockRepo := setupTestUsecase(t)
	ctx := context.Background()

	mockRepo.On("Count", ctx).Return(int64(0), errStore)

	assert.Equal(t, int64(0), uc.CountUsers(ctx))
}

// ==================== PROBE TESTS ====================

func TestProbeFallback(t *testing.T) {
	uc, _ := setupTestUsecase(t)
	ctx := context.Background()

	assert.Equal(t, "Fallback probe - OK. Delay: 0ms", uc.ProbeFallback(ctx, ProbeRequest{}))
	assert.Equal(t, "Fallback probe - SUCCESS. Delay: 5ms", uc.ProbeFallback(ctx, ProbeRequest{Delay: 5 * time.Millisecond, Success: true}))

	msg := uc.ProbeFallback(ctx, ProbeRequest{Error: true})
	assert.Contains(t, msg, "Fallback: service is temporarily unavailable")
	assert.Contains(t, msg, ErrProbeFailure.Error())
}

func TestProbeFallback_CancelledContext(t *testing.T) {
	uc, _ := setupTestUsecase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := uc.ProbeFallback(ctx, ProbeRequest{Delay: time.Second})

	assert.Contains(t, msg, context.Canceled.Error())
}

func TestToUserResponse(t *testing.T) {
	u := &domain.User{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: fixedNow}

	assert.Equal(t, UserResponse{ID: 1, Name: "John Doe", Email: "john@example.com", Age: 30, CreatedAt: fixedNow}, ToUserResponse(u))
}

func TestDefaultClock_MicrosecondUTC(t *testing.T) {
	uc := New(new(MockRepository), zaptest.NewLogger(t))

	now := uc.now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Microsecond))
}

func TestServiceLogsCarryRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mockRepo := new(MockRepository)
	uc := New(mockRepo, zap.New(core))

	ctx, id := logger.ContextWithRequestID(context.Background(), "req-123")
	require.Equal(t, "req-123", id)

	mockRepo.On("ExistsByID", ctx, int64(9)).Return(false, nil)
	mockRepo.On("ExistsByEmail", ctx, "john@example.com").Return(true, nil)

	assert.True(t, pkgerrors.IsNotFound(uc.DeleteUser(ctx, DeleteUserRequest{ID: 9})))
	_, err := uc.CreateUser(ctx, CreateUserRequest{Name: "John", Email: "john@example.com", Age: 1})
	assert.True(t, pkgerrors.IsAlreadyExists(err))

	require.Positive(t, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "req-123", entry.ContextMap()["request_id"], entry.Message)
	}
}
