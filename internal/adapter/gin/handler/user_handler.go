package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"user-service/internal/usecase/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/logger"
	"user-service/pkg/security"
)

// ProbeStatusMessage is returned by the fallback probe status endpoint.
const ProbeStatusMessage = "Fallback endpoints are available. Use /users/test/fallback with parameters: delay, error, success"

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc    user.UserUsecase
	log   *zap.Logger
	links LinkBuilder
}

// NewUserHandler creates a new UserHandler instance. baseURL prefixes every
// hypermedia link; leave it empty for root-relative links.
func NewUserHandler(uc user.UserUsecase, log *zap.Logger, baseURL string) *UserHandler {
	return &UserHandler{
		uc:    uc,
		log:   log,
		links: NewLinkBuilder(baseURL),
	}
}

// CreateUserRequest represents the HTTP request body for creating a user
type CreateUserRequest struct {
	Name  string `json:"name" binding:"required,notblank,max=100"`
	Email string `json:"email" binding:"required,email"`
	Age   int    `json:"age" binding:"min=0"`
}

// UpdateUserRequest represents the HTTP request body for a partial update.
// Absent fields are left unchanged.
type UpdateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,notblank,max=100"`
	Email *string `json:"email" binding:"omitempty,email"`
	Age   *int    `json:"age" binding:"omitempty,min=0"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  int               `json:"status"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Path    string            `json:"path"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, bindingError(err))
		return
	}

	log := logger.WithContext(c.Request.Context(), h.log)
	log.Info("Gin CreateUser request", zap.String("name", req.Name), zap.String("email", req.Email))

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Location", h.links.user(resp.ID))
	c.JSON(http.StatusCreated, h.links.User(*resp))
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.links.User(*resp))
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	users := h.uc.ListUsers(c.Request.Context())
	c.JSON(http.StatusOK, h.links.Collection(users))
}

// UpdateUser handles PUT /users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, bindingError(err))
		return
	}

	logger.WithContext(c.Request.Context(), h.log).Info("Gin UpdateUser request", zap.Int64("id", id))

	resp, err := h.uc.UpdateUser(c.Request.Context(), user.UpdateUserRequest{
		ID:    id,
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.links.User(*resp))
}

// DeleteUser handles DELETE /users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	logger.WithContext(c.Request.Context(), h.log).Info("Gin DeleteUser request", zap.Int64("id", id))

	if err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: id}); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CountUsers handles GET /users/count
func (h *UserHandler) CountUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.uc.CountUsers(c.Request.Context()))
}

// CheckEmail handles GET /users/check-email/:email
func (h *UserHandler) CheckEmail(c *gin.Context) {
	email, err := security.ValidateEmailParam(c.Param("email"))
	if err != nil {
		h.handleError(c, pkgerrors.NewFieldsValidationError(map[string]string{"email": err.Error()}))
		return
	}

	exists, err := h.uc.EmailExists(c.Request.Context(), user.CheckEmailRequest{Email: email})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.links.EmailCheck(email, exists))
}

// ProbeFallback handles GET /users/test/fallback?delay=&error=&success=
func (h *UserHandler) ProbeFallback(c *gin.Context) {
	fields := make(map[string]string)

	delayMS, err := strconv.ParseInt(c.DefaultQuery("delay", "0"), 10, 64)
	if err != nil || delayMS < 0 {
		fields["delay"] = "must be a non-negative number of milliseconds"
	}
	fail, err := strconv.ParseBool(c.DefaultQuery("error", "false"))
	if err != nil {
		fields["error"] = "must be a boolean"
	}
	success, err := strconv.ParseBool(c.DefaultQuery("success", "false"))
	if err != nil {
		fields["success"] = "must be a boolean"
	}
	if len(fields) > 0 {
		h.handleError(c, pkgerrors.NewFieldsValidationError(fields))
		return
	}

	msg := h.uc.ProbeFallback(c.Request.Context(), user.ProbeRequest{
		Delay:   time.Duration(delayMS) * time.Millisecond,
		Error:   fail,
		Success: success,
	})
	c.String(http.StatusOK, msg)
}

// ProbeStatus handles GET /users/test/fallback/status
func (h *UserHandler) ProbeStatus(c *gin.Context) {
	c.String(http.StatusOK, ProbeStatusMessage)
}

// pathID parses the :id path parameter, writing a 400 response on failure.
func (h *UserHandler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.handleError(c, pkgerrors.NewFieldsValidationError(map[string]string{"id": "must be a number"}))
		return 0, false
	}
	return id, true
}

// bindingError converts a gin binding failure into a ValidationError.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return pkgerrors.NewFieldsValidationError(security.FieldMessages(verrs))
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return pkgerrors.NewFieldsValidationError(map[string]string{typeErr.Field: "has an invalid type"})
	}

	if errors.Is(err, io.EOF) {
		return pkgerrors.NewValidationError("", "request body is required")
	}
	return pkgerrors.NewValidationError("", "malformed JSON request body")
}

// handleError converts usecase errors to appropriate HTTP responses
func (h *UserHandler) handleError(c *gin.Context, err error) {
	status := pkgerrors.StatusOf(err)
	log := logger.WithContext(c.Request.Context(), h.log)

	resp := ErrorResponse{
		Status:  status,
		Message: err.Error(),
		Path:    c.Request.URL.Path,
	}

	var verr *pkgerrors.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Error = "Validation Failed"
		resp.Message = verr.Error()
		resp.Fields = verr.Fields
	case status == http.StatusNotFound:
		resp.Error = "User Not Found"
	case status == http.StatusConflict:
		resp.Error = "Email Already Exists"
	default:
		resp.Error = "Internal Server Error"
		resp.Message = "An unexpected error occurred"
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", resp.Path), zap.Error(err))
	} else {
		log.Warn("request rejected", zap.String("path", resp.Path), zap.Int("status", status), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, resp)
}
