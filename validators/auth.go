package validators

import (
	"errors"
	"net/http"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRole(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
		return models.AuditAction(fl.Field().String()).Valid()
	})
}

type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

type ValidationResponse struct {
	Errors []ValidationError `json:"errors"`
}

func Validate(data interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(data)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			for _, e := range errs {
				validationErrors = append(validationErrors, ValidationError{
					Field: e.Field(),
					Tag:   e.Tag(),
					Value: e.Param(),
				})
			}
		}
	}

	return validationErrors
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

type RevokeSessionRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type PasswordResetRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
}

type PasswordResetConfirmRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role" validate:"required,role"`
}

type UnlockRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
}

// SecurityEventsQuery is bound from the query string. The date range is only
// applied when both bounds are given.
type SecurityEventsQuery struct {
	Action    string    `form:"action" validate:"omitempty,audit_action"`
	UserID    uint      `form:"userId" validate:"omitempty,min=1"`
	IPAddress string    `form:"ipAddress" validate:"omitempty,ip"`
	StartDate time.Time `form:"startDate" time_format:"2006-01-02T15:04:05Z07:00"`
	EndDate   time.Time `form:"endDate" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int       `form:"limit" validate:"omitempty,min=1,max=500"`
}

type RequestBody interface {
	LoginRequest | RefreshRequest | ChangePasswordRequest | RevokeSessionRequest |
		PasswordResetRequest | PasswordResetConfirmRequest | CreateUserRequest | UnlockRequest
}

// BindJSON decodes and validates the request body, writing a 400 and
// returning false when either step fails.
func BindJSON[B RequestBody](c *gin.Context) (*B, bool) {
	var req B
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request payload",
		})
		return nil, false
	}

	if errs := Validate(req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{
			Errors: errs,
		})
		return nil, false
	}

	return &req, true
}

func BindSecurityEventsQuery(c *gin.Context) (*SecurityEventsQuery, bool) {
	var q SecurityEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return nil, false
	}

	if errs := Validate(q); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{
			Errors: errs,
		})
		return nil, false
	}

	return &q, true
}
