package controllers

import (
	"net/http"

	"github.com/Krish-Depani/showcase-auth/middleware"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/utils"
	"github.com/Krish-Depani/showcase-auth/validators"
	"github.com/gin-gonic/gin"
)

type PasswordController struct {
	base
	auth *services.AuthService
}

func NewPasswordController(auth *services.AuthService, opts Options) *PasswordController {
	return &PasswordController{
		base: newBase(opts),
		auth: auth,
	}
}

func (pc *PasswordController) ChangePassword(c *gin.Context) {
	req, ok := validators.BindJSON[validators.ChangePasswordRequest](c)
	if !ok {
		return
	}
	userID, _ := middleware.CurrentUserID(c)

	err := pc.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword, utils.GetRequestInfo(c))
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed, please sign in again"})
}

// RequestReset answers the same way whether or not the username exists.
func (pc *PasswordController) RequestReset(c *gin.Context) {
	req, ok := validators.BindJSON[validators.PasswordResetRequest](c)
	if !ok {
		return
	}

	if err := pc.auth.RequestPasswordReset(c.Request.Context(), req.Username, utils.GetRequestInfo(c)); err != nil {
		pc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset code has been sent"})
}

func (pc *PasswordController) ResetPassword(c *gin.Context) {
	req, ok := validators.BindJSON[validators.PasswordResetConfirmRequest](c)
	if !ok {
		return
	}

	err := pc.auth.ResetPassword(c.Request.Context(), req.Username, req.Code, req.NewPassword, utils.GetRequestInfo(c))
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}
