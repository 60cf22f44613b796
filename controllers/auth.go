package controllers

import (
	"net/http"
	"time"

	"github.com/Krish-Depani/showcase-auth/middleware"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/utils"
	"github.com/Krish-Depani/showcase-auth/validators"
	"github.com/gin-gonic/gin"
)

type AuthController struct {
	base
	auth       *services.AuthService
	users      *services.UserService
	refreshTTL time.Duration
}

func NewAuthController(auth *services.AuthService, users *services.UserService, refreshTTL time.Duration, opts Options) *AuthController {
	return &AuthController{
		base:       newBase(opts),
		auth:       auth,
		users:      users,
		refreshTTL: refreshTTL,
	}
}

// Login checks the lockout, verifies credentials, then issues an access
// token in the body and a refresh token as an HttpOnly cookie.
func (ac *AuthController) Login(c *gin.Context) {
	req, ok := validators.BindJSON[validators.LoginRequest](c)
	if !ok {
		return
	}

	res, err := ac.auth.Login(c.Request.Context(), req.Username, req.Password, utils.GetRequestInfo(c))
	if err != nil {
		ac.respondError(c, err)
		return
	}

	ac.setRefreshCookie(c, res.RefreshToken, int(ac.refreshTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
		"user":        res.User,
	})
}

// Refresh reads the refresh token from the cookie, falling back to the body.
func (ac *AuthController) Refresh(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	token, _ := c.Cookie(refreshCookie)
	if token == "" {
		req, ok := validators.BindJSON[validators.RefreshRequest](c)
		if !ok {
			return
		}
		token = req.RefreshToken
	}

	accessToken, err := ac.auth.Refresh(c.Request.Context(), userID, token)
	if err != nil {
		ac.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

// Logout always clears the cookie, even when the session is already gone.
func (ac *AuthController) Logout(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	token, _ := c.Cookie(refreshCookie)

	ac.auth.Logout(c.Request.Context(), userID, token, utils.GetRequestInfo(c))

	ac.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (ac *AuthController) GetCurrentUser(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	user, err := ac.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		ac.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.Public()})
}
