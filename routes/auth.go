package routes

import (
	"github.com/Krish-Depani/showcase-auth/middleware"
	"github.com/gin-gonic/gin"
)

func setupAuthRoutes(api *gin.RouterGroup, deps Deps, authenticate gin.HandlerFunc) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", middleware.RateLimit(deps.LoginLimiter, deps.Log), deps.Auth.Login)
		auth.POST("/refresh", authenticate, deps.Auth.Refresh)
		auth.POST("/logout", authenticate, deps.Auth.Logout)
		auth.GET("/me", authenticate, deps.Auth.GetCurrentUser)
	}

	resetLimit := middleware.RateLimit(deps.ResetLimiter, deps.Log)

	password := api.Group("/password")
	{
		password.POST("/change", authenticate, deps.Password.ChangePassword)
		password.POST("/reset-request", resetLimit, deps.Password.RequestReset)
		password.POST("/reset", resetLimit, deps.Password.ResetPassword)
	}
}
