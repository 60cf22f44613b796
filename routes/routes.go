package routes

import (
	"log/slog"
	"net/http"

	"github.com/Krish-Depani/showcase-auth/controllers"
	"github.com/Krish-Depani/showcase-auth/middleware"
	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/Krish-Depani/showcase-auth/ratelimit"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Log          *slog.Logger
	Tokens       *services.TokenService
	LoginLimiter ratelimit.Limiter
	ResetLimiter ratelimit.Limiter

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means the peer address is the client.
	TrustedProxies []string

	Auth     *controllers.AuthController
	Users    *controllers.UserController
	Password *controllers.PasswordController
	Security *controllers.SecurityController
}

// NewRouter returns an engine with logging and recovery installed and every
// route mounted under prefix.
func NewRouter(prefix string, deps Deps) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		deps.Log.Error("invalid trusted proxies, ignoring forwarding headers", "error", err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(middleware.RequestLogger(deps.Log), middleware.Recovery(deps.Log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	SetupRoutes(router.Group(prefix), deps)
	return router
}

func SetupRoutes(api *gin.RouterGroup, deps Deps) {
	authenticate := middleware.Authenticate(deps.Tokens)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	setupAuthRoutes(api, deps, authenticate)

	security := api.Group("/security", authenticate)
	{
		security.GET("/sessions", deps.Security.GetActiveSessions)
		security.POST("/sessions/revoke", deps.Security.RevokeSession)
		security.POST("/sessions/revoke-all", deps.Security.RevokeAllSessions)
		security.DELETE("/sessions/:id", deps.Security.RevokeSessionByID)
		security.GET("/activity", deps.Security.GetActivity)

		security.GET("/events", adminOnly, deps.Security.GetSecurityEvents)
		security.POST("/unlock", adminOnly, deps.Security.UnlockAccount)
		security.POST("/sessions/cleanup", adminOnly, deps.Security.CleanupSessions)
	}

	users := api.Group("/users", authenticate, adminOnly)
	{
		users.GET("", deps.Users.ListUsers)
		users.POST("", deps.Users.CreateUser)
		users.DELETE("/:id", deps.Users.DeleteUser)
	}
}
