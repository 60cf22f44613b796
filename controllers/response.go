package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Options carries what every controller needs besides its services.
type Options struct {
	Log *slog.Logger
	// ExposeErrors adds internal error detail to 500 responses. Off in
	// production.
	ExposeErrors bool
	CookieSecure bool
}

type base struct {
	log          *slog.Logger
	exposeErrors bool
	cookieSecure bool
}

func newBase(opts Options) base {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return base{log: log, exposeErrors: opts.ExposeErrors, cookieSecure: opts.CookieSecure}
}

const refreshCookie = "refreshToken"

func (b base) setRefreshCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, token, maxAge, "/", "", b.cookieSecure, true)
}

func (b base) clearRefreshCookie(c *gin.Context) {
	b.setRefreshCookie(c, "", -1)
}

// respondError maps service errors onto HTTP statuses. Anything unrecognized
// is logged, reported and answered with 500.
func (b base) respondError(c *gin.Context, err error) {
	var locked *services.AccountLockedError
	var failed *services.LoginFailedError

	switch {
	case errors.As(err, &locked):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many failed login attempts",
			"lockedUntil": locked.Until.UTC(),
		})
	case errors.As(err, &failed):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "Invalid credentials",
			"remainingAttempts": failed.RemainingAttempts,
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, services.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, services.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
	case errors.Is(err, services.ErrLastAdmin):
		c.JSON(http.StatusConflict, gin.H{"error": "At least one admin must remain"})
	case errors.Is(err, services.ErrInvalidResetCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset code"})
	case errors.Is(err, services.ErrSamePassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must differ from the current one"})
	default:
		b.log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		sentry.CaptureException(err)

		body := gin.H{"error": "Internal server error"}
		if b.exposeErrors {
			body["detail"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}
