package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/Krish-Depani/showcase-auth/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit caps requests per client IP. A limiter backend failure lets the
// request through; the per-username lockout still applies behind it.
func RateLimit(limiter ratelimit.Limiter, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Error("rate limiter unavailable", "ip", ip, "error", err)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests, please try again later",
				"retryAfter": seconds,
			})
			return
		}

		c.Next()
	}
}
