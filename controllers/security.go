package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Krish-Depani/showcase-auth/middleware"
	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/utils"
	"github.com/Krish-Depani/showcase-auth/validators"
	"github.com/gin-gonic/gin"
)

type SecurityController struct {
	base
	auth     *services.AuthService
	sessions *services.SessionManager
	audit    *services.AuditLogger
}

func NewSecurityController(auth *services.AuthService, sessions *services.SessionManager, audit *services.AuditLogger, opts Options) *SecurityController {
	return &SecurityController{
		base:     newBase(opts),
		auth:     auth,
		sessions: sessions,
		audit:    audit,
	}
}

type SessionResponse struct {
	ID             uint      `json:"id"`
	IPAddress      string    `json:"ipAddress"`
	UserAgent      string    `json:"userAgent"`
	Location       string    `json:"location,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastUsedAt     time.Time `json:"lastUsedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CurrentSession bool      `json:"currentSession"`
}

func (sc *SecurityController) GetActiveSessions(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sessions, err := sc.sessions.GetUserActiveSessions(c.Request.Context(), userID)
	if err != nil {
		sc.respondError(c, err)
		return
	}

	var currentHash string
	if token, _ := c.Cookie(refreshCookie); token != "" {
		currentHash = services.HashToken(token)
	}

	sessionResponses := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		sessionResponses = append(sessionResponses, SessionResponse{
			ID:             session.ID,
			IPAddress:      session.IPAddress,
			UserAgent:      session.UserAgent,
			Location:       session.Location,
			CreatedAt:      session.CreatedAt,
			LastUsedAt:     session.LastUsedAt,
			ExpiresAt:      session.ExpiresAt,
			CurrentSession: session.RefreshTokenHash == currentHash,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessionResponses,
		"total":    len(sessionResponses),
	})
}

func (sc *SecurityController) RevokeSession(c *gin.Context) {
	req, ok := validators.BindJSON[validators.RevokeSessionRequest](c)
	if !ok {
		return
	}
	userID, _ := middleware.CurrentUserID(c)

	if err := sc.sessions.RevokeOwnSession(c.Request.Context(), userID, req.RefreshToken); err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}

func (sc *SecurityController) RevokeSessionByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}
	userID, _ := middleware.CurrentUserID(c)

	if err := sc.sessions.RevokeUserSession(c.Request.Context(), userID, uint(id)); err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}

// RevokeAllSessions signs the caller out everywhere, including here.
func (sc *SecurityController) RevokeAllSessions(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	n, err := sc.sessions.RevokeAllUserSessions(c.Request.Context(), userID)
	if err != nil {
		sc.respondError(c, err)
		return
	}

	sc.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "All sessions revoked",
		"revoked": n,
	})
}

func (sc *SecurityController) GetActivity(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := sc.audit.GetUserActivity(c.Request.Context(), userID, limit)
	if err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": logs})
}

func (sc *SecurityController) GetSecurityEvents(c *gin.Context) {
	q, ok := validators.BindSecurityEventsQuery(c)
	if !ok {
		return
	}

	filter := services.SecurityEventFilter{
		Action:    models.AuditAction(q.Action),
		IPAddress: q.IPAddress,
		Limit:     q.Limit,
	}
	if q.UserID != 0 {
		filter.UserID = &q.UserID
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() {
		filter.StartDate = &q.StartDate
		filter.EndDate = &q.EndDate
	}

	logs, err := sc.audit.GetSecurityEvents(c.Request.Context(), filter)
	if err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": logs})
}

func (sc *SecurityController) UnlockAccount(c *gin.Context) {
	req, ok := validators.BindJSON[validators.UnlockRequest](c)
	if !ok {
		return
	}
	actorID, _ := middleware.CurrentUserID(c)

	if err := sc.auth.UnlockAccount(c.Request.Context(), actorID, req.Username, utils.GetRequestInfo(c)); err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account unlocked"})
}

func (sc *SecurityController) CleanupSessions(c *gin.Context) {
	n, err := sc.sessions.CleanupExpiredSessions(c.Request.Context())
	if err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
