package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/testutil"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(b base, err error) (int, map[string]any) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	b.respondError(c, err)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestRespondErrorStatuses(t *testing.T) {
	b := newBase(Options{Log: testutil.NewLogger()})

	tests := []struct {
		err  error
		want int
	}{
		{err: &services.AccountLockedError{Until: time.Now()}, want: http.StatusTooManyRequests},
		{err: &services.LoginFailedError{RemainingAttempts: 2}, want: http.StatusUnauthorized},
		{err: services.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{err: fmt.Errorf("refresh: %w", services.ErrInvalidToken), want: http.StatusUnauthorized},
		{err: services.ErrSessionNotFound, want: http.StatusNotFound},
		{err: services.ErrUserNotFound, want: http.StatusNotFound},
		{err: services.ErrUsernameTaken, want: http.StatusConflict},
		{err: services.ErrLastAdmin, want: http.StatusConflict},
		{err: services.ErrInvalidResetCode, want: http.StatusBadRequest},
		{err: services.ErrSamePassword, want: http.StatusBadRequest},
		{err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := respond(b, tt.err); got != tt.want {
			t.Errorf("%v: status %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRespondErrorBodies(t *testing.T) {
	b := newBase(Options{Log: testutil.NewLogger()})

	_, body := respond(b, &services.LoginFailedError{RemainingAttempts: 3})
	if body["remainingAttempts"] != float64(3) {
		t.Errorf("login failure body = %v", body)
	}

	until := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	_, body = respond(b, &services.AccountLockedError{Until: until})
	if body["lockedUntil"] != "2024-03-01T09:15:00Z" {
		t.Errorf("lockout body = %v", body)
	}

	_, body = respond(b, errors.New("pq: relation missing"))
	if _, ok := body["detail"]; ok {
		t.Error("detail exposed in production mode")
	}

	dev := newBase(Options{Log: testutil.NewLogger(), ExposeErrors: true})
	_, body = respond(dev, errors.New("pq: relation missing"))
	if body["detail"] != "pq: relation missing" {
		t.Errorf("development body = %v", body)
	}
}
