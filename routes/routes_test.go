package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Krish-Depani/showcase-auth/controllers"
	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/Krish-Depani/showcase-auth/ratelimit"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/testutil"
	"github.com/Krish-Depani/showcase-auth/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
	clock  *testutil.Clock
	users  *services.UserService
	audit  *services.AuditLogger
}

func newServer(t *testing.T, loginLimit int, options ...func(*Deps)) *server {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(epoch)
	log := testutil.NewLogger()

	users := services.NewUserService(db).WithHashCost(bcrypt.MinCost)
	tokens := services.NewTokenService(testSecret, 24*time.Hour, 7*24*time.Hour).WithClock(clock.Now)
	sessions := services.NewSessionManager(db, 7*24*time.Hour).WithClock(clock.Now)
	tracker := services.NewLoginAttemptTracker(services.NewMemoryAttemptStore(), services.DefaultLockoutPolicy()).WithClock(clock.Now)
	resets := services.NewPasswordResetService(db, users, services.LogNotifier{Log: log}, 20*time.Minute).WithClock(clock.Now)
	audit := services.NewAuditLogger(db, log, services.AuditOptions{}).WithClock(clock.Now)

	auth := services.NewAuthService(services.AuthDeps{
		DB:       db,
		Users:    users,
		Tracker:  tracker,
		Tokens:   tokens,
		Sessions: sessions,
		Resets:   resets,
		Audit:    audit,
		Locator:  utils.NewGeoLocator(false),
		Log:      log,
	})

	opts := controllers.Options{Log: log, ExposeErrors: true}
	deps := Deps{
		Log:          log,
		Tokens:       tokens,
		LoginLimiter: ratelimit.NewLocalLimiter(loginLimit, 15*time.Minute).WithClock(clock.Now),
		ResetLimiter: ratelimit.NewLocalLimiter(loginLimit, 15*time.Minute).WithClock(clock.Now),
		Auth:         controllers.NewAuthController(auth, users, 7*24*time.Hour, opts),
		Users:        controllers.NewUserController(users, opts),
		Password:     controllers.NewPasswordController(auth, opts),
		Security:     controllers.NewSecurityController(auth, sessions, audit, opts),
	}
	for _, option := range options {
		option(&deps)
	}
	router := NewRouter("/api", deps)

	return &server{t: t, router: router, db: db, clock: clock, users: users, audit: audit}
}

func (s *server) createUser(username, password string, role models.Role) *models.User {
	s.t.Helper()
	u, err := s.users.CreateUser(context.Background(), username, password, role)
	if err != nil {
		s.t.Fatal(err)
	}
	return u
}

type call struct {
	method string
	path   string
	body   any
	token  string
	cookie *http.Cookie
	header map[string]string
}

func (s *server) do(c call) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			s.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:40000"
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func refreshCookieOf(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

type session struct {
	access string
	cookie *http.Cookie
}

func (s *server) login(username, password string) session {
	s.t.Helper()
	w, body := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"username": username, "password": password,
	}})
	if w.Code != http.StatusOK {
		s.t.Fatalf("login %s: %d %v", username, w.Code, body)
	}
	return session{access: body["accessToken"].(string), cookie: refreshCookieOf(w)}
}

func TestLoginLockoutScenario(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)

	wrong := map[string]string{"username": "alice", "password": "nope"}
	for want := 4; want >= 0; want-- {
		w, body := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: wrong})
		if w.Code != http.StatusUnauthorized || body["remainingAttempts"] != float64(want) {
			t.Fatalf("attempt with %d left: %d %v", want, w.Code, body)
		}
	}

	right := map[string]string{"username": "alice", "password": "Secret123!"}
	w, body := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: right})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: %d %v", w.Code, body)
	}
	lockedUntil, err := time.Parse(time.RFC3339, body["lockedUntil"].(string))
	if err != nil || !lockedUntil.Equal(epoch.Add(15*time.Minute)) {
		t.Errorf("lockedUntil = %v (%v)", body["lockedUntil"], err)
	}

	s.clock.Advance(15*time.Minute + time.Second)
	w, body = s.do(call{method: http.MethodPost, path: "/api/auth/login", body: right})
	if w.Code != http.StatusOK {
		t.Fatalf("after lockout: %d %v", w.Code, body)
	}
	if body["accessToken"] == "" {
		t.Error("missing access token")
	}
	user := body["user"].(map[string]any)
	if user["username"] != "alice" || user["role"] != "USER" {
		t.Errorf("user = %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Error("password hash in response")
	}

	cookie := refreshCookieOf(w)
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/" {
		t.Fatalf("refresh cookie = %+v", cookie)
	}
	if cookie.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("cookie max-age = %d", cookie.MaxAge)
	}
}

func TestLoginUnknownUserMatchesWrongPassword(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)

	w1, b1 := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "alice", "password": "nope"}})
	w2, b2 := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "ghost", "password": "nope"}})

	if w1.Code != w2.Code || b1["error"] != b2["error"] || b1["remainingAttempts"] != b2["remainingAttempts"] {
		t.Errorf("responses differ: %v vs %v", b1, b2)
	}

	w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "x"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid input: %d", w.Code)
	}
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	s := newServer(t, 5)
	body := map[string]string{"username": "ghost", "password": "nope"}

	for i := 0; i < 5; i++ {
		if w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: body}); w.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: %d", i+1, w.Code)
		}
	}
	w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "other", "password": "nope"}})
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("6th request from same IP: %d", w.Code)
	}
}

func TestLoginRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	s := newServer(t, 5)
	body := map[string]string{"username": "ghost", "password": "nope"}

	limited := 0
	for i := 0; i < 20; i++ {
		w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: body, header: map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i+1),
		}})
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 15 {
		t.Errorf("rotating forwarding headers: %d of 20 limited, want 15", limited)
	}

	var entries []models.AuditLog
	if err := s.db.Where("ip_address <> ?", "203.0.113.7").Find(&entries).Error; err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d audit rows carry a forwarded address", len(entries))
	}
}

func TestLoginRateLimitBehindTrustedProxy(t *testing.T) {
	s := newServer(t, 5, func(d *Deps) { d.TrustedProxies = []string{"203.0.113.0/24"} })

	for i := 0; i < 10; i++ {
		body := map[string]string{"username": fmt.Sprintf("ghost%d", i), "password": "nope"}
		w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: body, header: map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
		}})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("client %d behind trusted proxy: %d", i+1, w.Code)
		}
	}
}

func TestPasswordResetRateLimitedPerIP(t *testing.T) {
	s := newServer(t, 5)
	s.createUser("alice", "Secret123!", models.RoleUser)

	for i := 0; i < 5; i++ {
		if w, _ := s.do(call{method: http.MethodPost, path: "/api/password/reset-request", body: map[string]string{"username": "alice"}}); w.Code != http.StatusOK {
			t.Fatalf("reset-request %d: %d", i+1, w.Code)
		}
	}
	w, _ := s.do(call{method: http.MethodPost, path: "/api/password/reset", body: map[string]string{
		"username": "alice", "code": "123456", "newPassword": "Fresh123!x",
	}})
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("6th reset call from same IP: %d", w.Code)
	}

	if w, _ := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "ghost", "password": "nope"}}); w.Code != http.StatusUnauthorized {
		t.Errorf("login shares the reset budget: %d", w.Code)
	}
}

func TestAuditFailureDoesNotChangeResponses(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)

	if err := s.db.Migrator().DropTable(&models.AuditLog{}); err != nil {
		t.Fatal(err)
	}

	sess := s.login("alice", "Secret123!")

	w, body := s.do(call{method: http.MethodPost, path: "/api/password/change", token: sess.access, body: map[string]string{
		"currentPassword": "Secret123!", "newPassword": "Fresh123!x",
	}})
	if w.Code != http.StatusOK {
		t.Errorf("password change: %d %v", w.Code, body)
	}

	w, body = s.do(call{method: http.MethodPost, path: "/api/auth/logout", token: sess.access, cookie: sess.cookie})
	if w.Code != http.StatusOK || body["message"] != "Logged out successfully" {
		t.Errorf("logout: %d %v", w.Code, body)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)
	s.createUser("bob", "Secret123!", models.RoleUser)

	alice := s.login("alice", "Secret123!")
	bob := s.login("bob", "Secret123!")

	w, body := s.do(call{method: http.MethodPost, path: "/api/auth/refresh", token: alice.access, cookie: alice.cookie})
	if w.Code != http.StatusOK || body["accessToken"] == "" {
		t.Fatalf("refresh via cookie: %d %v", w.Code, body)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", token: alice.access, body: map[string]string{
		"refreshToken": alice.cookie.Value,
	}})
	if w.Code != http.StatusOK {
		t.Errorf("refresh via body: %d", w.Code)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", token: bob.access, cookie: alice.cookie})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh with someone else's token: %d", w.Code)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", cookie: alice.cookie})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh without access token: %d", w.Code)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/auth/logout", token: alice.access, cookie: alice.cookie})
	if w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	if c := refreshCookieOf(w); c == nil || c.MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", c)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/auth/refresh", token: alice.access, cookie: alice.cookie})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: %d", w.Code)
	}
}

func TestSessionsEndpoints(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)

	first := s.login("alice", "Secret123!")
	s.clock.Advance(time.Minute)
	second := s.login("alice", "Secret123!")

	w, body := s.do(call{method: http.MethodGet, path: "/api/security/sessions", token: second.access, cookie: second.cookie})
	if w.Code != http.StatusOK || body["total"] != float64(2) {
		t.Fatalf("list: %d %v", w.Code, body)
	}
	list := body["sessions"].([]any)
	if !list[0].(map[string]any)["currentSession"].(bool) || list[1].(map[string]any)["currentSession"].(bool) {
		t.Errorf("currentSession flags wrong: %v", list)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/security/sessions/revoke", token: second.access, body: map[string]string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("revoke without token: %d", w.Code)
	}

	w, _ = s.do(call{method: http.MethodPost, path: "/api/security/sessions/revoke", token: second.access, body: map[string]string{
		"refreshToken": first.cookie.Value,
	}})
	if w.Code != http.StatusOK {
		t.Errorf("revoke: %d", w.Code)
	}

	w, body = s.do(call{method: http.MethodPost, path: "/api/security/sessions/revoke-all", token: second.access})
	if w.Code != http.StatusOK || body["revoked"] != float64(1) {
		t.Errorf("revoke-all: %d %v", w.Code, body)
	}

	w, body = s.do(call{method: http.MethodGet, path: "/api/security/sessions", token: second.access})
	if body["total"] != float64(0) {
		t.Errorf("sessions after revoke-all: %v", body)
	}

	w, body = s.do(call{method: http.MethodGet, path: "/api/security/activity", token: second.access})
	if w.Code != http.StatusOK || len(body["events"].([]any)) != 2 {
		t.Errorf("activity: %d %v", w.Code, body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("root", "Secret123!", models.RoleAdmin)
	s.createUser("alice", "Secret123!", models.RoleUser)

	admin := s.login("root", "Secret123!")
	alice := s.login("alice", "Secret123!")

	if w, _ := s.do(call{method: http.MethodGet, path: "/api/security/events", token: alice.access}); w.Code != http.StatusForbidden {
		t.Errorf("non-admin events: %d", w.Code)
	}
	if w, _ := s.do(call{method: http.MethodGet, path: "/api/security/events"}); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous events: %d", w.Code)
	}

	w, body := s.do(call{method: http.MethodGet, path: "/api/security/events?action=LOGIN&limit=10", token: admin.access})
	if w.Code != http.StatusOK || len(body["events"].([]any)) != 2 {
		t.Errorf("events: %d %v", w.Code, body)
	}
	if w, _ := s.do(call{method: http.MethodGet, path: "/api/security/events?action=DANCE", token: admin.access}); w.Code != http.StatusBadRequest {
		t.Errorf("bad action filter: %d", w.Code)
	}

	w, body = s.do(call{method: http.MethodPost, path: "/api/users", token: admin.access, body: map[string]string{
		"username": "ivan", "password": "Secret123!", "role": "interviewer",
	}})
	if w.Code != http.StatusCreated || body["user"].(map[string]any)["role"] != "INTERVIEWER" {
		t.Fatalf("create user: %d %v", w.Code, body)
	}
	if w, _ := s.do(call{method: http.MethodPost, path: "/api/users", token: admin.access, body: map[string]string{
		"username": "ivan", "password": "Secret123!", "role": "USER",
	}}); w.Code != http.StatusConflict {
		t.Errorf("duplicate user: %d", w.Code)
	}

	w, body = s.do(call{method: http.MethodGet, path: "/api/users", token: admin.access})
	if w.Code != http.StatusOK || len(body["users"].([]any)) != 3 {
		t.Errorf("list users: %d %v", w.Code, body)
	}

	w, body = s.do(call{method: http.MethodGet, path: "/api/auth/me", token: admin.access})
	rootID := body["user"].(map[string]any)["id"].(float64)
	if w, _ := s.do(call{method: http.MethodDelete, path: "/api/users/" + jsonNumber(rootID), token: admin.access}); w.Code != http.StatusConflict {
		t.Errorf("delete last admin: %d", w.Code)
	}

	for i := 0; i < 5; i++ {
		s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"username": "alice", "password": "nope"}})
	}
	if w, _ := s.do(call{method: http.MethodPost, path: "/api/security/unlock", token: admin.access, body: map[string]string{"username": "alice"}}); w.Code != http.StatusOK {
		t.Errorf("unlock: %d", w.Code)
	}
	s.login("alice", "Secret123!")

	s.clock.Advance(8 * 24 * time.Hour)
	// Access tokens are expired by now; mint a fresh one.
	admin = s.login("root", "Secret123!")
	w, body = s.do(call{method: http.MethodPost, path: "/api/security/sessions/cleanup", token: admin.access})
	if w.Code != http.StatusOK || body["deleted"].(float64) < 3 {
		t.Errorf("cleanup: %d %v", w.Code, body)
	}
}

func TestPasswordReset(t *testing.T) {
	s := newServer(t, 100)
	s.createUser("alice", "Secret123!", models.RoleUser)

	w1, b1 := s.do(call{method: http.MethodPost, path: "/api/password/reset-request", body: map[string]string{"username": "alice"}})
	w2, b2 := s.do(call{method: http.MethodPost, path: "/api/password/reset-request", body: map[string]string{"username": "ghost"}})
	if w1.Code != http.StatusOK || w2.Code != http.StatusOK || b1["message"] != b2["message"] {
		t.Errorf("reset-request responses differ: %v / %v", b1, b2)
	}

	w, _ := s.do(call{method: http.MethodPost, path: "/api/password/reset", body: map[string]string{
		"username": "alice", "code": "12345", "newPassword": "Fresh123!",
	}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed code: %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, 100)
	if w, _ := s.do(call{method: http.MethodGet, path: "/health"}); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(int64(f))
	return string(b)
}
