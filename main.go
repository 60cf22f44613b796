package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Krish-Depani/showcase-auth/config"
	"github.com/Krish-Depani/showcase-auth/controllers"
	"github.com/Krish-Depani/showcase-auth/database"
	"github.com/Krish-Depani/showcase-auth/ratelimit"
	"github.com/Krish-Depani/showcase-auth/routes"
	"github.com/Krish-Depani/showcase-auth/services"
	"github.com/Krish-Depani/showcase-auth/utils"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type application struct {
	env      *config.Env
	log      *slog.Logger
	db       *gorm.DB
	redis    *database.RedisClient
	users    *services.UserService
	sessions *services.SessionManager
	tracker  *services.LoginAttemptTracker
	audit    *services.AuditLogger
	limiter  ratelimit.Limiter
	resets   ratelimit.Limiter
	router   *gin.Engine
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	env, err := config.LoadEnv()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}

	if env.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              env.SentryDSN,
			Environment:      env.AppEnv,
			AttachStacktrace: true,
		}); err != nil {
			log.Warn("sentry disabled", "error", err)
		}
	}
	defer sentry.Flush(2 * time.Second)

	app, err := newApplication(env, log)
	if err != nil {
		log.Error("initialize application", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.bootstrapAdmin(ctx); err != nil {
		stop()
		app.fail("bootstrap admin", err)
	}

	if env.SessionCleanupInterval > 0 {
		pruners := []func() int{app.tracker.Prune}
		for _, limiter := range []ratelimit.Limiter{app.limiter, app.resets} {
			if local, ok := limiter.(*ratelimit.LocalLimiter); ok {
				pruners = append(pruners, local.Prune)
			}
		}
		go services.RunCleanup(ctx, env.SessionCleanupInterval, app.sessions, log, pruners...)
	}

	srv := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", env.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
}

func newApplication(env *config.Env, log *slog.Logger) (*application, error) {
	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(env)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db, log)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	app := &application{env: env, log: log, db: db}

	var attempts services.AttemptStore = services.NewMemoryAttemptStore()
	app.limiter = ratelimit.NewLocalLimiter(env.LoginRateLimitMax, env.LoginRateLimitWindow)
	app.resets = ratelimit.NewLocalLimiter(env.LoginRateLimitMax, env.LoginRateLimitWindow)
	if env.RedisAddr != "" {
		app.redis, err = database.GetRedisClient(env.RedisAddr, env.RedisPass, env.RedisDB)
		if err != nil {
			database.Close(db, log)
			return nil, err
		}
		attempts = services.NewRedisAttemptStore(app.redis)
		app.limiter = ratelimit.NewRedisLimiter(app.redis, "rate_limit:login:", env.LoginRateLimitMax, env.LoginRateLimitWindow)
		app.resets = ratelimit.NewRedisLimiter(app.redis, "rate_limit:password_reset:", env.LoginRateLimitMax, env.LoginRateLimitWindow)
		log.Info("using redis for lockout and rate limit state", "addr", env.RedisAddr)
	}

	app.users = services.NewUserService(db)
	app.sessions = services.NewSessionManager(db, env.RefreshTokenTTL)
	app.tracker = services.NewLoginAttemptTracker(attempts, services.LockoutPolicy{
		MaxAttempts:     env.LoginMaxAttempts,
		AttemptWindow:   env.LoginAttemptWindow,
		LockoutDuration: env.LoginLockoutDuration,
	})
	app.audit = services.NewAuditLogger(db, log, services.AuditOptions{
		Async:     env.AuditAsync,
		QueueSize: env.AuditQueueSize,
	})

	tokens := services.NewTokenService(env.JWTSecret, env.AccessTokenTTL, env.RefreshTokenTTL)
	resets := services.NewPasswordResetService(db, app.users, services.LogNotifier{Log: log}, env.PasswordResetTTL)

	auth := services.NewAuthService(services.AuthDeps{
		DB:       db,
		Users:    app.users,
		Tracker:  app.tracker,
		Tokens:   tokens,
		Sessions: app.sessions,
		Resets:   resets,
		Audit:    app.audit,
		Locator:  utils.NewGeoLocator(env.GeolocationEnabled),
		Log:      log,
	})

	opts := controllers.Options{
		Log:          log,
		ExposeErrors: !env.IsProduction(),
		CookieSecure: env.CookieSecure,
	}
	app.router = routes.NewRouter(env.APIPrefix, routes.Deps{
		Log:            log,
		Tokens:         tokens,
		LoginLimiter:   app.limiter,
		ResetLimiter:   app.resets,
		TrustedProxies: env.TrustedProxies,
		Auth:           controllers.NewAuthController(auth, app.users, env.RefreshTokenTTL, opts),
		Users:          controllers.NewUserController(app.users, opts),
		Password:       controllers.NewPasswordController(auth, opts),
		Security:       controllers.NewSecurityController(auth, app.sessions, app.audit, opts),
	})

	return app, nil
}

func (app *application) bootstrapAdmin(ctx context.Context) error {
	if app.env.AdminUsername == "" {
		return nil
	}

	created, err := app.users.EnsureAdmin(ctx, app.env.AdminUsername, app.env.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		app.log.Info("bootstrap admin created", "username", services.NormalizeUsername(app.env.AdminUsername))
	}
	return nil
}

// fail releases resources and exits with status 1. Deferred calls in main
// do not run.
func (app *application) fail(msg string, err error) {
	app.log.Error(msg, "error", err)
	app.close()
	sentry.Flush(2 * time.Second)
	os.Exit(1)
}

// close releases resources in reverse order of acquisition. The audit queue
// is drained before the database goes away.
func (app *application) close() {
	app.audit.Close()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("close redis", "error", err)
		}
	}

	database.Close(app.db, app.log)
	app.log.Info("shutdown complete")
}
