package services

import (
	"context"
	"log/slog"
	"time"
)

// RunCleanup deletes dead sessions and runs every pruner on each tick until
// ctx is done.
func RunCleanup(ctx context.Context, interval time.Duration, sessions *SessionManager, log *slog.Logger, pruners ...func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.CleanupExpiredSessions(ctx)
			if err != nil {
				log.Error("session cleanup failed", "error", err)
			}

			pruned := 0
			for _, prune := range pruners {
				pruned += prune()
			}
			log.Info("cleanup finished", "sessions_deleted", deleted, "keys_pruned", pruned)
		}
	}
}
