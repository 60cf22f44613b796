package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/Krish-Depani/showcase-auth/testutil"
)

func TestRunCleanup(t *testing.T) {
	db := testutil.NewDB(t)
	users := newUsers(db)
	sessions := NewSessionManager(db, time.Hour)
	alice := createUser(t, users, "alice", "Secret123!", models.RoleUser)

	if _, err := sessions.CreateSession(context.Background(), alice.ID, "dead", ClientMeta{}); err != nil {
		t.Fatal(err)
	}
	if err := sessions.RevokeSession(context.Background(), "dead"); err != nil {
		t.Fatal(err)
	}

	var pruned atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, 10*time.Millisecond, sessions, testutil.NewLogger(), func() int {
			pruned.Add(1)
			return 0
		})
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pruned.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pruned.Load() == 0 {
		t.Fatal("cleanup never ran")
	}
	var count int64
	db.Model(&models.UserSession{}).Count(&count)
	if count != 0 {
		t.Errorf("%d sessions left", count)
	}
}

func TestTrackerPrune(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(epoch)
	tracker := NewLoginAttemptTracker(NewMemoryAttemptStore(), DefaultLockoutPolicy()).WithClock(clock.Now)

	if _, err := tracker.TrackLoginAttempt(ctx, "alice", false); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if n := tracker.Prune(); n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}
