package services

import (
	"context"
	"fmt"
	"time"
)

type LockoutPolicy struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:     5,
		AttemptWindow:   time.Hour,
		LockoutDuration: 15 * time.Minute,
	}
}

// retention is how long a store must keep a record after its last attempt
// for both the window and the lockout to be enforceable.
func (p LockoutPolicy) retention() time.Duration {
	if p.LockoutDuration > p.AttemptWindow {
		return p.LockoutDuration
	}
	return p.AttemptWindow
}

// LoginAttemptTracker enforces the per-username lockout policy. It is keyed
// by the submitted username whether or not an account exists for it.
type LoginAttemptTracker struct {
	store  AttemptStore
	policy LockoutPolicy
	now    func() time.Time
}

func NewLoginAttemptTracker(store AttemptStore, policy LockoutPolicy) *LoginAttemptTracker {
	defaults := DefaultLockoutPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.AttemptWindow <= 0 {
		policy.AttemptWindow = defaults.AttemptWindow
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = defaults.LockoutDuration
	}

	return &LoginAttemptTracker{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *LoginAttemptTracker) WithClock(now func() time.Time) *LoginAttemptTracker {
	t.now = now
	return t
}

func (t *LoginAttemptTracker) Policy() LockoutPolicy {
	return t.policy
}

// current returns the live record for username, discarding it first if it
// has fallen outside the attempt window.
func (t *LoginAttemptTracker) current(ctx context.Context, username string) (AttemptRecord, bool, error) {
	rec, ok, err := t.store.Get(ctx, username)
	if err != nil {
		return AttemptRecord{}, false, fmt.Errorf("load login attempts: %w", err)
	}
	if !ok {
		return AttemptRecord{}, false, nil
	}

	if t.now().Sub(rec.LastAttempt) > t.policy.AttemptWindow {
		if err := t.store.Delete(ctx, username); err != nil {
			return AttemptRecord{}, false, fmt.Errorf("discard stale login attempts: %w", err)
		}
		return AttemptRecord{}, false, nil
	}

	return rec, true, nil
}

func (t *LoginAttemptTracker) lockoutExpiry(rec AttemptRecord) time.Time {
	return rec.LastAttempt.Add(t.policy.LockoutDuration)
}

// CheckLoginAttempts reports whether a login for username may proceed now.
func (t *LoginAttemptTracker) CheckLoginAttempts(ctx context.Context, username string) (bool, error) {
	rec, ok, err := t.current(ctx, username)
	if err != nil {
		return false, err
	}
	if !ok || rec.Count < t.policy.MaxAttempts {
		return true, nil
	}

	if t.now().Before(t.lockoutExpiry(rec)) {
		return false, nil
	}

	if err := t.store.Delete(ctx, username); err != nil {
		return false, fmt.Errorf("clear expired lockout: %w", err)
	}
	return true, nil
}

func (t *LoginAttemptTracker) ResetLoginAttempts(ctx context.Context, username string) error {
	if err := t.store.Delete(ctx, username); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func (t *LoginAttemptTracker) GetRemainingAttempts(ctx context.Context, username string) (int, error) {
	rec, ok, err := t.current(ctx, username)
	if err != nil {
		return 0, err
	}
	if !ok {
		return t.policy.MaxAttempts, nil
	}
	return max(0, t.policy.MaxAttempts-rec.Count), nil
}

// GetAccountLockoutTime returns the lockout expiry while username is locked,
// nil otherwise.
func (t *LoginAttemptTracker) GetAccountLockoutTime(ctx context.Context, username string) (*time.Time, error) {
	rec, ok, err := t.current(ctx, username)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Count < t.policy.MaxAttempts {
		return nil, nil
	}

	expiry := t.lockoutExpiry(rec)
	if !t.now().Before(expiry) {
		return nil, nil
	}
	return &expiry, nil
}

// TrackLoginAttempt records the outcome of an attempt. A failure returns the
// updated record; a success clears it.
func (t *LoginAttemptTracker) TrackLoginAttempt(ctx context.Context, username string, success bool) (AttemptRecord, error) {
	if success {
		return AttemptRecord{}, t.ResetLoginAttempts(ctx, username)
	}

	rec, err := t.store.Increment(ctx, username, t.now(), t.policy.AttemptWindow, t.policy.retention())
	if err != nil {
		return AttemptRecord{}, fmt.Errorf("record failed login attempt: %w", err)
	}
	return rec, nil
}

type prunableStore interface {
	Prune(now time.Time, retain time.Duration) int
}

// Prune drops records that can no longer affect a decision. Stores that
// expire records themselves report 0.
func (t *LoginAttemptTracker) Prune() int {
	if ps, ok := t.store.(prunableStore); ok {
		return ps.Prune(t.now(), t.policy.retention())
	}
	return 0
}
