package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type AttemptRecord struct {
	Count       int
	LastAttempt time.Time
}

// AttemptStore persists login-attempt records. Increment must be atomic per
// username: a record whose last attempt is older than window restarts at
// zero, and the store may forget a record retain after its last attempt.
type AttemptStore interface {
	Get(ctx context.Context, username string) (AttemptRecord, bool, error)
	Increment(ctx context.Context, username string, now time.Time, window, retain time.Duration) (AttemptRecord, error)
	Delete(ctx context.Context, username string) error
}

// MemoryAttemptStore keeps records in process. Lockouts do not survive a
// restart and are not shared between instances.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]AttemptRecord
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{records: make(map[string]AttemptRecord)}
}

func (s *MemoryAttemptStore) Get(_ context.Context, username string) (AttemptRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	return rec, ok, nil
}

func (s *MemoryAttemptStore) Increment(_ context.Context, username string, now time.Time, window, _ time.Duration) (AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok || now.Sub(rec.LastAttempt) > window {
		rec = AttemptRecord{}
	}
	rec.Count++
	rec.LastAttempt = now
	s.records[username] = rec

	return rec, nil
}

func (s *MemoryAttemptStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, username)
	return nil
}

// Prune drops records whose last attempt is older than retain and returns
// how many were removed.
func (s *MemoryAttemptStore) Prune(now time.Time, retain time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for username, rec := range s.records {
		if now.Sub(rec.LastAttempt) > retain {
			delete(s.records, username)
			removed++
		}
	}
	return removed
}

const attemptKeyPrefix = "login_attempts:"

// KEYS[1] record key; ARGV[1] now (unix ms); ARGV[2] window (ms); ARGV[3] retain (ms).
var incrementAttemptScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last')
if last and (tonumber(ARGV[1]) - tonumber(last)) > tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1])
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return count
`)

// RedisAttemptStore shares records between every instance pointed at the
// same Redis, with increments applied by a single Lua script.
type RedisAttemptStore struct {
	client redis.Cmdable
}

func NewRedisAttemptStore(client redis.Cmdable) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (s *RedisAttemptStore) key(username string) string {
	return attemptKeyPrefix + username
}

func (s *RedisAttemptStore) Get(ctx context.Context, username string) (AttemptRecord, bool, error) {
	values, err := s.client.HMGet(ctx, s.key(username), "count", "last").Result()
	if err != nil {
		return AttemptRecord{}, false, fmt.Errorf("redis hmget: %w", err)
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return AttemptRecord{}, false, nil
	}

	count, err := strconv.Atoi(fmt.Sprint(values[0]))
	if err != nil {
		return AttemptRecord{}, false, fmt.Errorf("parse attempt count: %w", err)
	}
	lastMs, err := strconv.ParseInt(fmt.Sprint(values[1]), 10, 64)
	if err != nil {
		return AttemptRecord{}, false, fmt.Errorf("parse last attempt: %w", err)
	}

	return AttemptRecord{Count: count, LastAttempt: time.UnixMilli(lastMs).UTC()}, true, nil
}

func (s *RedisAttemptStore) Increment(ctx context.Context, username string, now time.Time, window, retain time.Duration) (AttemptRecord, error) {
	count, err := incrementAttemptScript.Run(ctx, s.client, []string{s.key(username)},
		now.UnixMilli(), window.Milliseconds(), retain.Milliseconds()).Int()
	if err != nil {
		return AttemptRecord{}, fmt.Errorf("redis increment attempts: %w", err)
	}

	return AttemptRecord{Count: count, LastAttempt: time.UnixMilli(now.UnixMilli()).UTC()}, nil
}

func (s *RedisAttemptStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
