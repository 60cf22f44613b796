package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

const (
	defaultActivityLimit = 10
	defaultEventsLimit   = 50
	maxEventsLimit       = 500
)

type AuditEntry struct {
	UserID    *uint
	Action    models.AuditAction
	IPAddress string
	UserAgent string
	Details   map[string]any
}

type SecurityEventFilter struct {
	Action    models.AuditAction
	UserID    *uint
	IPAddress string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

type AuditOptions struct {
	Async     bool
	QueueSize int
}

// AuditLogger appends security events. Log never fails the caller: write
// errors go to the diagnostic log and Sentry only.
type AuditLogger struct {
	db    *gorm.DB
	log   *slog.Logger
	now   func() time.Time
	queue chan models.AuditLog
	wg    sync.WaitGroup
	once  sync.Once
}

func NewAuditLogger(db *gorm.DB, log *slog.Logger, opts AuditOptions) *AuditLogger {
	al := &AuditLogger{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}

	if opts.Async {
		if opts.QueueSize <= 0 {
			opts.QueueSize = 1000
		}
		al.queue = make(chan models.AuditLog, opts.QueueSize)
		al.wg.Add(1)
		go al.worker()
	}

	return al
}

func (al *AuditLogger) WithClock(now func() time.Time) *AuditLogger {
	al.now = now
	return al
}

func (al *AuditLogger) Log(ctx context.Context, entry AuditEntry) {
	record := models.AuditLog{
		UserID:    entry.UserID,
		Action:    entry.Action,
		IPAddress: orUnknown(entry.IPAddress),
		UserAgent: orUnknown(entry.UserAgent),
		CreatedAt: al.now(),
	}

	if len(entry.Details) > 0 {
		details, err := json.Marshal(entry.Details)
		if err != nil {
			al.log.Warn("audit details not encodable", "action", entry.Action, "error", err)
		} else {
			record.Details = string(details)
		}
	}

	if al.queue != nil {
		select {
		case al.queue <- record:
		default:
			al.log.Error("audit queue full, dropping event", "action", record.Action)
		}
		return
	}

	al.write(context.WithoutCancel(ctx), record)
}

func (al *AuditLogger) write(ctx context.Context, record models.AuditLog) {
	defer func() {
		if r := recover(); r != nil {
			al.log.Error("audit write panicked", "action", record.Action, "panic", r)
		}
	}()

	if err := al.db.WithContext(ctx).Create(&record).Error; err != nil {
		al.log.Error("audit write failed", "action", record.Action, "error", err)
		sentry.CaptureException(fmt.Errorf("audit write %s: %w", record.Action, err))
	}
}

func (al *AuditLogger) worker() {
	defer al.wg.Done()
	for record := range al.queue {
		al.write(context.Background(), record)
	}
}

// Close drains the async queue. Log must not be called afterwards.
func (al *AuditLogger) Close() {
	al.once.Do(func() {
		if al.queue != nil {
			close(al.queue)
			al.wg.Wait()
		}
	})
}

func (al *AuditLogger) GetUserActivity(ctx context.Context, userID uint, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	var logs []models.AuditLog
	err := al.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("query activity of user %d: %w", userID, err)
	}
	return logs, nil
}

// GetSecurityEvents applies the date range only when both bounds are set.
func (al *AuditLogger) GetSecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]models.AuditLog, error) {
	query := al.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.IPAddress != "" {
		query = query.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.StartDate != nil && filter.EndDate != nil {
		query = query.Where("created_at >= ? AND created_at <= ?", filter.StartDate.UTC(), filter.EndDate.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventsLimit
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	return logs, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
