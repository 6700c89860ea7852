package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wellness-crisis/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ActiveAlertEntry is the cached pointer to a user's open alert for one
// calendar day. It carries just enough to route a follow-up signal to
// the merge path without a database round trip.
type ActiveAlertEntry struct {
	AlertID   string           `json:"alert_id"`
	Severity  models.RiskLevel `json:"severity"`
	CreatedAt time.Time        `json:"created_at"`
}

// ActiveAlertIndex tracks which users have an open alert today. Redis is
// an accelerator here, not the source of truth: a miss falls through to
// the database, and entries expire on their own at end of day.
type ActiveAlertIndex struct {
	redisClient *redis.Client
	keyPrefix   string
	logger      *zap.Logger
}

// NewActiveAlertIndex creates the index.
func NewActiveAlertIndex(redisClient *redis.Client, keyPrefix string, logger *zap.Logger) *ActiveAlertIndex {
	return &ActiveAlertIndex{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		logger:      logger,
	}
}

// Key builds the per-user per-day index key. Days are UTC calendar days.
func (i *ActiveAlertIndex) Key(userID string, day time.Time) string {
	return fmt.Sprintf("%s%s:%s", i.keyPrefix, userID, day.UTC().Format("2006-01-02"))
}

// Set records the user's open alert for the given day. The TTL runs to
// the end of the UTC day plus an hour of slack so a just-before-midnight
// alert stays findable while its day window is still relevant.
func (i *ActiveAlertIndex) Set(ctx context.Context, userID string, day time.Time, entry *ActiveAlertEntry) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	if entry == nil {
		return fmt.Errorf("entry is required")
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal active alert entry: %w", err)
	}

	ttl := ttlUntilDayEnd(day)
	if err := i.redisClient.Set(ctx, i.Key(userID, day), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set active alert entry: %w", err)
	}

	return nil
}

// Get returns the user's open alert entry for the day, or nil on a miss.
func (i *ActiveAlertIndex) Get(ctx context.Context, userID string, day time.Time) (*ActiveAlertEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	val, err := i.redisClient.Get(ctx, i.Key(userID, day)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active alert entry: %w", err)
	}

	var entry ActiveAlertEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active alert entry: %w", err)
	}

	return &entry, nil
}

// Delete removes the index entry when the alert leaves the active state.
func (i *ActiveAlertIndex) Delete(ctx context.Context, userID string, day time.Time) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	if err := i.redisClient.Del(ctx, i.Key(userID, day)).Err(); err != nil {
		return fmt.Errorf("failed to delete active alert entry: %w", err)
	}

	return nil
}

func ttlUntilDayEnd(day time.Time) time.Duration {
	utc := day.UTC()
	dayEnd := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	ttl := time.Until(dayEnd) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return ttl
}
