// Package preferences looks up recipient channel and category switches.
package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"

	"github.com/redis/go-redis/v9"
)

// Lookup returns a recipient's preferences. A recipient without a stored
// record gets DefaultPreferences.
type Lookup interface {
	Get(ctx context.Context, recipientID string) (*notification.Preferences, error)
}

// PostgresLookup reads the notification_preferences table.
type PostgresLookup struct {
	db *sql.DB
}

func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) Get(ctx context.Context, recipientID string) (*notification.Preferences, error) {
	var (
		preferred            sql.NullString
		channels, categories []byte
	)
	query := `SELECT preferred_channel, channels, categories FROM notification_preferences WHERE recipient_id = $1`
	err := l.db.QueryRowContext(ctx, query, recipientID).Scan(&preferred, &channels, &categories)
	if errors.Is(err, sql.ErrNoRows) {
		return notification.DefaultPreferences(recipientID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	prefs := &notification.Preferences{
		RecipientID:      recipientID,
		PreferredChannel: notification.Channel(preferred.String),
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &prefs.Channels); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &prefs.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
	}
	return prefs, nil
}

// CachedLookup is a Redis read-through cache in front of another Lookup.
// Redis failures fall back to the underlying lookup.
type CachedLookup struct {
	next   Lookup
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedLookup {
	return &CachedLookup{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "preferences"}),
	}
}

func cacheKey(recipientID string) string {
	return "notif:prefs:" + recipientID
}

func (c *CachedLookup) Get(ctx context.Context, recipientID string) (*notification.Preferences, error) {
	key := cacheKey(recipientID)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var prefs notification.Preferences
		if jsonErr := json.Unmarshal([]byte(val), &prefs); jsonErr == nil {
			return &prefs, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("preference cache read failed", map[string]interface{}{
			"recipientId": recipientID,
			"error":       err.Error(),
		})
	}

	prefs, err := c.next.Get(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(prefs)
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("preference cache write failed", map[string]interface{}{
			"recipientId": recipientID,
			"error":       err.Error(),
		})
	}
	return prefs, nil
}

// Invalidate drops the cached entry for recipientID.
func (c *CachedLookup) Invalidate(ctx context.Context, recipientID string) error {
	return c.redis.Del(ctx, cacheKey(recipientID)).Err()
}

// Static serves fixed preferences, defaulting everyone else.
type Static map[string]*notification.Preferences

func (s Static) Get(_ context.Context, recipientID string) (*notification.Preferences, error) {
	if p, ok := s[recipientID]; ok {
		return p, nil
	}
	return notification.DefaultPreferences(recipientID), nil
}
