// Package rediscache caches the notification unread counter in Redis. The
// counter is read on every page load, which makes it the one hot read in the
// notification surface; everything else goes straight to the repository.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
)

// DefaultTTL bounds staleness when an invalidation is lost.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "notifications:unread:"

// CountCache decorates a notification.Repository with a cached unread
// counter. Cache failures degrade to the repository; they never fail the
// request.
type CountCache struct {
	repo   notification.Repository
	client redis.UniversalClient
	ttl    time.Duration
	logger log.Logger
}

var _ notification.Repository = (*CountCache)(nil)

// NewCountCache wraps repo. A nil logger is replaced with a no-op one.
func NewCountCache(repo notification.Repository, client redis.UniversalClient, ttl time.Duration, logger log.Logger) *CountCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &CountCache{repo: repo, client: client, ttl: ttl, logger: logger}
}

// Create writes through and invalidates the recipient's counter.
func (c *CountCache) Create(ctx context.Context, n *notification.Notification) error {
	if err := c.repo.Create(ctx, n); err != nil {
		return err
	}

	c.invalidate(ctx, n.RecipientID)

	return nil
}

// ListByRecipient delegates to the repository.
func (c *CountCache) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*notification.Notification, error) {
	return c.repo.ListByRecipient(ctx, recipientID, limit)
}

// MarkRead writes through and invalidates the recipient's counter.
func (c *CountCache) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	if err := c.repo.MarkRead(ctx, id, recipientID); err != nil {
		return err
	}

	c.invalidate(ctx, recipientID)

	return nil
}

// MarkAllRead writes through and invalidates the recipient's counter.
func (c *CountCache) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	updated, err := c.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	c.invalidate(ctx, recipientID)

	return updated, nil
}

// UnreadCount serves from cache when possible, otherwise reads through and
// fills the cache.
func (c *CountCache) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	key := keyPrefix + recipientID

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		count, parseErr := strconv.Atoi(cached)
		if parseErr == nil {
			return count, nil
		}

		c.logger.Log(ctx, log.LevelWarn, "corrupt unread counter in cache",
			log.String("key", key), log.String("value", cached))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Log(ctx, log.LevelWarn, "unread counter cache read failed", log.Err(err))
	}

	count, err := c.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if err := c.client.Set(ctx, key, strconv.Itoa(count), c.ttl).Err(); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "unread counter cache write failed", log.Err(err))
	}

	return count, nil
}

func (c *CountCache) invalidate(ctx context.Context, recipientID string) {
	if err := c.client.Del(ctx, keyPrefix+recipientID).Err(); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "unread counter cache invalidation failed",
			log.String("recipient", recipientID), log.Err(err))
	}
}

// Connect opens a standalone client and verifies the connection.
func Connect(ctx context.Context, address string) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{Addr: address})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
