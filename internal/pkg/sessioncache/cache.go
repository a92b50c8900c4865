// internal/pkg/sessioncache/cache.go
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "glasstrace-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache keeps the hot copy of active user sessions in Redis. The database
// row is the durable record; the cache exists so token validation does not
// hit Postgres on every request.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCache(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Put stores a session under its identity/JTI key with a TTL matching the
// session expiry.
func (c *Cache) Put(ctx context.Context, session *CachedSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	key := c.sessionKey(session.IdentityID, session.JTI)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}

	return nil
}

// Get retrieves a cached session. A miss returns xerrors.ErrNotFound; the
// caller decides whether to fall back to the database.
func (c *Cache) Get(ctx context.Context, identityID int64, jti string) (*CachedSession, error) {
	key := c.sessionKey(identityID, jti)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}

	var session CachedSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Invalidate removes a session from the cache.
func (c *Cache) Invalidate(ctx context.Context, identityID int64, jti string) {
	key := c.sessionKey(identityID, jti)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("failed to delete cached session", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateAll removes every cached session of an identity.
func (c *Cache) InvalidateAll(ctx context.Context, identityID int64) error {
	pattern := fmt.Sprintf("session:%d:*", identityID)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("failed to delete cached session", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	return iter.Err()
}

// BlacklistToken marks a JTI revoked until its natural expiry.
func (c *Cache) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.blacklistKey(jti), "1", ttl).Err()
}

// IsTokenBlacklisted checks whether a JTI has been revoked.
func (c *Cache) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

func (c *Cache) sessionKey(identityID int64, jti string) string {
	return fmt.Sprintf("session:%d:%s", identityID, jti)
}

func (c *Cache) blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
