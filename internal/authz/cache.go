package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedStore layers a Redis cache over a Store. Role and permission data
// for one user are cached as a single record so a miss warms both lookups
// with one round trip. Concurrent misses for the same user collapse into
// one backing query. Cache trouble degrades to the underlying store; it is
// never reported as ErrStoreUnavailable.
type CachedStore struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

type cachedGrants struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// NewCachedStore constructs a CachedStore.
func NewCachedStore(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{store: store, client: client, ttl: ttl, logger: logger}
}

// RoleOf implements Store.
func (c *CachedStore) RoleOf(ctx context.Context, userID int64) (Role, error) {
	rec, err := c.grants(ctx, userID)
	if err != nil {
		return RoleNone, err
	}
	role, ok := ParseRole(rec.Role)
	if !ok {
		return RoleNone, nil
	}
	return role, nil
}

// PermissionsOf implements Store.
func (c *CachedStore) PermissionsOf(ctx context.Context, userID int64) ([]string, error) {
	rec, err := c.grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The record may be shared between collapsed callers.
	perms := make([]string, len(rec.Permissions))
	copy(perms, rec.Permissions)
	return perms, nil
}

// Invalidate drops the cached record for a user. Administrative mutations
// call this after changing roles, groups, or grants.
func (c *CachedStore) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authz: invalidate user %d: %w", userID, err)
	}
	return nil
}

func (c *CachedStore) grants(ctx context.Context, userID int64) (cachedGrants, error) {
	key := c.key(userID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec cachedGrants
		if err := json.Unmarshal(data, &rec); err == nil {
			return rec, nil
		}
		// Corrupt entry: drop it and rebuild from the store.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) && c.logger != nil {
		c.logger.Warn("authz cache read", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		role, err := c.store.RoleOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		perms, err := c.store.PermissionsOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		rec := cachedGrants{Role: string(role), Permissions: perms}
		if payload, err := json.Marshal(rec); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("authz cache write", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return cachedGrants{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return cachedGrants{}, res.Err
		}
		return res.Val.(cachedGrants), nil
	}
}

func (c *CachedStore) key(userID int64) string {
	return fmt.Sprintf("authz:grants:%d", userID)
}
