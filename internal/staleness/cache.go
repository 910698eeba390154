// Package staleness fronts the staleness registry with a Redis cache so that
// many polling clients do not each hit the database. The SQL record stays
// authoritative: any cache failure degrades to a read from the source.
package staleness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached marker can outlive a missed publish.
const DefaultTTL = 30 * time.Second

// Source is the authoritative staleness store.
type Source interface {
	LastUpdate(ctx context.Context, scope string) (domain.StalenessRecord, error)
}

// publishScript stores a marker only if its revision is newer than the
// cached one, so a late publish can never roll the cache backwards.
var publishScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'revision')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'revision', ARGV[1], 'updated_at_us', ARGV[2], 'actor_id', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Cache is a read-through Redis cache over a Source.
type Cache struct {
	client *redis.Client
	source Source
	prefix string
	ttl    time.Duration
}

// NewCache connects to redisURL and verifies the connection.
func NewCache(redisURL string, source Source, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewCacheWithClient(client, source, ttl), nil
}

// NewCacheWithClient creates a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, source: source, prefix: "workgrid:stale:", ttl: ttl}
}

func (c *Cache) key(scope string) string {
	return c.prefix + scope
}

// LastUpdate returns the cached marker for scope, loading it from the
// source on a miss.
func (c *Cache) LastUpdate(ctx context.Context, scope string) (domain.StalenessRecord, error) {
	if rec, ok := c.lookup(ctx, scope); ok {
		return rec, nil
	}
	rec, err := c.source.LastUpdate(ctx, scope)
	if err != nil {
		return rec, err
	}
	if rec.Revision > 0 {
		_ = c.store(ctx, rec)
	}
	return rec, nil
}

func (c *Cache) lookup(ctx context.Context, scope string) (domain.StalenessRecord, bool) {
	fields, err := c.client.HGetAll(ctx, c.key(scope)).Result()
	if err != nil || len(fields) == 0 {
		return domain.StalenessRecord{}, false
	}
	rev, err := strconv.ParseInt(fields["revision"], 10, 64)
	if err != nil {
		return domain.StalenessRecord{}, false
	}
	us, err := strconv.ParseInt(fields["updated_at_us"], 10, 64)
	if err != nil {
		return domain.StalenessRecord{}, false
	}
	return domain.StalenessRecord{
		Scope:     scope,
		UpdatedAt: time.UnixMicro(us).UTC(),
		ActorID:   fields["actor_id"],
		Revision:  rev,
	}, true
}

// Publish pushes freshly committed markers into the cache. If a marker
// cannot be stored, the cached entries for all given scopes are dropped so
// the next probe reads through to the source instead of an older marker.
func (c *Cache) Publish(ctx context.Context, records ...domain.StalenessRecord) error {
	for _, rec := range records {
		if err := c.store(ctx, rec); err != nil {
			keys := make([]string, 0, len(records))
			for _, r := range records {
				keys = append(keys, c.key(r.Scope))
			}
			if delErr := c.client.Del(ctx, keys...).Err(); delErr != nil {
				return errors.Join(err, fmt.Errorf("evict staleness: %w", delErr))
			}
			return err
		}
	}
	return nil
}

func (c *Cache) store(ctx context.Context, rec domain.StalenessRecord) error {
	err := publishScript.Run(ctx, c.client, []string{c.key(rec.Scope)},
		rec.Revision, rec.UpdatedAt.UnixMicro(), rec.ActorID, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("publish staleness for %q: %w", rec.Scope, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
