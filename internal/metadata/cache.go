package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the read-through cache consulted by Get and refreshed after writes.
// Set must never replace an entry holding a higher CurrentVersionNumber.
type Cache interface {
	Get(ctx context.Context, fileID string) (FileMetadata, bool, error)
	Set(ctx context.Context, meta FileMetadata) error
	Invalidate(ctx context.Context, fileID string) error
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (FileMetadata, bool, error) {
	return FileMetadata{}, false, nil
}

func (NopCache) Set(context.Context, FileMetadata) error { return nil }

func (NopCache) Invalidate(context.Context, string) error { return nil }

// setIfNotOlder writes ARGV[1] unless the cached entry is at a higher
// version than ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfNotOlder = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == 'table' then
		local version = tonumber(cached['current_version_number'])
		if version and version > tonumber(ARGV[2]) then
			return 0
		end
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisCache stores metadata as JSON under "<prefix><fileID>" with a TTL.
type RedisCache struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	observe func(hit bool)
}

// NewRedisCache builds a cache over client.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// ObserveLookups registers fn to be told about every hit or miss.
func (c *RedisCache) ObserveLookups(fn func(hit bool)) {
	c.observe = fn
}

// Key returns the redis key holding fileID.
func (c *RedisCache) Key(fileID string) string {
	return c.prefix + fileID
}

func (c *RedisCache) Get(ctx context.Context, fileID string) (FileMetadata, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(fileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(false)
		return FileMetadata{}, false, nil
	}
	if err != nil {
		return FileMetadata{}, false, fmt.Errorf("get cached metadata: %w", err)
	}

	var meta FileMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		_ = c.client.Del(ctx, c.Key(fileID)).Err()
		c.record(false)
		return FileMetadata{}, false, nil
	}
	c.record(true)
	return meta, true, nil
}

func (c *RedisCache) Set(ctx context.Context, meta FileMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	keys := []string{c.Key(meta.FileID)}
	if err := setIfNotOlder.Run(ctx, c.client, keys, raw, meta.CurrentVersionNumber, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("set cached metadata: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, fileID string) error {
	if err := c.client.Del(ctx, c.Key(fileID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached metadata: %w", err)
	}
	return nil
}

func (c *RedisCache) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}
