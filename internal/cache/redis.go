package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/steemit/commentd/pkg/config"
	"github.com/steemit/commentd/pkg/logging"
)

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
)

// touchScript stores ARGV[1] under KEYS[1] unless the previous value is younger than
// ARGV[2] milliseconds, in which case the remaining wait is returned instead.
var touchScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
if last then
  local elapsed = now - tonumber(last)
  if elapsed < 0 then
    elapsed = 0
  end
  if elapsed < interval then
    return interval - elapsed
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 0
`)

// Cache wraps Redis client
type Cache struct {
	client    *redis.Client
	namespace string
}

// New creates a new Redis cache client
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewWithClient(client, cfg.Namespace), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, namespace string) *Cache {
	return &Cache{client: client, namespace: namespace}
}

// HashKey returns the SHA-256 hex digest of parts joined with "|"
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// TouchIfIdle atomically records now under key unless the previous touch is younger
// than interval. It returns the remaining wait, zero when the touch was recorded.
func (c *Cache) TouchIfIdle(ctx context.Context, key string, now time.Time, interval, ttl time.Duration) (time.Duration, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}

	wait, err := touchScript.Run(ctx, c.client,
		[]string{c.namespaceKey(key)},
		now.UnixMilli(), interval.Milliseconds(), ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("touch %s: %w", key, err)
	}
	return time.Duration(wait) * time.Millisecond, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
