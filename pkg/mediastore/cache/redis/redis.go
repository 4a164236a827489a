package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-media/pkg/mediastore"
)

// DefaultTTL bounds how long a list can outlive a missed invalidation.
const DefaultTTL = 10 * time.Minute

// generationTTL only has to outlast a single list read.
const generationTTL = 24 * time.Hour

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Config configures the Redis list cache
type Config struct {
	Addr      string
	DB        int
	Password  string
	KeyPrefix string
	TTL       time.Duration
}

// Cache implements mediastore.ListCache on Redis
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New connects a cache to the server in cfg
func New(cfg Config, logger *slog.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return NewWithClient(rdb, cfg, logger)
}

// NewWithClient wraps an existing client
func NewWithClient(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *Cache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mediastore"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logger.With("component", "list_cache"),
	}
}

// Ping checks connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Both keys of an owner share a hash tag so that they land in the same
// cluster slot.
func (c *Cache) key(ownerID int64) string {
	return fmt.Sprintf("%s:{owner:%d}:media", c.prefix, ownerID)
}

func (c *Cache) genKey(ownerID int64) string {
	return fmt.Sprintf("%s:{owner:%d}:gen", c.prefix, ownerID)
}

func (c *Cache) Get(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.DebugContext(ctx, "media list miss", "owner_id", ownerID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []*mediastore.MediaItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false, fmt.Errorf("decode cached media list: %w", err)
	}
	c.logger.DebugContext(ctx, "media list hit", "owner_id", ownerID, "items", len(items))
	return items, true, nil
}

func (c *Cache) Generation(ctx context.Context, ownerID int64) (uint64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey(ownerID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) Set(ctx context.Context, ownerID int64, gen uint64, items []*mediastore.MediaItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	keys := []string{c.key(ownerID), c.genKey(ownerID)}
	written, err := setIfGeneration.Run(ctx, c.rdb, keys, strconv.FormatUint(gen, 10), b, c.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if written == 0 {
		c.logger.DebugContext(ctx, "media list changed during read, not cached", "owner_id", ownerID)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, ownerID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(ownerID))
		pipe.Incr(ctx, c.genKey(ownerID))
		pipe.Expire(ctx, c.genKey(ownerID), generationTTL)
		return nil
	})
	return err
}
