package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// windowScript increments the counter and sets the window TTL in one step,
// so a counter never outlives a crash between the two. A key left without a
// TTL is repaired on its next hit.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Redis shares counters between processes through an atomic INCR with a TTL
// set on the first hit of each window.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
}

func NewRedis(client redis.UniversalClient, cfg Config, scope string) *Redis {
	return &Redis{
		client: client,
		cfg:    cfg,
		prefix: redisKeyPrefix + scope + ":",
	}
}

// NewRedisFromURL parses a redis:// URL and builds the limiter.
func NewRedisFromURL(url string, cfg Config, scope string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg, scope), nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key

	count, err := windowScript.Run(ctx, r.client, []string{k}, r.cfg.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count <= int64(r.cfg.Limit), nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
