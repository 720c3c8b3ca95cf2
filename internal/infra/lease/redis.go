package lease

import (
	"context"
	"errors"
	"time"

	"vermietify/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vermietify:lease:"

type redisLease struct {
	client redis.Scripter
}

// Re-acquiring a lease one already holds extends it.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedis shares job leases across scheduler instances.
func NewRedis(client redis.Scripter) (domain.Lease, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &redisLease{client: client}, nil
}

func (r *redisLease) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	millis := ttl.Milliseconds()
	if millis <= 0 {
		millis = 1000
	}
	got, err := acquireScript.Run(ctx, r.client, []string{keyPrefix + name}, holder, millis).Int64()
	if err != nil {
		return false, err
	}
	return got == 1, nil
}

func (r *redisLease) Release(ctx context.Context, name, holder string) error {
	return releaseScript.Run(ctx, r.client, []string{keyPrefix + name}, holder).Err()
}
