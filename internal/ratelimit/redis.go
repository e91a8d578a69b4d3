package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a fixed-window limiter shared by every replica pointing at the same Redis.
type Redis struct {
	C      *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedis(addr string, perMinute int) *Redis {
	return &Redis{
		C:      redis.NewClient(&redis.Options{Addr: addr}),
		limit:  int64(perMinute),
		window: time.Minute,
		prefix: "rl:auth:",
	}
}

// hitScript counts one hit and, in the same step, sets the window expiry on a
// key that has none.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := hitScript.Run(ctx, r.C, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= r.limit, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }
