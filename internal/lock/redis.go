package lock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so a
// holder whose TTL expired cannot free a lock someone else now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance talking to the same redis.
type Redis struct {
	rdb  *redis.Client
	opts Options
}

func NewRedis(rdb *redis.Client, opts Options) *Redis {
	return &Redis{rdb: rdb, opts: opts}
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	rkey := "lock:" + key
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.rdb.SetNX(ctx, rkey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				// a failed release is reclaimed by the TTL
				_ = releaseScript.Run(context.Background(), l.rdb, []string{rkey}, token).Err()
			}, nil
		}
		if attempt >= l.opts.Retries {
			return nil, busy(key)
		}
		if err := wait(ctx, l.opts.RetryDelay); err != nil {
			return nil, err
		}
	}
}
