package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"imagegen/internal/apperr"
)

const keyPrefix = "imagegen:inflight:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is the subset of the redis wrapper the guard needs.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Eval(ctx context.Context, script *goredis.Script, keys []string, args ...interface{}) (interface{}, error)
}

// Redis shares the guard between API replicas. The TTL frees slots held by a crashed process.
type Redis struct {
	client Locker
	ttl    time.Duration
}

var _ InFlightGuard = (*Redis)(nil)

func NewRedis(client Locker, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, userID string) (ReleaseFunc, error) {
	key := keyPrefix + userID
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire in-flight slot: %w", err)
	}
	if !ok {
		return nil, apperr.ErrGenerationInFlight
	}

	var (
		once   sync.Once
		relErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			if _, err := r.client.Eval(ctx, releaseScript, []string{key}, token); err != nil {
				relErr = fmt.Errorf("release in-flight slot: %w", err)
			}
		})
		return relErr
	}, nil
}
