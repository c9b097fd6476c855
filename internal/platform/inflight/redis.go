package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

const (
	DefaultTTL = 2 * time.Minute
	keyPrefix  = "inpatient:inflight:"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired hold that was re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Guard shared across replicas. Each hold expires after ttl so a
// crashed replica cannot block a key forever.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisFromURL parses a redis:// URL and verifies the server answers.
func NewRedisFromURL(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

func (r *Redis) Acquire(ctx context.Context, op string, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()

	acquired := make([]string, 0, len(keys))
	releaseAcquired := func() {
		for _, k := range acquired {
			_ = releaseScript.Run(context.Background(), r.client, []string{keyPrefix + k}, token).Err()
		}
	}

	for _, k := range keys {
		ok, err := r.client.SetNX(ctx, keyPrefix+k, token, r.ttl).Result()
		if err != nil {
			releaseAcquired()
			return nil, apperr.Transient(op, fmt.Errorf("acquire %s: %w", k, err))
		}
		if !ok {
			releaseAcquired()
			return nil, apperr.InFlight(op, k)
		}
		acquired = append(acquired, k)
	}

	var once sync.Once
	return func() { once.Do(releaseAcquired) }, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
