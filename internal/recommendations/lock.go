// internal/recommendations/lock.go
package recommendations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another pass owns the lock.
var ErrLockHeld = errors.New("generation lock held")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// GenerationLock serialises scoring passes per broker with SET NX PX.
type GenerationLock struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewGenerationLock(client redis.Cmdable, ttl time.Duration) *GenerationLock {
	return &GenerationLock{client: client, ttl: ttl}
}

func lockKey(brokerID string) string {
	return "leads:generate:lock:" + brokerID
}

// Acquire takes the broker's lock and returns the function that releases it.
func (l *GenerationLock) Acquire(ctx context.Context, brokerID string) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(brokerID), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{lockKey(brokerID)}, token).Err()
	}
	return release, nil
}
