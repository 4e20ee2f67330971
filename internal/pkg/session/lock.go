// internal/pkg/session/lock.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an expired
// lock taken over by another submit is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmitLock serialises submissions and edits of the same workflow across service replicas.
type SubmitLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmitLock(client *redis.Client, ttl time.Duration) *SubmitLock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SubmitLock{client: client, ttl: ttl}
}

// Acquire returns true when the caller now owns the lock for workflowID.
func (l *SubmitLock) Acquire(ctx context.Context, workflowID, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.lockKey(workflowID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submit lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock if token still owns it.
func (l *SubmitLock) Release(ctx context.Context, workflowID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.lockKey(workflowID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release submit lock: %w", err)
	}
	return nil
}

func (l *SubmitLock) lockKey(workflowID string) string {
	return fmt.Sprintf("lock:promotion:submit:%s", workflowID)
}
