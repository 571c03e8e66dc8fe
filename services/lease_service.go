package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// leaseTTL bounds how long a crashed archival run can hold its lease.
const leaseTTL = 5 * time.Minute

// releaseScript deletes the lease only while we still own it, so a
// lease that expired and was re-acquired by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// LeaseService hands out per-conversation archival leases backed by
// Redis SET NX. Without a configured Redis client every lease is
// granted, matching the unguarded single-runner deployment.
type LeaseService struct {
	Client *redis.Client

	warnOnce sync.Once
}

// Acquire claims the archival lease for a conversation. The boolean
// reports whether we hold it; release returns it early, with the TTL
// reclaiming leases of crashed runs.
func (ls *LeaseService) Acquire(ctx context.Context, conversationID string) (bool, func(), error) {
	if ls.Client == nil {
		ls.warnOnce.Do(func() {
			log.Printf("⚠️ No Redis configured, archival runs without per-conversation leases")
		})
		return true, func() {}, nil
	}

	key := "archive-lease:" + conversationID
	token := uuid.NewString()

	ok, err := ls.Client.SetNX(ctx, key, token, leaseTTL).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to acquire archive lease for %s: %w", conversationID, err)
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		// Background context: the lease must be returned even when the
		// triggering request was canceled.
		_, err := releaseScript.Run(context.Background(), ls.Client, []string{key}, token).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("❌ Failed to release archive lease for %s: %v", conversationID, err)
		}
	}
	return true, release, nil
}
